package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/harvestline/harvestline-backend/pkg/database"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// MigrateFunc applies a service's schema to db
type MigrateFunc func(ctx context.Context, db *database.DB) error

// TestSchema is an isolated Postgres schema owned by one test
type TestSchema struct {
	Name string
	DB   *database.DB
}

// SchemaManager creates and drops per-test schemas on a shared container
type SchemaManager struct {
	db      *sqlx.DB
	dsn     string
	log     *logger.Logger
	schemas []*TestSchema
	mu      sync.Mutex
}

// NewSchemaManager creates a schema manager. dsn is the container's
// URL-style connection string.
func NewSchemaManager(db *sqlx.DB, dsn string, log *logger.Logger) *SchemaManager {
	return &SchemaManager{
		db:  db,
		dsn: dsn,
		log: log,
	}
}

// CreateSchema creates a fresh schema and returns a connection whose
// search_path points at it, so unqualified table names resolve there.
//
// Usage:
//
//	sm := testutil.NewSchemaManager(rawDB, container.DSN, log)
//	s, err := sm.CreateSchema(ctx, "ledger")
//	repo := repository.NewMaterialRepository(s.DB)
func (sm *SchemaManager) CreateSchema(ctx context.Context, name string) (*TestSchema, error) {
	slug := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(name))
	schemaName := fmt.Sprintf("t_%s_%s", slug, strings.ReplaceAll(uuid.New().String()[:8], "-", ""))

	if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schemaName)); err != nil {
		return nil, fmt.Errorf("failed to create test schema: %w", err)
	}

	db, err := database.NewWithDSN(withSearchPath(sm.dsn, schemaName), sm.log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test schema: %w", err)
	}

	s := &TestSchema{Name: schemaName, DB: db}

	sm.mu.Lock()
	sm.schemas = append(sm.schemas, s)
	sm.mu.Unlock()

	return s, nil
}

// CreateSchemaWithMigrations creates a schema and applies migrate to it
func (sm *SchemaManager) CreateSchemaWithMigrations(ctx context.Context, name string, migrate MigrateFunc) (*TestSchema, error) {
	s, err := sm.CreateSchema(ctx, name)
	if err != nil {
		return nil, err
	}
	if migrate != nil {
		if err := migrate(ctx, s.DB); err != nil {
			return nil, fmt.Errorf("failed to apply migrations to %s: %w", s.Name, err)
		}
	}
	return s, nil
}

// DropSchema closes the schema's connection and drops it with everything in it
func (sm *SchemaManager) DropSchema(ctx context.Context, s *TestSchema) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	_ = s.DB.Close()
	if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.Name)); err != nil {
		return fmt.Errorf("failed to drop test schema: %w", err)
	}

	for i, tracked := range sm.schemas {
		if tracked == s {
			sm.schemas = append(sm.schemas[:i], sm.schemas[i+1:]...)
			break
		}
	}
	return nil
}

// Cleanup drops every schema this manager created
func (sm *SchemaManager) Cleanup(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var lastErr error
	for _, s := range sm.schemas {
		_ = s.DB.Close()
		if _, err := sm.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.Name)); err != nil {
			lastErr = err
		}
	}
	sm.schemas = nil
	return lastErr
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + schema
}
