// Package app wires the stock engine's stores and services from config.
// Both the HTTP service and the operator CLI start from here.
package app

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/harvestline/harvestline-backend/internal/stock/events"
	"github.com/harvestline/harvestline-backend/internal/stock/repository"
	"github.com/harvestline/harvestline-backend/internal/stock/repository/memory"
	"github.com/harvestline/harvestline-backend/internal/stock/service"
	"github.com/harvestline/harvestline-backend/pkg/config"
	"github.com/harvestline/harvestline-backend/pkg/database"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// Stores holds the storage backends selected by store.driver and
// counters.driver
type Stores struct {
	DB        *database.DB
	Mongo     *mongo.Client
	Counters  service.CounterStore
	Materials service.MaterialStore
	Batches   service.BatchStore
	Alerts    service.AlertStore
	Movements service.MovementStore
}

// OpenStores connects the configured backends. Postgres schemas are
// migrated before any store is handed out.
func OpenStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Stores, error) {
	s := &Stores{}

	if cfg.Store.Driver == config.DriverPostgres || cfg.Counters.Driver == config.DriverPostgres {
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		s.DB = db

		if err := repository.Migrate(ctx, db); err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		s.Materials = repository.NewMaterialRepository(s.DB)
		s.Batches = repository.NewBatchRepository(s.DB)
		s.Alerts = repository.NewAlertRepository(s.DB)
		s.Movements = repository.NewMovementRepository(s.DB)
	case config.DriverMemory:
		log.Warn().Msg("using in-memory stores, all stock data is lost on exit")
		s.Materials = memory.NewMaterialStore()
		s.Batches = memory.NewBatchStore()
		s.Alerts = memory.NewAlertStore()
		s.Movements = memory.NewMovementStore()
	default:
		s.Close(ctx)
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	switch cfg.Counters.Driver {
	case config.DriverPostgres:
		s.Counters = repository.NewCounterRepository(s.DB)
	case config.DriverMongo:
		client, err := repository.ConnectMongo(ctx, &cfg.Mongo)
		if err != nil {
			s.Close(ctx)
			return nil, err
		}
		s.Mongo = client
		s.Counters = repository.NewMongoCounterRepository(client, cfg.Mongo.Database)
	case config.DriverMemory:
		s.Counters = memory.NewCounterStore()
	default:
		s.Close(ctx)
		return nil, fmt.Errorf("unsupported counters driver %q", cfg.Counters.Driver)
	}

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("counters", cfg.Counters.Driver).
		Msg("stores ready")

	return s, nil
}

// Health reports the state of each connected backend
func (s *Stores) Health(ctx context.Context) map[string]interface{} {
	out := map[string]interface{}{}
	if s.DB != nil {
		out["database"] = s.DB.Health(ctx)
	}
	if s.Mongo != nil {
		status := "healthy"
		if err := s.Mongo.Ping(ctx, nil); err != nil {
			status = "unhealthy"
		}
		out["mongo"] = map[string]string{"status": status}
	}
	return out
}

// Close releases every backend connection
func (s *Stores) Close(ctx context.Context) error {
	var errs []error
	if s.Mongo != nil {
		errs = append(errs, s.Mongo.Disconnect(ctx))
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return stderrors.Join(errs...)
}

// Services are the stock engine's components wired over one set of stores
type Services struct {
	Issuer      *service.SequenceIssuer
	Ledger      *service.Ledger
	Engine      *service.NotificationEngine
	Sweep       *service.Sweep
	Arrivals    *service.ArrivalService
	Production  *service.ProductionService
	Corrections *service.CorrectionService
	Catalogue   *service.Catalogue
}

// NewServices builds every service. publisher may be nil.
func NewServices(cfg *config.Config, stores *Stores, publisher *events.StockEventPublisher, log *logger.Logger) *Services {
	issuer := service.NewSequenceIssuer(stores.Counters, log)
	ledger := service.NewLedger(stores.Materials, log)
	engine := service.NewNotificationEngine(stores.Alerts, cfg.Alerts, publisher, log)

	return &Services{
		Issuer:      issuer,
		Ledger:      ledger,
		Engine:      engine,
		Sweep:       service.NewSweep(stores.Materials, stores.Batches, engine, publisher, cfg.Sweep.PageSize, log),
		Arrivals:    service.NewArrivalService(issuer, ledger, stores.Batches, engine, publisher, log),
		Production:  service.NewProductionService(issuer, ledger, stores.Batches, engine, publisher, log),
		Corrections: service.NewCorrectionService(issuer, ledger, stores.Movements, engine, publisher, log),
		Catalogue:   service.NewCatalogue(stores.Materials, engine, log),
	}
}
