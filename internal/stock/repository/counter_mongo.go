package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/config"
	"github.com/harvestline/harvestline-backend/pkg/errors"
)

const colCounters = "counters"

// MongoCounterRepository is the MongoDB-backed counter store. Each counter
// is one document {_id: name, value: n}.
type MongoCounterRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo opens a client for the configured deployment and verifies it
func ConnectMongo(ctx context.Context, cfg *config.MongoConfig) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("stock/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("stock/mongo: ping: %w", err)
	}
	return client, nil
}

// NewMongoCounterRepository creates a counter store on the given database
func NewMongoCounterRepository(client *mongo.Client, database string) *MongoCounterRepository {
	return &MongoCounterRepository{
		client: client,
		coll:   client.Database(database).Collection(colCounters),
	}
}

// Next increments the named counter in one findAndModify. A racing first
// upsert on a fresh counter can fail with a duplicate key; that attempt
// did not commit, so it is retried once and then finds the document.
func (r *MongoCounterRepository) Next(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.BadRequest("counter name is required")
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var (
		counter domain.Counter
		err     error
	)
	for attempt := 0; attempt < 2; attempt++ {
		err = r.coll.FindOneAndUpdate(ctx,
			bson.M{"_id": name},
			bson.M{"$inc": bson.M{"value": int64(1)}},
			opts,
		).Decode(&counter)
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	if err != nil {
		return 0, classifyMongoWrite(fmt.Errorf("stock/mongo: increment counter %s: %w", name, err))
	}
	return counter.Value, nil
}

// Current returns the last issued value, zero for an unseen counter
func (r *MongoCounterRepository) Current(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.BadRequest("counter name is required")
	}

	var counter domain.Counter
	err := r.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&counter)
	if stderrors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, classifyMongoRead(fmt.Errorf("stock/mongo: read counter %s: %w", name, err))
	}
	return counter.Value, nil
}

// Ping checks connectivity
func (r *MongoCounterRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close disconnects the client
func (r *MongoCounterRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// classifyMongoWrite treats a timeout or dropped connection as an unknown
// outcome: the increment may have committed before the reply was lost.
func classifyMongoWrite(err error) error {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return errors.OutcomeUnknown(err)
	}
	return err
}

func classifyMongoRead(err error) error {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return errors.Retryable(err)
	}
	return err
}
