package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/otapush/acquisition/internal/models"
)

const deploymentsCollection = "deployments"

// MongoConfig holds configuration for the MongoDB storage backend.
type MongoConfig struct {
	// URI is the MongoDB connection string.
	URI string

	// Database is the database holding the deployments collection.
	Database string

	// OperationTimeout bounds each storage operation.
	OperationTimeout time.Duration
}

// DefaultMongoConfig returns a MongoConfig with sensible defaults.
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:              "mongodb://localhost:27017",
		Database:         "otapush",
		OperationTimeout: 5 * time.Second,
	}
}

// deploymentDocument is the persisted shape of one deployment channel.
// The management surface writes these; the acquisition service reads the
// packages array as the release history, oldest first.
type deploymentDocument struct {
	Key      string           `bson:"key"`
	Name     string           `bson:"name,omitempty"`
	Packages []models.Release `bson:"packages"`
}

// MongoStorage implements Storage over a MongoDB deployments collection.
type MongoStorage struct {
	client *mongo.Client
	col    *mongo.Collection
	config *MongoConfig
	logger *zap.Logger
}

// NewMongoStorage connects to MongoDB and prepares the deployments
// collection, creating the unique index on the deployment key.
func NewMongoStorage(ctx context.Context, cfg *MongoConfig, logger *zap.Logger) (*MongoStorage, error) {
	if cfg == nil {
		cfg = DefaultMongoConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	s := &MongoStorage{
		client: client,
		col:    client.Database(cfg.Database).Collection(deploymentsCollection),
		config: cfg,
		logger: logger,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStorage) ensureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create deployment key index: %w", err)
	}
	return nil
}

// GetPackageHistory loads the release history of one deployment.
func (s *MongoStorage) GetPackageHistory(ctx context.Context, deploymentKey string) ([]models.Release, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	var doc deploymentDocument
	err := s.col.FindOne(ctx, bson.M{"key": deploymentKey}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load package history: %w", err)
	}
	return doc.Packages, nil
}

// Health pings the primary.
func (s *MongoStorage) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.OperationTimeout)
	defer cancel()

	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.OperationTimeout)
	defer cancel()

	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
