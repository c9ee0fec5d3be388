package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	MemoriesCollection = "memories"
	TurnsCollection    = "turns"
	SessionsCollection = "sessions"
)

// Mongo is a connected MongoDB database.
type Mongo struct {
	client   *mongo.Client
	database *mongo.Database
	logger   *zap.Logger
}

// Connect dials uri, verifies the connection and selects dbName.
func Connect(ctx context.Context, uri, dbName string, logger *zap.Logger) (*Mongo, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb uri is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info("connected to mongodb", zap.String("database", dbName))
	return &Mongo{client: client, database: client.Database(dbName), logger: logger}, nil
}

func (m *Mongo) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

func (m *Mongo) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories query by.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		TurnsCollection: {
			{
				Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "index", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		MemoriesCollection: {
			{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "agent_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for name, models := range indexes {
		if _, err := m.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

// withRetry runs op up to attempts times with linear backoff between tries.
func withRetry(ctx context.Context, attempts int, backoff time.Duration, op func(context.Context) error) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return lastErr
}
