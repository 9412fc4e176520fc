package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/jwalitptl/patient-records/internal/config"
)

const (
	indexPatientCode = "uniq_patientCode"
	indexEmail       = "uniq_email"
)

// NewClient connects to MongoDB and verifies the connection.
func NewClient(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, nil
}

// EnsureIndexes creates the unique and lookup indexes. Safe to call on
// every start.
func EnsureIndexes(ctx context.Context, coll *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "patientCode", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(indexPatientCode),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(indexEmail),
		},
	}
	for _, field := range []string{"firstName", "lastName", "nearestCity", "assignedDoctor", "guardianName"} {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}})
	}

	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
