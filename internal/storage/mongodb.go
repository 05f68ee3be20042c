package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bosocmputer/swing_ocr/internal/common"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const runsCollection = "ocr_runs"

// MongoStore keeps run diagnostics in MongoDB.
type MongoStore struct {
	client *mongo.Client
	runs   *mongo.Collection
}

// ConnectMongo connects, pings and ensures the run indexes exist.
func ConnectMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{client: client, runs: client.Database(dbName).Collection(runsCollection)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	common.Logger().WithField("database", dbName).Info("connected to MongoDB")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.runs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", runsCollection, err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (s *MongoStore) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// SaveRun inserts or replaces the record with the same run id.
func (s *MongoStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	_, err := s.runs.ReplaceOne(ctx, bson.M{"_id": rec.RunID}, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRun returns ErrNotFound for unknown ids.
func (s *MongoStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	err := s.runs.FindOne(ctx, bson.M{"_id": runID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return &rec, nil
}

// RecentRuns lists a user's latest runs, newest first.
func (s *MongoStore) RecentRuns(ctx context.Context, userID string, limit int64) ([]RunRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := s.runs.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer cursor.Close(ctx)

	var out []RunRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode runs: %w", err)
	}
	return out, nil
}
