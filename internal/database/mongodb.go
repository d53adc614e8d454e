// internal/database/mongodb.go
package database

import (
	"context"
	"fmt"
	"time"

	"edu-notify/internal/config"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names shared by the store and the directory.
const (
	NotificationsCollection = "notifications"
	RecipientsCollection    = "notification_recipients"
	UsersCollection         = "users"
	CoursesCollection       = "courses"
	EnrollmentsCollection   = "enrollments"
)

type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
	log      logrus.FieldLogger
}

func NewMongoDB(cfg *config.Config, log logrus.FieldLogger) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.MongoTimeout)*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(cfg.MongoURI).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	log.WithField("database", cfg.DatabaseName).Info("connected to MongoDB")

	return &MongoDB{
		Client:   client,
		Database: client.Database(cfg.DatabaseName),
		log:      log,
	}, nil
}

// Ping checks the primary; used by the readiness probe.
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.Client.Ping(ctx, readpref.Primary())
}

func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect from MongoDB: %w", err)
	}

	m.log.Info("disconnected from MongoDB")
	return nil
}

// CreateIndexes creates the indexes for every collection the service reads.
// Keys use bson.D so compound index order is preserved.
func (m *MongoDB) CreateIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		NotificationsCollection: {
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "type", Value: 1}}},
		},
		RecipientsCollection: {
			{
				Keys:    bson.D{{Key: "notification_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				// Serves the per-user list, count and mark-all queries.
				Keys: bson.D{
					{Key: "user_id", Value: 1},
					{Key: "is_hidden", Value: 1},
					{Key: "created_at", Value: -1},
					{Key: "notification_id", Value: -1},
				},
			},
			{
				Keys: bson.D{
					{Key: "user_id", Value: 1},
					{Key: "is_hidden", Value: 1},
					{Key: "is_read", Value: 1},
				},
			},
		},
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "is_blocked", Value: 1}}},
		},
		EnrollmentsCollection: {
			{Keys: bson.D{{Key: "course_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		},
	}

	for _, name := range []string{NotificationsCollection, RecipientsCollection, UsersCollection, EnrollmentsCollection} {
		if _, err := m.Database.Collection(name).Indexes().CreateMany(ctx, indexes[name]); err != nil {
			return fmt.Errorf("create indexes for %s: %w", name, err)
		}
	}

	m.log.Info("MongoDB indexes created")
	return nil
}
