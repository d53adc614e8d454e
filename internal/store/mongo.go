package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edu-notify/internal/database"
	"edu-notify/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements NotificationStore on MongoDB. The envelope lives in
// the notifications collection; each recipient gets a membership document
// in notification_recipients that also carries its read state.
type MongoStore struct {
	db            *database.MongoDB
	notifications *mongo.Collection
	recipients    *mongo.Collection
	clock         *Clock
}

type recipientDoc struct {
	NotificationID string     `bson:"notification_id"`
	UserID         string     `bson:"user_id"`
	Type           string     `bson:"type"`
	CreatedAt      time.Time  `bson:"created_at"`
	IsHidden       bool       `bson:"is_hidden"`
	IsRead         bool       `bson:"is_read,omitempty"`
	ReadAt         *time.Time `bson:"read_at,omitempty"`
}

func NewMongoStore(db *database.MongoDB) *MongoStore {
	return &MongoStore{
		db:            db,
		notifications: db.Database.Collection(database.NotificationsCollection),
		recipients:    db.Database.Collection(database.RecipientsCollection),
		clock:         processClock,
	}
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *MongoStore) Close() error {
	return s.db.Close()
}

func (s *MongoStore) Create(ctx context.Context, n *models.Notification) (string, error) {
	if err := prepare(n, s.clock); err != nil {
		return "", err
	}

	// Envelope first: a membership row must never point at a missing envelope.
	if _, err := s.notifications.InsertOne(ctx, n); err != nil {
		return "", fmt.Errorf("insert notification: %w", err)
	}

	docs := make([]interface{}, 0, len(n.Recipients))
	for _, userID := range n.Recipients {
		docs = append(docs, recipientDoc{
			NotificationID: n.ID,
			UserID:         userID,
			Type:           string(n.Type),
			CreatedAt:      n.CreatedAt,
		})
	}

	opts := options.InsertMany().SetOrdered(false)
	if _, err := s.recipients.InsertMany(ctx, docs, opts); err != nil && !onlyDuplicates(err) {
		cleanup, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = s.recipients.DeleteMany(cleanup, bson.M{"notification_id": n.ID})
		_, _ = s.notifications.DeleteOne(cleanup, bson.M{"_id": n.ID})
		return "", fmt.Errorf("insert recipients: %w", err)
	}
	return n.ID, nil
}

// onlyDuplicates reports whether a bulk insert failed solely on duplicate
// (notification_id, user_id) keys, which are harmless.
func onlyDuplicates(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return true
}

func visibleFilter(userID string) bson.M {
	return bson.M{"user_id": userID, "is_hidden": false}
}

func unreadFilter(userID string) bson.M {
	f := visibleFilter(userID)
	f["is_read"] = bson.M{"$ne": true}
	return f
}

type listRow struct {
	IsRead       bool                `bson:"is_read"`
	ReadAt       *time.Time          `bson:"read_at"`
	Notification models.Notification `bson:"n"`
}

func (s *MongoStore) ListForUser(ctx context.Context, userID string, opts ListOptions) (*ListResult, error) {
	opts = opts.Normalize()

	filter := visibleFilter(userID)
	if opts.Type != "" {
		filter["type"] = string(opts.Type)
	}

	result := &ListResult{Page: opts.Page, PageSize: opts.PageSize, Items: []models.UserNotification{}}

	total, err := s.recipients.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}
	result.Total = total

	if result.Unread, err = s.recipients.CountDocuments(ctx, unreadFilter(userID)); err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "notification_id", Value: -1}}}},
		{{Key: "$skip", Value: opts.offset()}},
		{{Key: "$limit", Value: int64(opts.PageSize)}},
		{{Key: "$lookup", Value: bson.M{
			"from":         database.NotificationsCollection,
			"localField":   "notification_id",
			"foreignField": "_id",
			"as":           "n",
		}}},
		{{Key: "$unwind", Value: "$n"}},
		{{Key: "$project", Value: bson.M{"n.recipients": 0}}},
	}

	cursor, err := s.recipients.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row listRow
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		un := row.Notification.ViewFor()
		un.CreatedAt = un.CreatedAt.UTC()
		un.IsRead = row.IsRead
		if row.ReadAt != nil {
			t := row.ReadAt.UTC()
			un.ReadAt = &t
		}
		result.Items = append(result.Items, un)
	}
	return result, cursor.Err()
}

func (s *MongoStore) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.recipients.CountDocuments(ctx, unreadFilter(userID))
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, userID, notificationID string) error {
	filter := bson.M{"notification_id": notificationID, "user_id": userID, "is_hidden": false}
	// Pipeline update keeps the first read_at on repeated calls.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"is_read": true,
			"read_at": bson.M{"$ifNull": bson.A{"$read_at", time.Now().UTC()}},
		}}},
	}

	res, err := s.recipients.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mark notification %s as read: %w", notificationID, err)
	}
	if res.MatchedCount == 0 {
		return &models.NotFoundError{Resource: "notification", ID: notificationID}
	}
	return nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	filter := unreadFilter(userID)
	filter["created_at"] = bson.M{"$lte": s.clock.Now()}

	res, err := s.recipients.UpdateMany(ctx, filter, bson.M{
		"$set": bson.M{"is_read": true, "read_at": time.Now().UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("mark all notifications as read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) DeleteForUser(ctx context.Context, userID, notificationID string) error {
	filter := bson.M{"notification_id": notificationID, "user_id": userID, "is_hidden": false}
	res, err := s.recipients.UpdateOne(ctx, filter, bson.M{
		"$set":   bson.M{"is_hidden": true},
		"$unset": bson.M{"is_read": "", "read_at": ""},
	})
	if err != nil {
		return fmt.Errorf("hide notification %s: %w", notificationID, err)
	}
	if res.MatchedCount == 0 {
		return &models.NotFoundError{Resource: "notification", ID: notificationID}
	}
	return nil
}
