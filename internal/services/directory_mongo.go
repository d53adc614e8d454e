package services

import (
	"context"
	"fmt"

	"edu-notify/internal/database"
	"edu-notify/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDirectory reads users, courses and enrollments straight from the
// shared platform database.
type MongoDirectory struct {
	users       *mongo.Collection
	courses     *mongo.Collection
	enrollments *mongo.Collection
}

func NewMongoDirectory(db *database.MongoDB) *MongoDirectory {
	return &MongoDirectory{
		users:       db.Database.Collection(database.UsersCollection),
		courses:     db.Database.Collection(database.CoursesCollection),
		enrollments: db.Database.Collection(database.EnrollmentsCollection),
	}
}

func (d *MongoDirectory) ActiveUserIDs(ctx context.Context) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := d.users.Find(ctx, bson.M{"is_blocked": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		ids = append(ids, user.ID.Hex())
	}
	return ids, cursor.Err()
}

func (d *MongoDirectory) EnrolledUserIDs(ctx context.Context) ([]string, error) {
	values, err := d.enrollments.Distinct(ctx, "user_id", bson.M{"status": models.EnrollmentStatusActive})
	if err != nil {
		return nil, fmt.Errorf("failed to get enrolled users: %w", err)
	}
	return idStrings(values), nil
}

func (d *MongoDirectory) CourseExists(ctx context.Context, courseID string) (bool, error) {
	n, err := d.courses.CountDocuments(ctx, bson.M{"_id": idKey(courseID)}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check course: %w", err)
	}
	return n > 0, nil
}

func (d *MongoDirectory) CourseEnrolledUserIDs(ctx context.Context, courseID string) ([]string, error) {
	values, err := d.enrollments.Distinct(ctx, "user_id", bson.M{
		"course_id": idKey(courseID),
		"status":    models.EnrollmentStatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get course enrollments: %w", err)
	}
	return idStrings(values), nil
}

// idKey matches documents keyed either by ObjectID or by a plain string.
func idKey(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func idStrings(values []interface{}) []string {
	ids := make([]string, 0, len(values))
	for _, v := range values {
		switch id := v.(type) {
		case primitive.ObjectID:
			ids = append(ids, id.Hex())
		case string:
			ids = append(ids, id)
		}
	}
	return ids
}
