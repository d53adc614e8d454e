package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the subset of the account record the audience resolver reads.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Email     string             `bson:"email" json:"email"`
	Role      UserRole           `bson:"role" json:"role"`
	IsBlocked bool               `bson:"is_blocked" json:"is_blocked"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// Course is owned by the catalog service; only existence is checked here.
type Course struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Title       string             `bson:"title" json:"title"`
	IsPublished bool               `bson:"is_published" json:"is_published"`
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID     primitive.ObjectID `bson:"user_id" json:"user_id"`
	CourseID   primitive.ObjectID `bson:"course_id" json:"course_id"`
	Status     string             `bson:"status" json:"status"`
	EnrolledAt time.Time          `bson:"enrolled_at" json:"enrolled_at"`
}

const EnrollmentStatusActive = "active"
