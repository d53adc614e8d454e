package models

import (
	"time"
)

// NotificationType is the closed set of notification kinds.
type NotificationType string

const (
	NotificationTypeNewCourseAvailable NotificationType = "new_course_available"
	NotificationTypeCourseEnrollment   NotificationType = "course_enrollment"
	NotificationTypePaymentSuccess     NotificationType = "payment_success"
	NotificationTypeSystemAnnouncement NotificationType = "system_announcement"
)

// AllNotificationTypes returns every notification type in display order.
func AllNotificationTypes() []NotificationType {
	return []NotificationType{
		NotificationTypeNewCourseAvailable,
		NotificationTypeCourseEnrollment,
		NotificationTypePaymentSuccess,
		NotificationTypeSystemAnnouncement,
	}
}

func (t NotificationType) Valid() bool {
	_, ok := t.Presentation()
	return ok
}

// Presentation describes how a client renders a notification type.
type Presentation struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Label string `json:"label"`
}

// Presentation returns the rendering hints for t. Every NotificationType
// constant must have a case here; the models tests enforce it.
func (t NotificationType) Presentation() (Presentation, bool) {
	switch t {
	case NotificationTypeNewCourseAvailable:
		return Presentation{Icon: "book-open", Color: "#2196F3", Label: "New course"}, true
	case NotificationTypeCourseEnrollment:
		return Presentation{Icon: "user-check", Color: "#4CAF50", Label: "Enrollment"}, true
	case NotificationTypePaymentSuccess:
		return Presentation{Icon: "credit-card", Color: "#009688", Label: "Payment"}, true
	case NotificationTypeSystemAnnouncement:
		return Presentation{Icon: "megaphone", Color: "#FF9800", Label: "Announcement"}, true
	}
	return Presentation{}, false
}

// Priority is informational only and never affects delivery order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// AudienceKind selects how recipients are resolved at send time.
type AudienceKind string

const (
	AudienceAll      AudienceKind = "all"
	AudienceEnrolled AudienceKind = "enrolled"
	AudienceCourse   AudienceKind = "course"
)

// AudienceDescriptor is the targeting request as submitted by the sender.
// It is stored for audit only; recipients are never recomputed from it.
type AudienceDescriptor struct {
	Kind     AudienceKind `bson:"kind" json:"kind"`
	CourseID string       `bson:"course_id,omitempty" json:"course_id,omitempty"`
}

func (d AudienceDescriptor) Validate() error {
	switch d.Kind {
	case AudienceAll, AudienceEnrolled:
		return nil
	case AudienceCourse:
		if d.CourseID == "" {
			return &ValidationError{Field: "courseId", Reason: "required when targetAudience is course"}
		}
		return nil
	}
	return &ValidationError{Field: "targetAudience", Reason: "must be one of all, enrolled, course"}
}

// Notification is the immutable envelope persisted once per send action.
type Notification struct {
	ID         string                 `bson:"_id" json:"id"`
	Type       NotificationType       `bson:"type" json:"type" validate:"required"`
	Title      string                 `bson:"title" json:"title" validate:"required,max=200"`
	Message    string                 `bson:"message" json:"message" validate:"required,max=2000"`
	Priority   Priority               `bson:"priority" json:"priority"`
	Audience   AudienceDescriptor     `bson:"audience" json:"audience"`
	Recipients []string               `bson:"recipients" json:"-" validate:"required,min=1,dive,required"`
	ActionURL  string                 `bson:"action_url,omitempty" json:"actionUrl,omitempty" validate:"omitempty,max=500"`
	ActionText string                 `bson:"action_text,omitempty" json:"actionText,omitempty" validate:"omitempty,max=100"`
	Data       map[string]interface{} `bson:"data,omitempty" json:"data,omitempty"`
	CreatedBy  string                 `bson:"created_by,omitempty" json:"createdBy,omitempty"`
	CreatedAt  time.Time              `bson:"created_at" json:"createdAt"`
}

// UserNotification is a notification as seen by one recipient.
type UserNotification struct {
	ID         string                 `json:"id"`
	Type       NotificationType       `json:"type"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Priority   Priority               `json:"priority"`
	ActionURL  string                 `json:"actionUrl,omitempty"`
	ActionText string                 `json:"actionText,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	IsRead     bool                   `json:"isRead"`
	ReadAt     *time.Time             `json:"readAt,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// ViewFor projects the envelope into the unread view every recipient starts with.
func (n *Notification) ViewFor() UserNotification {
	return UserNotification{
		ID:         n.ID,
		Type:       n.Type,
		Title:      n.Title,
		Message:    n.Message,
		Priority:   n.Priority,
		ActionURL:  n.ActionURL,
		ActionText: n.ActionText,
		Data:       n.Data,
		CreatedAt:  n.CreatedAt,
	}
}

// Before reports whether a sorts before b in a recipient's list
// (createdAt descending, then id descending).
func (a UserNotification) Before(b UserNotification) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// Live channel event types.
const (
	EventNewNotification    = "new_notification"
	EventNewCourseAvailable = "new_course_available"
)

// LiveEvent is the server→client envelope on the live channel.
type LiveEvent struct {
	Type string           `json:"type"`
	Data UserNotification `json:"data"`
}

// EventTypeFor picks the live event type for a notification type.
func EventTypeFor(t NotificationType) string {
	if t == NotificationTypeNewCourseAvailable {
		return EventNewCourseAvailable
	}
	return EventNewNotification
}
