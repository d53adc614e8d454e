// Package store persists notifications and per-recipient read state.
package store

import (
	"context"
	"strings"

	"edu-notify/internal/models"
	"edu-notify/pkg/validator"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NotificationStore is the durable source of truth for delivery. Live pushes
// are an optimization on top of it.
type NotificationStore interface {
	// Create validates n, assigns its ID and CreatedAt, and persists the
	// envelope together with one membership row per recipient.
	Create(ctx context.Context, n *models.Notification) (string, error)
	ListForUser(ctx context.Context, userID string, opts ListOptions) (*ListResult, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	// MarkRead is idempotent. It returns a NotFoundError when the user is not
	// a visible recipient of the notification.
	MarkRead(ctx context.Context, userID, notificationID string) error
	// MarkAllRead marks every visible unread notification created up to the
	// moment of the call and returns how many rows changed.
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	// DeleteForUser hides the notification from userID only.
	DeleteForUser(ctx context.Context, userID, notificationID string) error
	Ping(ctx context.Context) error
	Close() error
}

type ListOptions struct {
	Page     int
	PageSize int
	Type     models.NotificationType
}

// Normalize clamps paging to page >= 1 and pageSize in [1, MaxPageSize].
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	switch {
	case o.PageSize <= 0:
		o.PageSize = DefaultPageSize
	case o.PageSize > MaxPageSize:
		o.PageSize = MaxPageSize
	}
	return o
}

func (o ListOptions) offset() int64 {
	return int64(o.Page-1) * int64(o.PageSize)
}

type ListResult struct {
	Items    []models.UserNotification
	Total    int64
	Unread   int64 // over the whole visible set, ignoring the type filter
	Page     int
	PageSize int
}

func (r *ListResult) Pages() int64 {
	if r.PageSize <= 0 {
		return 0
	}
	return (r.Total + int64(r.PageSize) - 1) / int64(r.PageSize)
}

// prepare validates the envelope and stamps it with an id and a creation time
// taken from the process clock.
func prepare(n *models.Notification, clock *Clock) error {
	if n == nil {
		return &models.ValidationError{Reason: "notification is required"}
	}
	n.Title = strings.TrimSpace(n.Title)
	n.Message = strings.TrimSpace(n.Message)
	if n.Priority == "" {
		n.Priority = models.PriorityMedium
	}

	if err := validator.Struct(n); err != nil {
		return err
	}
	if !n.Type.Valid() {
		return &models.ValidationError{Field: "type", Reason: "unknown notification type"}
	}
	if !n.Priority.Valid() {
		return &models.ValidationError{Field: "priority", Reason: "must be one of low, medium, high, urgent"}
	}
	if err := n.Audience.Validate(); err != nil {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	n.ID = id.String()
	n.CreatedAt = clock.Next()
	return nil
}
