package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"edu-notify/internal/models"
	"edu-notify/internal/store"
	"edu-notify/internal/websocket"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const DefaultFanoutWorkers = 32

// SessionLookup is the part of the connection registry the broadcaster uses.
type SessionLookup interface {
	SessionsFor(userID string) []websocket.Channel
}

// SendRequest is an administrative send action.
type SendRequest struct {
	Type       models.NotificationType
	Title      string
	Message    string
	Priority   models.Priority
	Audience   models.AudienceDescriptor
	ActionURL  string
	ActionText string
	Data       map[string]interface{}
	CreatedBy  string
}

type SendResult struct {
	NotificationID  string `json:"notificationId"`
	RecipientsCount int    `json:"recipientsCount"`
}

// Broadcaster persists a notification for its resolved audience and then
// pushes it to whichever recipients are connected.
type Broadcaster struct {
	resolver *AudienceResolver
	store    store.NotificationStore
	sessions SessionLookup
	metrics  *Metrics
	workers  int
	log      logrus.FieldLogger
}

func NewBroadcaster(resolver *AudienceResolver, st store.NotificationStore, sessions SessionLookup, metrics *Metrics, workers int, log logrus.FieldLogger) *Broadcaster {
	if workers <= 0 {
		workers = DefaultFanoutWorkers
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Broadcaster{
		resolver: resolver,
		store:    st,
		sessions: sessions,
		metrics:  metrics,
		workers:  workers,
		log:      log.WithField("component", "broadcaster"),
	}
}

func (b *Broadcaster) Metrics() *Metrics { return b.metrics }

// Send either fails without side effects or returns the persisted id and the
// size of the target set. Live push failures never reach the caller.
func (b *Broadcaster) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	recipients, err := b.resolver.Resolve(ctx, req.Audience)
	if err != nil {
		return nil, b.failed(err, "resolve audience")
	}

	n := &models.Notification{
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		Priority:   req.Priority,
		Audience:   req.Audience,
		Recipients: recipients,
		ActionURL:  req.ActionURL,
		ActionText: req.ActionText,
		Data:       req.Data,
		CreatedBy:  req.CreatedBy,
	}
	id, err := b.store.Create(ctx, n)
	if err != nil {
		return nil, b.failed(err, "persist notification")
	}

	b.metrics.NotificationsSent.Add(1)
	b.metrics.RecipientsTargeted.Add(int64(len(recipients)))

	delivered, dropped := b.fanOut(n)

	b.log.WithFields(logrus.Fields{
		"notification_id": id,
		"type":            n.Type,
		"audience":        n.Audience.Kind,
		"recipients":      len(recipients),
		"pushed":          delivered,
		"dropped":         dropped,
	}).Info("notification sent")

	return &SendResult{NotificationID: id, RecipientsCount: len(recipients)}, nil
}

// fanOut pushes the event to every live session of every recipient. Pushes
// never block, so a slow client only costs its own event.
func (b *Broadcaster) fanOut(n *models.Notification) (delivered, dropped int64) {
	event := models.LiveEvent{Type: models.EventTypeFor(n.Type), Data: n.ViewFor()}

	var g errgroup.Group
	g.SetLimit(b.workers)

	var pushed, failed atomic.Int64
	for _, userID := range n.Recipients {
		sessions := b.sessions.SessionsFor(userID)
		if len(sessions) == 0 {
			continue
		}
		g.Go(func() error {
			for _, ch := range sessions {
				if err := ch.Push(event); err != nil {
					failed.Add(1)
					b.metrics.PushesDropped.Add(1)
					b.log.WithError(err).WithFields(logrus.Fields{
						"notification_id": n.ID,
						"user_id":         userID,
						"session_id":      ch.ID(),
					}).Warn("live push dropped")
					continue
				}
				pushed.Add(1)
				b.metrics.PushesDelivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return pushed.Load(), failed.Load()
}

func validateRequest(req *SendRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)

	switch {
	case !req.Type.Valid():
		return &models.ValidationError{Field: "type", Reason: "unknown notification type"}
	case req.Title == "":
		return &models.ValidationError{Field: "title", Reason: "is required"}
	case req.Message == "":
		return &models.ValidationError{Field: "message", Reason: "is required"}
	}
	if req.Priority == "" {
		req.Priority = models.PriorityMedium
	}
	if !req.Priority.Valid() {
		return &models.ValidationError{Field: "priority", Reason: "must be one of low, medium, high, urgent"}
	}
	return req.Audience.Validate()
}

// failed counts and logs server-side failures. Rejected requests (bad input,
// unknown course) are returned untouched.
func (b *Broadcaster) failed(err error, stage string) error {
	if isClientError(err) {
		return err
	}
	b.metrics.SendFailures.Add(1)
	b.log.WithError(err).WithField("stage", stage).Error("send failed")
	return err
}

func isClientError(err error) bool {
	return errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrNotFound)
}
