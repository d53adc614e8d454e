package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Metrics tracks delivery statistics
type Metrics struct {
	NotificationsSent  atomic.Int64
	RecipientsTargeted atomic.Int64
	PushesDelivered    atomic.Int64
	PushesDropped      atomic.Int64
	SendFailures       atomic.Int64

	StartTime time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{StartTime: time.Now()}
}

type MetricsSnapshot struct {
	UptimeSeconds      int64 `json:"uptimeSeconds"`
	NotificationsSent  int64 `json:"notificationsSent"`
	RecipientsTargeted int64 `json:"recipientsTargeted"`
	PushesDelivered    int64 `json:"pushesDelivered"`
	PushesDropped      int64 `json:"pushesDropped"`
	SendFailures       int64 `json:"sendFailures"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:      int64(time.Since(m.StartTime).Seconds()),
		NotificationsSent:  m.NotificationsSent.Load(),
		RecipientsTargeted: m.RecipientsTargeted.Load(),
		PushesDelivered:    m.PushesDelivered.Load(),
		PushesDropped:      m.PushesDropped.Load(),
		SendFailures:       m.SendFailures.Load(),
	}
}

// LogMetricsPeriodically logs a snapshot every interval until ctx is done,
// then logs a final one.
func LogMetricsPeriodically(ctx context.Context, m *Metrics, log logrus.FieldLogger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			LogMetrics(m, log)
			return
		case <-ticker.C:
			LogMetrics(m, log)
		}
	}
}

func LogMetrics(m *Metrics, log logrus.FieldLogger) {
	s := m.Snapshot()
	log.WithFields(logrus.Fields{
		"uptime_s":            s.UptimeSeconds,
		"notifications_sent":  s.NotificationsSent,
		"recipients_targeted": s.RecipientsTargeted,
		"pushes_delivered":    s.PushesDelivered,
		"pushes_dropped":      s.PushesDropped,
		"send_failures":       s.SendFailures,
	}).Info("delivery metrics")
}
