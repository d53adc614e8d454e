package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"edu-notify/internal/logger"
	"edu-notify/internal/models"
	"edu-notify/internal/store"
	"edu-notify/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcastFixture struct {
	dir         *fakeDirectory
	store       *store.SQLiteStore
	registry    *websocket.Registry
	broadcaster *Broadcaster
}

func newBroadcastFixture(t *testing.T, users int) *broadcastFixture {
	t.Helper()
	dir := &fakeDirectory{enrollments: map[string][]string{}}
	for i := 0; i < users; i++ {
		dir.active = append(dir.active, fmt.Sprintf("user-%03d", i))
	}

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	registry := websocket.NewRegistry()
	b := NewBroadcaster(NewAudienceResolver(dir), st, registry, NewMetrics(), 4, logger.Discard())
	return &broadcastFixture{dir: dir, store: st, registry: registry, broadcaster: b}
}

func (f *broadcastFixture) connect(userID, sessionID string) *recordingChannel {
	ch := &recordingChannel{id: sessionID, user: userID}
	f.registry.Register(userID, sessionID, ch)
	return ch
}

func TestSendToAllWithSomeConnected(t *testing.T) {
	f := newBroadcastFixture(t, 100)
	ctx := context.Background()

	online := []*recordingChannel{
		f.connect("user-001", "s1"),
		f.connect("user-050", "s2"),
		f.connect("user-099", "s3"),
	}

	res, err := f.broadcaster.Send(ctx, SendRequest{
		Type:     models.NotificationTypeSystemAnnouncement,
		Title:    "Maintenance",
		Message:  "Platform will be down at 02:00",
		Audience: models.AudienceDescriptor{Kind: models.AudienceAll},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, res.RecipientsCount)
	require.NotEmpty(t, res.NotificationID)

	for _, ch := range online {
		events := ch.received()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventNewNotification, events[0].Type)
		assert.Equal(t, res.NotificationID, events[0].Data.ID)
		assert.False(t, events[0].Data.IsRead)
	}

	for _, user := range []string{"user-000", "user-001", "user-042"} {
		list, err := f.store.ListForUser(ctx, user, store.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list.Items, 1)
		assert.Equal(t, res.NotificationID, list.Items[0].ID)
		assert.False(t, list.Items[0].IsRead)
	}

	require.NoError(t, f.store.MarkRead(ctx, "user-001", res.NotificationID))
	count, err := f.store.UnreadCount(ctx, "user-001")
	require.NoError(t, err)
	assert.Zero(t, count)
	count, err = f.store.UnreadCount(ctx, "user-050")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	snap := f.broadcaster.Metrics().Snapshot()
	assert.EqualValues(t, 1, snap.NotificationsSent)
	assert.EqualValues(t, 100, snap.RecipientsTargeted)
	assert.EqualValues(t, 3, snap.PushesDelivered)
}

func TestSendCourseNotificationUsesCourseEvent(t *testing.T) {
	f := newBroadcastFixture(t, 0)
	f.dir.enroll("go-101", "student")
	ch := f.connect("student", "s1")

	_, err := f.broadcaster.Send(context.Background(), SendRequest{
		Type:     models.NotificationTypeNewCourseAvailable,
		Title:    "Go 102 is out",
		Message:  "Continue where Go 101 left off",
		Audience: models.AudienceDescriptor{Kind: models.AudienceCourse, CourseID: "go-101"},
		Data:     map[string]interface{}{"courseId": "go-102"},
	})
	require.NoError(t, err)

	events := ch.received()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventNewCourseAvailable, events[0].Type)
	assert.Equal(t, "go-102", events[0].Data.Data["courseId"])
}

func TestSendIsolatesFailingChannels(t *testing.T) {
	f := newBroadcastFixture(t, 3)
	dead := &recordingChannel{id: "dead", user: "user-000", fail: true}
	f.registry.Register("user-000", "dead", dead)
	healthySameUser := f.connect("user-000", "alive")
	other := f.connect("user-002", "s2")

	res, err := f.broadcaster.Send(context.Background(), SendRequest{
		Type:     models.NotificationTypeSystemAnnouncement,
		Title:    "Hello",
		Message:  "World",
		Audience: models.AudienceDescriptor{Kind: models.AudienceAll},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.RecipientsCount)

	assert.Len(t, healthySameUser.received(), 1)
	assert.Len(t, other.received(), 1)
	assert.EqualValues(t, 1, f.broadcaster.Metrics().PushesDropped.Load())
}

func TestSendFailuresPersistNothing(t *testing.T) {
	f := newBroadcastFixture(t, 2)
	ch := f.connect("user-000", "s1")
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func()
		req   SendRequest
		want  error
	}{
		{
			name: "empty title",
			req: SendRequest{
				Type: models.NotificationTypeSystemAnnouncement, Message: "x",
				Audience: models.AudienceDescriptor{Kind: models.AudienceAll},
			},
			want: models.ErrValidation,
		},
		{
			name: "unknown course",
			req: SendRequest{
				Type: models.NotificationTypeNewCourseAvailable, Title: "t", Message: "m",
				Audience: models.AudienceDescriptor{Kind: models.AudienceCourse, CourseID: "nope"},
			},
			want: models.ErrNotFound,
		},
		{
			name:  "directory down",
			setup: func() { f.dir.err = errDirectoryDown },
			req: SendRequest{
				Type: models.NotificationTypeSystemAnnouncement, Title: "t", Message: "m",
				Audience: models.AudienceDescriptor{Kind: models.AudienceAll},
			},
			want: errDirectoryDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			res, err := f.broadcaster.Send(ctx, tt.req)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	count, err := f.store.UnreadCount(ctx, "user-000")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, ch.received())
	// Only the directory outage is a server failure.
	assert.Equal(t, int64(1), f.broadcaster.Metrics().SendFailures.Load())
}

func TestSnapshotImmutability(t *testing.T) {
	f := newBroadcastFixture(t, 0)
	f.dir.enroll("go-101", "early")
	ctx := context.Background()

	res, err := f.broadcaster.Send(ctx, SendRequest{
		Type:     models.NotificationTypeCourseEnrollment,
		Title:    "Week 1 materials",
		Message:  "Available now",
		Audience: models.AudienceDescriptor{Kind: models.AudienceCourse, CourseID: "go-101"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecipientsCount)

	f.dir.enroll("go-101", "late")

	late, err := f.store.ListForUser(ctx, "late", store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, late.Items)
	assert.True(t, errors.Is(f.store.MarkRead(ctx, "late", res.NotificationID), models.ErrNotFound))

	early, err := f.store.ListForUser(ctx, "early", store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, early.Items, 1)
}
