package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"edu-notify/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func envelope(title string, recipients ...string) *models.Notification {
	return &models.Notification{
		Type:       models.NotificationTypeSystemAnnouncement,
		Title:      title,
		Message:    "body of " + title,
		Audience:   models.AudienceDescriptor{Kind: models.AudienceAll},
		Recipients: recipients,
	}
}

func mustCreate(t *testing.T, s NotificationStore, n *models.Notification) string {
	t.Helper()
	id, err := s.Create(context.Background(), n)
	require.NoError(t, err)
	return id
}

func TestCreateAssignsIDAndTime(t *testing.T) {
	s := newTestStore(t)
	n := envelope("hello", "u1")

	id := mustCreate(t, s, n)

	assert.NotEmpty(t, id)
	assert.Equal(t, id, n.ID)
	assert.False(t, n.CreatedAt.IsZero())
	assert.Equal(t, models.PriorityMedium, n.Priority)
}

func TestCreateRejectsInvalidEnvelope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		n     *models.Notification
		field string
	}{
		{"empty title", envelope("", "u1"), "title"},
		{"blank title", envelope("   ", "u1"), "title"},
		{"no recipients", envelope("x"), "Recipients"},
		{"bad type", func() *models.Notification {
			n := envelope("x", "u1")
			n.Type = "weird"
			return n
		}(), "type"},
		{"bad priority", func() *models.Notification {
			n := envelope("x", "u1")
			n.Priority = "critical"
			return n
		}(), "priority"},
		{"course without id", func() *models.Notification {
			n := envelope("x", "u1")
			n.Audience = models.AudienceDescriptor{Kind: models.AudienceCourse}
			return n
		}(), "courseId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.n)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrValidation))

			var verr *models.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	count, err := s.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListForUserOrderingAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, mustCreate(t, s, envelope(fmt.Sprintf("n%d", i), "u1", "u2")))
	}
	mustCreate(t, s, envelope("other", "u3"))

	page1, err := s.ListForUser(ctx, "u1", ListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, page1.Total)
	assert.EqualValues(t, 5, page1.Unread)
	assert.EqualValues(t, 3, page1.Pages())
	require.Len(t, page1.Items, 2)
	assert.Equal(t, ids[4], page1.Items[0].ID)
	assert.Equal(t, ids[3], page1.Items[1].ID)

	page3, err := s.ListForUser(ctx, "u1", ListOptions{Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page3.Items, 1)
	assert.Equal(t, ids[0], page3.Items[0].ID)

	all, err := s.ListForUser(ctx, "u1", ListOptions{})
	require.NoError(t, err)
	for i := 1; i < len(all.Items); i++ {
		assert.True(t, all.Items[i-1].Before(all.Items[i]))
	}
	assert.Equal(t, "body of n4", all.Items[0].Message)
	assert.False(t, all.Items[0].IsRead)
}

func TestListForUserTypeFilterKeepsGlobalUnread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, envelope("announcement", "u1"))
	course := envelope("course", "u1")
	course.Type = models.NotificationTypeNewCourseAvailable
	course.Data = map[string]interface{}{"courseSlug": "go-101"}
	mustCreate(t, s, course)

	res, err := s.ListForUser(ctx, "u1", ListOptions{Type: models.NotificationTypeNewCourseAvailable})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Total)
	assert.EqualValues(t, 2, res.Unread)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "go-101", res.Items[0].Data["courseSlug"])
}

func TestNormalizeClampsPaging(t *testing.T) {
	assert.Equal(t, ListOptions{Page: 1, PageSize: DefaultPageSize}, ListOptions{Page: -3}.Normalize())
	assert.Equal(t, ListOptions{Page: 2, PageSize: MaxPageSize}, ListOptions{Page: 2, PageSize: 1000}.Normalize())
}

func TestMarkReadIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, envelope("x", "u1", "u2"))

	require.NoError(t, s.MarkRead(ctx, "u1", id))
	first, err := s.ListForUser(ctx, "u1", ListOptions{})
	require.NoError(t, err)
	require.NotNil(t, first.Items[0].ReadAt)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.MarkRead(ctx, "u1", id))
	second, err := s.ListForUser(ctx, "u1", ListOptions{})
	require.NoError(t, err)

	assert.True(t, second.Items[0].IsRead)
	assert.Equal(t, *first.Items[0].ReadAt, *second.Items[0].ReadAt)
	assert.Zero(t, second.Unread)

	other, err := s.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, other)
}

func TestMarkReadRequiresVisibleRecipient(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, envelope("x", "u1"))

	err := s.MarkRead(ctx, "intruder", id)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	err = s.MarkRead(ctx, "u1", "missing")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestMarkAllRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := mustCreate(t, s, envelope("a", "u1"))
	mustCreate(t, s, envelope("b", "u1"))
	mustCreate(t, s, envelope("c", "u1", "u2"))
	require.NoError(t, s.MarkRead(ctx, "u1", first))

	updated, err := s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)

	count, err := s.UnreadCount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = s.UnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	again, err := s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestMarkAllReadConcurrentWithCreate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		mustCreate(t, s, envelope(fmt.Sprintf("pre%d", i), "u1"))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			_, err := s.Create(ctx, envelope(fmt.Sprintf("during%d", i), "u1"))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		_, err := s.MarkAllRead(ctx, "u1")
		assert.NoError(t, err)
	}()
	wg.Wait()

	res, err := s.ListForUser(ctx, "u1", ListOptions{PageSize: MaxPageSize})
	require.NoError(t, err)
	assert.EqualValues(t, 20, res.Total)

	var unread int64
	for _, item := range res.Items {
		if !item.IsRead {
			unread++
			assert.Nil(t, item.ReadAt)
		} else {
			assert.NotNil(t, item.ReadAt)
		}
		if item.Title[:3] == "pre" {
			assert.True(t, item.IsRead, item.Title)
		}
	}
	assert.Equal(t, unread, res.Unread)
}

func TestDeleteForUserHidesOnlyForCaller(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCreate(t, s, envelope("x", "u1", "u2"))
	require.NoError(t, s.MarkRead(ctx, "u1", id))

	require.NoError(t, s.DeleteForUser(ctx, "u1", id))

	mine, err := s.ListForUser(ctx, "u1", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, mine.Items)
	assert.Zero(t, mine.Total)

	theirs, err := s.ListForUser(ctx, "u2", ListOptions{})
	require.NoError(t, err)
	require.Len(t, theirs.Items, 1)
	assert.Equal(t, id, theirs.Items[0].ID)

	assert.True(t, errors.Is(s.DeleteForUser(ctx, "u1", id), models.ErrNotFound))
	assert.True(t, errors.Is(s.MarkRead(ctx, "u1", id), models.ErrNotFound))

	updated, err := s.MarkAllRead(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestConcurrentCreatesKeepTotalOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(ctx, envelope(fmt.Sprintf("n%d", i), "u1"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	res, err := s.ListForUser(ctx, "u1", ListOptions{PageSize: MaxPageSize})
	require.NoError(t, err)
	require.Len(t, res.Items, 20)
	seen := map[int64]bool{}
	for i, item := range res.Items {
		ms := item.CreatedAt.UnixMilli()
		assert.False(t, seen[ms], "createdAt must be unique")
		seen[ms] = true
		if i > 0 {
			assert.True(t, res.Items[i-1].CreatedAt.After(item.CreatedAt))
		}
	}
}
