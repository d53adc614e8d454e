package services

import (
	"context"
	"errors"
	"sync"

	"edu-notify/internal/models"
)

type fakeDirectory struct {
	mu          sync.Mutex
	active      []string
	enrollments map[string][]string // courseID -> userIDs
	err         error
	calls       int
}

func (d *fakeDirectory) ActiveUserIDs(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return append([]string(nil), d.active...), d.err
}

func (d *fakeDirectory) EnrolledUserIDs(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	var ids []string
	for _, users := range d.enrollments {
		ids = append(ids, users...)
	}
	return ids, d.err
}

func (d *fakeDirectory) CourseExists(_ context.Context, courseID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	_, ok := d.enrollments[courseID]
	return ok, d.err
}

func (d *fakeDirectory) CourseEnrolledUserIDs(_ context.Context, courseID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return append([]string(nil), d.enrollments[courseID]...), d.err
}

func (d *fakeDirectory) enroll(courseID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enrollments[courseID] = append(d.enrollments[courseID], userID)
}

var errDirectoryDown = errors.New("directory unavailable")

type recordingChannel struct {
	id, user string
	fail     bool

	mu     sync.Mutex
	events []models.LiveEvent
}

func (c *recordingChannel) ID() string     { return c.id }
func (c *recordingChannel) UserID() string { return c.user }
func (c *recordingChannel) Close()         {}

func (c *recordingChannel) Push(e models.LiveEvent) error {
	if c.fail {
		return models.ErrTransientDelivery
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *recordingChannel) received() []models.LiveEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.LiveEvent(nil), c.events...)
}
