package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryNotificationTypeHasPresentation(t *testing.T) {
	seen := map[string]bool{}
	for _, nt := range AllNotificationTypes() {
		p, ok := nt.Presentation()
		require.True(t, ok, "missing presentation for %s", nt)
		assert.NotEmpty(t, p.Icon)
		assert.NotEmpty(t, p.Color)
		assert.False(t, seen[p.Icon], "icon %s reused", p.Icon)
		seen[p.Icon] = true
	}

	assert.False(t, NotificationType("message").Valid())
}

func TestAudienceDescriptorValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      AudienceDescriptor
		wantErr bool
	}{
		{"all", AudienceDescriptor{Kind: AudienceAll}, false},
		{"enrolled", AudienceDescriptor{Kind: AudienceEnrolled}, false},
		{"course with id", AudienceDescriptor{Kind: AudienceCourse, CourseID: "c1"}, false},
		{"course without id", AudienceDescriptor{Kind: AudienceCourse}, true},
		{"unknown kind", AudienceDescriptor{Kind: "friends"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUserNotificationBefore(t *testing.T) {
	now := time.Now()
	older := UserNotification{ID: "b", CreatedAt: now.Add(-time.Second)}
	newer := UserNotification{ID: "a", CreatedAt: now}
	assert.True(t, newer.Before(older))
	assert.False(t, older.Before(newer))

	tieLow := UserNotification{ID: "a", CreatedAt: now}
	tieHigh := UserNotification{ID: "b", CreatedAt: now}
	assert.True(t, tieHigh.Before(tieLow))
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = &NotFoundError{Resource: "course", ID: "x"}
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, `course "x" not found`, err.Error())

	err = &ValidationError{Field: "title", Reason: "is required"}
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "title: is required", err.Error())
}

func TestRoles(t *testing.T) {
	assert.True(t, RoleSuperAdmin.IsHigherOrEqual(RoleAdmin))
	assert.False(t, RoleModerator.IsHigherOrEqual(RoleAdmin))
	assert.False(t, UserRole("ROOT").IsHigherOrEqual(RoleUser))

	r, ok := ParseRole("")
	assert.True(t, ok)
	assert.Equal(t, RoleUser, r)
	_, ok = ParseRole("ROOT")
	assert.False(t, ok)
}
