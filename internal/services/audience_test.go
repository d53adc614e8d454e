package services

import (
	"context"
	"errors"
	"testing"

	"edu-notify/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAudiences(t *testing.T) {
	dir := &fakeDirectory{
		active: []string{"u3", "u1", "u2", "u1", ""},
		enrollments: map[string][]string{
			"go-101": {"u2", "u1"},
			"rust":   {"u2", "u4"},
			"empty":  {},
		},
	}
	r := NewAudienceResolver(dir)
	ctx := context.Background()

	tests := []struct {
		name string
		in   models.AudienceDescriptor
		want []string
	}{
		{"all", models.AudienceDescriptor{Kind: models.AudienceAll}, []string{"u1", "u2", "u3"}},
		{"enrolled", models.AudienceDescriptor{Kind: models.AudienceEnrolled}, []string{"u1", "u2", "u4"}},
		{"course", models.AudienceDescriptor{Kind: models.AudienceCourse, CourseID: "go-101"}, []string{"u1", "u2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	dir := &fakeDirectory{enrollments: map[string][]string{"empty": {}}}
	r := NewAudienceResolver(dir)
	ctx := context.Background()

	_, err := r.Resolve(ctx, models.AudienceDescriptor{Kind: models.AudienceCourse, CourseID: "missing"})
	assert.True(t, errors.Is(err, models.ErrNotFound))

	_, err = r.Resolve(ctx, models.AudienceDescriptor{Kind: models.AudienceCourse, CourseID: "empty"})
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = r.Resolve(ctx, models.AudienceDescriptor{Kind: models.AudienceAll})
	assert.True(t, errors.Is(err, models.ErrValidation), "no active users")

	calls := dir.calls
	_, err = r.Resolve(ctx, models.AudienceDescriptor{Kind: "everyone"})
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.Equal(t, calls, dir.calls, "invalid descriptor must not reach the directory")

	dir.err = errDirectoryDown
	_, err = r.Resolve(ctx, models.AudienceDescriptor{Kind: models.AudienceEnrolled})
	assert.ErrorIs(t, err, errDirectoryDown)
}

func TestResolveReturnsIndependentSnapshot(t *testing.T) {
	dir := &fakeDirectory{enrollments: map[string][]string{"go-101": {"u1"}}}
	r := NewAudienceResolver(dir)

	first, err := r.Resolve(context.Background(), models.AudienceDescriptor{Kind: models.AudienceCourse, CourseID: "go-101"})
	require.NoError(t, err)

	dir.enroll("go-101", "late")

	assert.Equal(t, []string{"u1"}, first)
}
