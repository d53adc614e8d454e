package services

import (
	"context"
	"fmt"
	"sort"

	"edu-notify/internal/models"
)

// Directory is the read-only view of the user and course-enrollment
// collaborators the resolver depends on.
type Directory interface {
	ActiveUserIDs(ctx context.Context) ([]string, error)
	EnrolledUserIDs(ctx context.Context) ([]string, error)
	CourseExists(ctx context.Context, courseID string) (bool, error)
	CourseEnrolledUserIDs(ctx context.Context, courseID string) ([]string, error)
}

// AudienceResolver turns an audience descriptor into a point-in-time
// recipient snapshot. It keeps no state between calls.
type AudienceResolver struct {
	directory Directory
}

func NewAudienceResolver(directory Directory) *AudienceResolver {
	return &AudienceResolver{directory: directory}
}

// Resolve returns a sorted, duplicate-free copy of the recipient ids.
func (r *AudienceResolver) Resolve(ctx context.Context, d models.AudienceDescriptor) ([]string, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var (
		ids []string
		err error
	)
	switch d.Kind {
	case models.AudienceAll:
		ids, err = r.directory.ActiveUserIDs(ctx)
	case models.AudienceEnrolled:
		ids, err = r.directory.EnrolledUserIDs(ctx)
	case models.AudienceCourse:
		exists, existsErr := r.directory.CourseExists(ctx, d.CourseID)
		if existsErr != nil {
			return nil, fmt.Errorf("check course %s: %w", d.CourseID, existsErr)
		}
		if !exists {
			return nil, &models.NotFoundError{Resource: "course", ID: d.CourseID}
		}
		ids, err = r.directory.CourseEnrolledUserIDs(ctx, d.CourseID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s audience: %w", d.Kind, err)
	}

	recipients := dedupe(ids)
	if len(recipients) == 0 {
		return nil, &models.ValidationError{Field: "targetAudience", Reason: "resolved to no recipients"}
	}
	return recipients, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
