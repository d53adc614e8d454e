package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"edu-notify/internal/models"

	"github.com/go-resty/resty/v2"
)

// HTTPDirectory asks the catalog service for audience membership.
type HTTPDirectory struct {
	client *resty.Client
}

type userIDsResponse struct {
	UserIDs []string `json:"userIds"`
}

func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetHeader("Accept", "application/json")
	return &HTTPDirectory{client: client}
}

// WithServiceToken authenticates internal calls with a bearer token.
func (d *HTTPDirectory) WithServiceToken(token string) *HTTPDirectory {
	d.client.SetAuthToken(token)
	return d
}

func (d *HTTPDirectory) ActiveUserIDs(ctx context.Context) ([]string, error) {
	return d.fetchIDs(ctx, "/internal/users/active", "")
}

func (d *HTTPDirectory) EnrolledUserIDs(ctx context.Context) ([]string, error) {
	return d.fetchIDs(ctx, "/internal/enrollments/user-ids", "")
}

func (d *HTTPDirectory) CourseExists(ctx context.Context, courseID string) (bool, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		Head(courseEnrollmentsPath(courseID))
	if err != nil {
		return false, fmt.Errorf("check course %s: %w", courseID, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("check course %s: unexpected status %d", courseID, resp.StatusCode())
}

func (d *HTTPDirectory) CourseEnrolledUserIDs(ctx context.Context, courseID string) ([]string, error) {
	return d.fetchIDs(ctx, courseEnrollmentsPath(courseID), courseID)
}

func courseEnrollmentsPath(courseID string) string {
	return "/internal/courses/" + url.PathEscape(courseID) + "/enrollments"
}

// fetchIDs GETs a userIds list. A 404 becomes a NotFoundError for the course
// when courseID is set.
func (d *HTTPDirectory) fetchIDs(ctx context.Context, path, courseID string) ([]string, error) {
	var body userIDsResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}

	if resp.StatusCode() == http.StatusNotFound && courseID != "" {
		return nil, &models.NotFoundError{Resource: "course", ID: courseID}
	}
	if resp.IsError() {
		return nil, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode())
	}
	return body.UserIDs, nil
}
