// Package client is a Go SDK for the notification service: a REST API
// client, a live websocket session and a reconciler that keeps a local
// notification list consistent across both.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
)

// APIError is a non-2xx response. It unwraps to one of the sentinel errors
// above when the status maps to one.
type APIError struct {
	Status  int
	Message string
	Details string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// Retryable reports whether repeating the same call may succeed.
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

type Pagination struct {
	Current     int   `json:"current"`
	Pages       int64 `json:"pages"`
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
	UnreadCount int64 `json:"unreadCount"`
}

type Page struct {
	Notifications []Notification `json:"notifications"`
	Pagination    Pagination     `json:"pagination"`
}

type SendRequest struct {
	Type           NotificationType       `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	Priority       Priority               `json:"priority,omitempty"`
	TargetAudience AudienceKind           `json:"targetAudience"`
	CourseID       string                 `json:"courseId,omitempty"`
	ActionURL      string                 `json:"actionUrl,omitempty"`
	ActionText     string                 `json:"actionText,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

type SendResult struct {
	NotificationID  string `json:"notificationId"`
	RecipientsCount int    `json:"recipientsCount"`
}

// API calls the REST surface under /api/v1 with a bearer token.
type API struct {
	client *resty.Client
}

func NewAPI(baseURL, token string, timeout time.Duration) *API {
	client := resty.New().
		SetBaseURL(baseURL+"/api/v1").
		SetTimeout(timeout).
		SetAuthToken(token).
		SetHeader("Accept", "application/json")
	return &API{client: client}
}

// SetToken replaces the bearer token, e.g. after a refresh.
func (a *API) SetToken(token string) {
	a.client.SetAuthToken(token)
}

func (a *API) List(ctx context.Context, page, limit int, notificationType NotificationType) (*Page, error) {
	params := map[string]string{
		"page":  strconv.Itoa(page),
		"limit": strconv.Itoa(limit),
	}
	if notificationType != "" {
		params["type"] = string(notificationType)
	}

	var out Page
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get("/notifications")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		UnreadCount int64 `json:"unreadCount"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/notifications/count")
	if err := check(resp, err); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

func (a *API) MarkRead(ctx context.Context, notificationID string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		Patch("/notifications/" + url.PathEscape(notificationID) + "/read")
	return check(resp, err)
}

// MarkAllRead returns how many notifications the server flipped to read.
func (a *API) MarkAllRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&out).
		Patch("/notifications/read-all")
	if err := check(resp, err); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (a *API) Delete(ctx context.Context, notificationID string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		Delete("/notifications/" + url.PathEscape(notificationID))
	return check(resp, err)
}

// Send requires an administrative token.
func (a *API) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	var out SendResult
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/notifications/send")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
	var body errorBody
	if jsonErr := json.Unmarshal(resp.Body(), &body); jsonErr == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	}
	return apiErr
}
