// internal/handlers/notification.go
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"edu-notify/internal/middleware"
	"edu-notify/internal/models"
	"edu-notify/internal/services"
	"edu-notify/internal/store"
	"edu-notify/pkg/validator"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout = 10 * time.Second
	sendTimeout    = 60 * time.Second
)

type NotificationHandler struct {
	store       store.NotificationStore
	broadcaster *services.Broadcaster
	log         logrus.FieldLogger
}

type SendNotificationRequest struct {
	Type           string                 `json:"type" validate:"required"`
	Title          string                 `json:"title" validate:"required,max=200"`
	Message        string                 `json:"message" validate:"required,max=2000"`
	Priority       string                 `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	TargetAudience string                 `json:"targetAudience" validate:"required"`
	CourseID       string                 `json:"courseId,omitempty"`
	ActionURL      string                 `json:"actionUrl,omitempty" validate:"omitempty,max=500"`
	ActionText     string                 `json:"actionText,omitempty" validate:"omitempty,max=100"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

type Pagination struct {
	Current     int   `json:"current"`
	Pages       int64 `json:"pages"`
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
	UnreadCount int64 `json:"unreadCount"`
}

type NotificationListResponse struct {
	Notifications []models.UserNotification `json:"notifications"`
	Pagination    Pagination                `json:"pagination"`
}

type NotificationTypeInfo struct {
	Type models.NotificationType `json:"type"`
	models.Presentation
}

func NewNotificationHandler(st store.NotificationStore, broadcaster *services.Broadcaster, log logrus.FieldLogger) *NotificationHandler {
	return &NotificationHandler{
		store:       st,
		broadcaster: broadcaster,
		log:         log.WithField("component", "notification_handler"),
	}
}

func (h *NotificationHandler) GetUserNotifications(c *gin.Context) {
	userID := middleware.UserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(store.DefaultPageSize)))

	notificationType := models.NotificationType(c.Query("type"))
	if notificationType != "" && !notificationType.Valid() {
		respondError(c, h.log, &models.ValidationError{Field: "type", Reason: "unknown notification type"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := h.store.ListForUser(ctx, userID, store.ListOptions{
		Page:     page,
		PageSize: limit,
		Type:     notificationType,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, NotificationListResponse{
		Notifications: result.Items,
		Pagination: Pagination{
			Current:     result.Page,
			Pages:       result.Pages(),
			Total:       result.Total,
			Limit:       result.PageSize,
			UnreadCount: result.Unread,
		},
	})
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	count, err := h.store.UnreadCount(ctx, middleware.UserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	notificationID := c.Param("id")
	if err := h.store.MarkRead(ctx, middleware.UserID(c), notificationID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Notification marked as read",
		"id":      notificationID,
	})
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	updated, err := h.store.MarkAllRead(ctx, middleware.UserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "All notifications marked as read",
		"updated": updated,
	})
}

func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	notificationID := c.Param("id")
	if err := h.store.DeleteForUser(ctx, middleware.UserID(c), notificationID); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Notification deleted",
		"id":      notificationID,
	})
}

// SendNotification is the administrative send action. Role checks happen in
// middleware; this only validates and hands off to the broadcaster.
func (h *NotificationHandler) SendNotification(c *gin.Context) {
	var req SendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}
	if err := validator.Struct(req); err != nil {
		respondError(c, h.log, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), sendTimeout)
	defer cancel()

	result, err := h.broadcaster.Send(ctx, services.SendRequest{
		Type:       models.NotificationType(req.Type),
		Title:      req.Title,
		Message:    req.Message,
		Priority:   models.Priority(req.Priority),
		Audience:   parseAudience(req.TargetAudience, req.CourseID),
		ActionURL:  req.ActionURL,
		ActionText: req.ActionText,
		Data:       req.Data,
		CreatedBy:  middleware.UserID(c),
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *NotificationHandler) GetNotificationTypes(c *gin.Context) {
	types := make([]NotificationTypeInfo, 0, len(models.AllNotificationTypes()))
	for _, t := range models.AllNotificationTypes() {
		p, _ := t.Presentation()
		types = append(types, NotificationTypeInfo{Type: t, Presentation: p})
	}

	c.JSON(http.StatusOK, gin.H{"types": types})
}

func parseAudience(target, courseID string) models.AudienceDescriptor {
	switch target {
	case "enrolledOnly", "enrolled_only":
		target = string(models.AudienceEnrolled)
	}
	d := models.AudienceDescriptor{Kind: models.AudienceKind(target)}
	if d.Kind == models.AudienceCourse {
		d.CourseID = courseID
	}
	return d
}
