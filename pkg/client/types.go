package client

import "edu-notify/internal/models"

// Wire types shared with the server, re-exported so importers outside this
// module can name them.
type (
	Notification     = models.UserNotification
	LiveEvent        = models.LiveEvent
	NotificationType = models.NotificationType
	Priority         = models.Priority
	AudienceKind     = models.AudienceKind
	Presentation     = models.Presentation
)

const (
	TypeNewCourseAvailable = models.NotificationTypeNewCourseAvailable
	TypeCourseEnrollment   = models.NotificationTypeCourseEnrollment
	TypePaymentSuccess     = models.NotificationTypePaymentSuccess
	TypeSystemAnnouncement = models.NotificationTypeSystemAnnouncement

	PriorityLow    = models.PriorityLow
	PriorityMedium = models.PriorityMedium
	PriorityHigh   = models.PriorityHigh
	PriorityUrgent = models.PriorityUrgent

	AudienceAll      = models.AudienceAll
	AudienceEnrolled = models.AudienceEnrolled
	AudienceCourse   = models.AudienceCourse

	EventNewNotification    = models.EventNewNotification
	EventNewCourseAvailable = models.EventNewCourseAvailable
)
