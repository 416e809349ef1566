package model

import "time"

// NotificationType classifies a user-facing message.
type NotificationType string

// Notification types.
const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// Notification is a short-lived message shown to the user.
type Notification struct {
	CreatedAt time.Time
	Message   string
	Type      NotificationType
	ID        int64
}
