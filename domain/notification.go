package domain

import "time"

// NotificationCategory is the typed category of a Notification.
type NotificationCategory string

const (
	NotifyJoinRequested     NotificationCategory = "JOIN_REQUESTED"
	NotifyJoinAccepted      NotificationCategory = "JOIN_ACCEPTED"
	NotifyJoinRejected      NotificationCategory = "JOIN_REJECTED"
	NotifyActivityClosed    NotificationCategory = "ACTIVITY_CLOSED"
	NotifyActivityCancelled NotificationCategory = "ACTIVITY_CANCELLED"
)

// Notification is addressed to a single user and only that user may mark it read.
type Notification struct {
	ID          string               `json:"id"`
	UserID      string               `json:"user_id"`
	Title       string               `json:"title"`
	Message     string               `json:"message"`
	Category    NotificationCategory `json:"category"`
	ReferenceID string               `json:"reference_id,omitempty"`
	Read        bool                 `json:"read"`
	CreatedAt   time.Time            `json:"created_at"`
}

// NotificationChannel is the publish channel carrying live pushes for userID.
func NotificationChannel(userID string) string {
	return "user:" + userID + ":notifications"
}

// ChatChannel is the publish channel carrying live messages of a chat channel.
func ChatChannel(channelID string) string {
	return "chat:" + channelID
}
