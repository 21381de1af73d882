package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a notice.
type NotificationType string

const (
	NotificationApprovalRequest NotificationType = "approval_request"
	NotificationStatusUpdate    NotificationType = "status_update"
	NotificationSystem          NotificationType = "system"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	return t == NotificationApprovalRequest || t == NotificationStatusUpdate || t == NotificationSystem
}

// Notification is a per-member notice. Only Read ever changes.
type Notification struct {
	ID                   uuid.UUID        `json:"id"`
	UserID               uuid.UUID        `json:"user_id"`
	Title                string           `json:"title"`
	Message              string           `json:"message"`
	Type                 NotificationType `json:"type"`
	Read                 bool             `json:"read"`
	RelatedApplicationID *uuid.UUID       `json:"related_application_id"`
	CreatedAt            time.Time        `json:"created_at"`
}
