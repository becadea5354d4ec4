package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType tags the user-facing event a notification records.
type NotificationType string

const (
	NotificationTypeAutoPickup      NotificationType = "auto_pickup"
	NotificationTypeOverageCharge   NotificationType = "overage_charge"
	NotificationTypeNewSubscription NotificationType = "new_subscription"
	NotificationTypeOrderStatus     NotificationType = "order_status"
)

// Notification is written by the billing and scheduling jobs and later
// pushed out by the dispatcher. DispatchedAt stays nil until then.
type Notification struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	UserID       *uuid.UUID       `json:"user_id" db:"user_id"`
	Type         NotificationType `json:"type" db:"type"`
	Message      string           `json:"message" db:"message"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	DispatchedAt *time.Time       `json:"dispatched_at" db:"dispatched_at"`
}

// Subject is the email subject line used when the notification is dispatched.
func (n *Notification) Subject() string {
	switch n.Type {
	case NotificationTypeAutoPickup:
		return "Your pickup is scheduled"
	case NotificationTypeOverageCharge:
		return "Laundry overage charge"
	case NotificationTypeNewSubscription:
		return "Welcome to Badgerland Laundry"
	case NotificationTypeOrderStatus:
		return "Update on your laundry order"
	default:
		return "Badgerland Laundry"
	}
}

// Profile carries the contact details and channel preferences of a user.
type Profile struct {
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	FullName     *string   `json:"full_name" db:"full_name"`
	Email        *string   `json:"email" db:"email"`
	Phone        *string   `json:"phone" db:"phone"`
	EmailEnabled bool      `json:"email_enabled" db:"email_enabled"`
	SMSEnabled   bool      `json:"sms_enabled" db:"sms_enabled"`
}
