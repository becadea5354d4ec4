package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the fulfillment state of a pickup.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusScheduled        OrderStatus = "scheduled"
	OrderStatusPickedUp         OrderStatus = "picked_up"
	OrderStatusWashing          OrderStatus = "washing"
	OrderStatusDrying           OrderStatus = "drying"
	OrderStatusReadyForDelivery OrderStatus = "ready_for_delivery"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCompleted        OrderStatus = "completed"
)

var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:          0,
	OrderStatusScheduled:        0,
	OrderStatusPickedUp:         1,
	OrderStatusWashing:          2,
	OrderStatusDrying:           3,
	OrderStatusReadyForDelivery: 4,
	OrderStatusDelivered:        5,
	OrderStatusCompleted:        6,
}

// ParseOrderStatus accepts the stored status names. "ready" is kept as an
// alias for ready_for_delivery because the admin console still sends it.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	if s == "ready" {
		return OrderStatusReadyForDelivery, true
	}
	status := OrderStatus(s)
	_, ok := orderStatusRank[status]
	return status, ok
}

// Rank orders statuses along the fulfillment pipeline.
func (s OrderStatus) Rank() int {
	rank, ok := orderStatusRank[s]
	if !ok {
		return -1
	}
	return rank
}

// CanAdvanceTo reports whether next is a forward move from s.
func (s OrderStatus) CanAdvanceTo(next OrderStatus) bool {
	return s.Rank() >= 0 && next.Rank() > s.Rank()
}

// Label renders the status for customer messages, e.g. "picked up".
func (s OrderStatus) Label() string {
	out := []byte(s)
	for i, b := range out {
		if b == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}

const (
	ServiceSubscriber = "subscriber"
)

type Order struct {
	ID                     uuid.UUID   `json:"id" db:"id"`
	UserID                 *uuid.UUID  `json:"user_id" db:"user_id"`
	FullName               *string     `json:"full_name" db:"full_name"`
	Address                *string     `json:"address" db:"address"`
	Phone                  *string     `json:"phone" db:"phone"`
	Email                  *string     `json:"email" db:"email"`
	PickupDate             time.Time   `json:"pickup_date" db:"pickup_date"`
	PickupTime             string      `json:"pickup_time" db:"pickup_time"`
	Pounds                 *float64    `json:"pounds" db:"pounds"`
	TotalPrice             float64     `json:"total_price" db:"total_price"`
	Status                 OrderStatus `json:"status" db:"status"`
	Service                string      `json:"service" db:"service"`
	Detergent              *string     `json:"detergent" db:"detergent"`
	DryerSheets            bool        `json:"dryer_sheets" db:"dryer_sheets"`
	Instructions           *string     `json:"instructions" db:"instructions"`
	Bags                   *int        `json:"bags" db:"bags"`
	Estimate               *float64    `json:"estimate" db:"estimate"`
	NotificationPreference *string     `json:"notification_preference" db:"notification_preference"`
	CreatedAt              time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at" db:"updated_at"`
}

// IsSubscriberOrder reports whether the order was created for a subscriber pickup.
func (o *Order) IsSubscriberOrder() bool {
	return o.Service == ServiceSubscriber
}

// PickupSlots are the time windows offered at booking.
var PickupSlots = []string{
	"5:30 AM - 7:30 AM",
	"8:00 AM - 10:00 AM",
	"10:30 AM - 12:30 PM",
	"1:00 PM - 3:00 PM",
	"3:30 PM - 5:30 PM",
	"6:00 PM - 8:00 PM",
}

func IsPickupSlot(s string) bool {
	for _, slot := range PickupSlots {
		if slot == s {
			return true
		}
	}
	return false
}
