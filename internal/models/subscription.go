package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is one subscriber's recurring plan as mirrored from Stripe.
type Subscription struct {
	ID                   uuid.UUID  `json:"id" db:"id"`
	UserID               *uuid.UUID `json:"user_id" db:"user_id"`
	StripeCustomerID     string     `json:"stripe_customer_id" db:"stripe_customer_id"`
	StripeSubscriptionID string     `json:"stripe_subscription_id" db:"stripe_subscription_id"`
	PlanName             string     `json:"plan_name" db:"plan_name"`
	IncludedLbs          float64    `json:"included_lbs" db:"included_lbs"`
	ExtraRate            float64    `json:"extra_rate" db:"extra_rate"`
	RenewalDate          *time.Time `json:"renewal_date" db:"renewal_date"`
	Active               bool       `json:"active" db:"active"`
	PickupDay            *string    `json:"pickup_day" db:"pickup_day"`
	PickupTime           *string    `json:"pickup_time" db:"pickup_time"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// HasPickupPreference reports whether both the weekday and time slot are set.
func (s *Subscription) HasPickupPreference() bool {
	return s.PickupDay != nil && *s.PickupDay != "" && s.PickupTime != nil && *s.PickupTime != ""
}

// UserLabel is used in log lines where the user may not be attached yet.
func (s *Subscription) UserLabel() string {
	if s.UserID == nil {
		return "customer:" + s.StripeCustomerID
	}
	return s.UserID.String()
}
