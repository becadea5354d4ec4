package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"badgerland/internal/models"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const (
	eventCheckoutSessionCompleted = "checkout.session.completed"
	eventSubscriptionCreated      = "customer.subscription.created"
	eventSubscriptionUpdated      = "customer.subscription.updated"
	eventSubscriptionDeleted      = "customer.subscription.deleted"
)

// StripeEvent is a verified webhook event decoded into one of the variants
// below. Event types the service does not act on decode to IgnoredEvent.
type StripeEvent interface {
	EventID() string
	EventType() string
	isStripeEvent()
}

type eventHeader struct {
	ID   string
	Type string
}

func (h eventHeader) EventID() string   { return h.ID }
func (h eventHeader) EventType() string { return h.Type }
func (eventHeader) isStripeEvent()     {}

// CheckoutCompleted links the app user who started checkout to the Stripe customer.
type CheckoutCompleted struct {
	eventHeader
	CustomerID string
	UserID     string
}

// SubscriptionUpserted covers both created and updated subscription events.
type SubscriptionUpserted struct {
	eventHeader
	CustomerID     string
	SubscriptionID string
	UserID         string
	PlanName       string
	IncludedLbs    *float64
	ExtraRate      *float64
	RenewalDate    *time.Time
	Active         bool
}

type SubscriptionDeleted struct {
	eventHeader
	SubscriptionID string
}

type IgnoredEvent struct {
	eventHeader
}

// ParseStripeEvent verifies the Stripe-Signature header (t=...,v1=..., HMAC-SHA256
// over "t.payload") and decodes the event payload.
func ParseStripeEvent(payload []byte, signatureHeader, secret string) (StripeEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return decodeStripeEvent(event)
}

func decodeStripeEvent(event stripe.Event) (StripeEvent, error) {
	header := eventHeader{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}

	switch header.Type {
	case eventCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out := CheckoutCompleted{eventHeader: header, UserID: session.Metadata[metadataUserIDKey]}
		if session.Customer != nil {
			out.CustomerID = session.Customer.ID
		}
		return out, nil

	case eventSubscriptionCreated, eventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return subscriptionUpserted(header, &sub), nil

	case eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return SubscriptionDeleted{eventHeader: header, SubscriptionID: sub.ID}, nil

	default:
		return IgnoredEvent{eventHeader: header}, nil
	}
}

func subscriptionUpserted(header eventHeader, sub *stripe.Subscription) SubscriptionUpserted {
	out := SubscriptionUpserted{
		eventHeader:    header,
		SubscriptionID: sub.ID,
		UserID:         sub.Metadata[metadataUserIDKey],
		Active:         sub.Status == stripe.SubscriptionStatusActive,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		renewal := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		renewal = time.Date(renewal.Year(), renewal.Month(), renewal.Day(), 0, 0, 0, 0, time.UTC)
		out.RenewalDate = &renewal
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		out.PlanName = price.Nickname
		out.IncludedLbs = metadataFloat(price.Metadata, "included_lbs")
		out.ExtraRate = metadataFloat(price.Metadata, "extra_rate")
	}
	return out
}

func metadataFloat(md map[string]string, key string) *float64 {
	raw, ok := md[key]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// PlanTerms resolves the allowance and rate to store for this event. Price
// metadata wins; the plan catalog fills whatever is missing.
func (e SubscriptionUpserted) PlanTerms() (includedLbs, extraRate float64) {
	if plan, ok := models.LookupPlan(e.PlanName); ok {
		includedLbs, extraRate = plan.IncludedLbs, plan.ExtraRate
	}
	if e.IncludedLbs != nil {
		includedLbs = *e.IncludedLbs
	}
	if e.ExtraRate != nil {
		extraRate = *e.ExtraRate
	}
	return includedLbs, extraRate
}
