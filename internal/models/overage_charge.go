package models

import (
	"time"

	"github.com/google/uuid"
)

// OverageCharge is one ledger row per invoice item created by the overage
// biller. BilledLbs is the pounds covered by this item, not a running total.
type OverageCharge struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	SubscriptionID      uuid.UUID `json:"subscription_id" db:"subscription_id"`
	StripeCustomerID    string    `json:"stripe_customer_id" db:"stripe_customer_id"`
	CycleStart          time.Time `json:"cycle_start" db:"cycle_start"`
	BilledLbs           float64   `json:"billed_lbs" db:"billed_lbs"`
	AmountCents         int64     `json:"amount_cents" db:"amount_cents"`
	StripeInvoiceItemID string    `json:"stripe_invoice_item_id" db:"stripe_invoice_item_id"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
}
