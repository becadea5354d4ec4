package repositories

import (
	"context"
	"fmt"
	"time"

	"badgerland/internal/models"

	"github.com/google/uuid"
)

// OverageChargeRepository is the ledger the overage biller consults so a
// second run in the same cycle only bills pounds not yet charged.
type OverageChargeRepository interface {
	BilledLbs(ctx context.Context, subscriptionID uuid.UUID, cycleStart time.Time) (float64, error)
	Create(ctx context.Context, charge *models.OverageCharge) error
}

type overageChargeRepo struct {
	db DBTX
}

func NewOverageChargeRepo(db DBTX) OverageChargeRepository {
	return &overageChargeRepo{db: db}
}

func (r *overageChargeRepo) BilledLbs(ctx context.Context, subscriptionID uuid.UUID, cycleStart time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(billed_lbs), 0)
		FROM overage_charges
		WHERE subscription_id = $1 AND cycle_start = $2
	`
	var billed float64
	if err := r.db.QueryRow(ctx, query, subscriptionID, cycleStart).Scan(&billed); err != nil {
		return 0, fmt.Errorf("sum billed overage: %w", err)
	}
	return billed, nil
}

func (r *overageChargeRepo) Create(ctx context.Context, c *models.OverageCharge) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `
		INSERT INTO overage_charges (id, subscription_id, stripe_customer_id, cycle_start, billed_lbs, amount_cents, stripe_invoice_item_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (stripe_invoice_item_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, c.ID, c.SubscriptionID, c.StripeCustomerID, c.CycleStart, c.BilledLbs, c.AmountCents, c.StripeInvoiceItemID)
	if err != nil {
		return fmt.Errorf("insert overage charge: %w", err)
	}
	return nil
}
