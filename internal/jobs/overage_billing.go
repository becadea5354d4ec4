package jobs

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"badgerland/internal/metrics"
	"badgerland/internal/models"
	"badgerland/internal/repositories"
	"badgerland/internal/services"

	"go.uber.org/zap"
)

// lbsEpsilon absorbs float noise when comparing pound totals.
const lbsEpsilon = 1e-9

// OverageBiller adds one invoice item per subscriber whose cycle usage went
// past the plan allowance. Usage already billed this cycle, as recorded in the
// overage ledger, is not billed again.
type OverageBiller struct {
	subscriptions repositories.SubscriptionRepository
	orders        repositories.OrderRepository
	charges       repositories.OverageChargeRepository
	notifications repositories.NotificationRepository
	billing       services.BillingService
	currency      string
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewOverageBiller(
	subscriptions repositories.SubscriptionRepository,
	orders repositories.OrderRepository,
	charges repositories.OverageChargeRepository,
	notifications repositories.NotificationRepository,
	billing services.BillingService,
	currency string,
	m *metrics.Metrics,
	logger *zap.Logger,
) *OverageBiller {
	if currency == "" {
		currency = "usd"
	}
	return &OverageBiller{
		subscriptions: subscriptions,
		orders:        orders,
		charges:       charges,
		notifications: notifications,
		billing:       billing,
		currency:      currency,
		metrics:       m,
		logger:        logger.With(zap.String("job", models.JobOverageBilling)),
	}
}

func formatLbs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// OverageDescription is the invoice line shown to the customer.
func OverageDescription(lbs, rate float64) string {
	return fmt.Sprintf("Laundry overage: %s lbs @ $%s/lb", formatLbs(lbs), formatLbs(rate))
}

// OverageMessage is the in-app notification written after a successful charge.
func OverageMessage(amount, lbs float64) string {
	return fmt.Sprintf("You were billed $%.2f for %s lbs of overage.", amount, formatLbs(lbs))
}

// overageIdempotencyKey identifies a charge by customer, cycle and the pounds it bills through,
// so a retried charge for the same state of the cycle is collapsed by Stripe.
func overageIdempotencyKey(customerID string, cycleStart time.Time, billedThrough float64) string {
	return fmt.Sprintf("overage-%s-%s-%s", customerID, cycleStart.Format("2006-01"), formatLbs(billedThrough))
}

// Run bills every active subscription for the cycle containing now. A
// subscriber's failure is recorded in the report and the batch continues;
// only failing to list subscriptions aborts the run.
func (b *OverageBiller) Run(ctx context.Context, now time.Time) (*models.JobReport, error) {
	report := models.NewJobReport(models.JobOverageBilling, now)

	subs, err := b.subscriptions.ListActive(ctx)
	if err != nil {
		b.logger.Error("listing active subscriptions failed", zap.Error(err))
		return report.Finish(time.Now()), fmt.Errorf("list active subscriptions: %w", err)
	}

	cycleStart := services.CycleStart(now)
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report.Finish(time.Now()), err
		}
		b.bill(ctx, report, sub, cycleStart)
	}

	b.logger.Info("overage billing finished",
		zap.Int("processed", report.Processed),
		zap.Int("charged", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report.Finish(time.Now()), nil
}

func (b *OverageBiller) bill(ctx context.Context, report *models.JobReport, sub *models.Subscription, cycleStart time.Time) {
	subject := sub.UserLabel()
	log := b.logger.With(zap.String("subscriber", subject), zap.String("stripe_customer_id", sub.StripeCustomerID))

	if sub.UserID == nil {
		report.AddSkipped(subject, "no user attached")
		return
	}

	orders, err := b.orders.ListForUserSince(ctx, *sub.UserID, cycleStart)
	if err != nil {
		log.Error("loading cycle orders failed", zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("load orders: %w", err))
		return
	}

	usage := services.ComputeUsage(sub, orders)
	if usage.OverageAmount <= 0 {
		report.AddSkipped(subject, "within allowance")
		return
	}

	alreadyBilled, err := b.charges.BilledLbs(ctx, sub.ID, cycleStart)
	if err != nil {
		log.Error("reading overage ledger failed", zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("read ledger: %w", err))
		return
	}

	lbs := usage.OverageLbs - alreadyBilled
	amount := services.RoundCents(lbs * sub.ExtraRate)
	cents := services.ToCents(amount)
	if lbs <= lbsEpsilon || cents <= 0 {
		report.AddSkipped(subject, "overage already billed")
		return
	}

	key := overageIdempotencyKey(sub.StripeCustomerID, cycleStart, usage.OverageLbs)
	charge := &models.OverageCharge{
		SubscriptionID:   sub.ID,
		StripeCustomerID: sub.StripeCustomerID,
		CycleStart:       cycleStart,
		BilledLbs:        lbs,
		AmountCents:      cents,
	}

	// A charge from an earlier run whose ledger write was lost. Record it and
	// do not notify again.
	existing, err := b.billing.FindInvoiceItem(ctx, sub.StripeCustomerID, key, cycleStart)
	if err != nil {
		log.Error("looking up earlier invoice items failed", zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("find invoice item: %w", err))
		return
	}
	if existing != "" {
		charge.StripeInvoiceItemID = existing
		if err := b.charges.Create(ctx, charge); err != nil {
			log.Error("recording earlier overage charge failed", zap.String("invoice_item_id", existing), zap.Error(err))
			report.AddFailed(subject, fmt.Errorf("record %s: %w", existing, err))
			return
		}
		log.Warn("overage already invoiced, ledger repaired", zap.String("invoice_item_id", existing))
		report.AddSkipped(subject, "already invoiced as "+existing)
		return
	}

	itemID, err := b.billing.CreateInvoiceItem(ctx, services.InvoiceItemRequest{
		CustomerID:     sub.StripeCustomerID,
		AmountCents:    cents,
		Currency:       b.currency,
		Description:    OverageDescription(lbs, sub.ExtraRate),
		IdempotencyKey: key,
		Metadata: map[string]string{
			"subscription_id": sub.ID.String(),
			"cycle_start":     cycleStart.Format("2006-01-02"),
		},
	})
	if err != nil {
		log.Error("creating invoice item failed", zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("create invoice item: %w", err))
		return
	}
	b.metrics.AddOverageCents(cents)

	charge.StripeInvoiceItemID = itemID
	if err := b.charges.Create(ctx, charge); err != nil {
		log.Error("recording overage charge failed", zap.String("invoice_item_id", itemID), zap.Error(err))
	}

	notification := &models.Notification{
		UserID:  sub.UserID,
		Type:    models.NotificationTypeOverageCharge,
		Message: OverageMessage(amount, lbs),
	}
	if err := b.notifications.Create(ctx, notification); err != nil {
		log.Error("writing overage notification failed", zap.String("invoice_item_id", itemID), zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("charged %s but notification failed: %w", itemID, err))
		return
	}

	log.Info("overage billed", zap.String("invoice_item_id", itemID), zap.Int64("amount_cents", cents), zap.Float64("lbs", lbs))
	report.AddCreated(subject, fmt.Sprintf("%s: $%.2f", itemID, amount))
}
