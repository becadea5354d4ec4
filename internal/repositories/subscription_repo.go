package repositories

import (
	"context"
	"fmt"

	"badgerland/internal/models"

	"github.com/google/uuid"
)

type SubscriptionRepository interface {
	ListActive(ctx context.Context) ([]*models.Subscription, error)
	ListActiveWithPickupPreference(ctx context.Context) ([]*models.Subscription, error)
	GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	UpsertByCustomerID(ctx context.Context, subscription *models.Subscription) error
	AttachUser(ctx context.Context, stripeCustomerID string, userID uuid.UUID) error
	DeactivateByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) error
}

type subscriptionRepo struct {
	db DBTX
}

func NewSubscriptionRepo(db DBTX) SubscriptionRepository {
	return &subscriptionRepo{db: db}
}

const subscriptionColumns = `id, user_id, stripe_customer_id, stripe_subscription_id, plan_name, included_lbs, extra_rate, renewal_date, active, pickup_day, pickup_time, created_at, updated_at`

func scanSubscription(row scanner) (*models.Subscription, error) {
	s := &models.Subscription{}
	err := row.Scan(&s.ID, &s.UserID, &s.StripeCustomerID, &s.StripeSubscriptionID, &s.PlanName, &s.IncludedLbs, &s.ExtraRate, &s.RenewalDate, &s.Active, &s.PickupDay, &s.PickupTime, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *subscriptionRepo) list(ctx context.Context, query string, args ...any) ([]*models.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscriptions []*models.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, s)
	}
	return subscriptions, rows.Err()
}

func (r *subscriptionRepo) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE active = TRUE
		ORDER BY created_at`
	subs, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepo) ListActiveWithPickupPreference(ctx context.Context) ([]*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE active = TRUE AND pickup_day IS NOT NULL AND pickup_time IS NOT NULL
		ORDER BY created_at`
	subs, err := r.list(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions with pickup preference: %w", err)
	}
	return subs, nil
}

func (r *subscriptionRepo) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1`
	s, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// UpsertByCustomerID keeps one row per Stripe customer. Pickup preferences
// survive plan changes. A user already attached is never replaced; an
// unattached row takes the user from the subscription metadata.
func (r *subscriptionRepo) UpsertByCustomerID(ctx context.Context, s *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, stripe_customer_id, stripe_subscription_id, plan_name, included_lbs, extra_rate, renewal_date, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (stripe_customer_id) DO UPDATE SET
			user_id = COALESCE(subscriptions.user_id, EXCLUDED.user_id),
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			plan_name = EXCLUDED.plan_name,
			included_lbs = EXCLUDED.included_lbs,
			extra_rate = EXCLUDED.extra_rate,
			renewal_date = EXCLUDED.renewal_date,
			active = EXCLUDED.active,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, s.ID, s.UserID, s.StripeCustomerID, s.StripeSubscriptionID, s.PlanName, s.IncludedLbs, s.ExtraRate, s.RenewalDate, s.Active)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", s.StripeCustomerID, err)
	}
	return nil
}

func (r *subscriptionRepo) AttachUser(ctx context.Context, stripeCustomerID string, userID uuid.UUID) error {
	query := `UPDATE subscriptions SET user_id = $1, updated_at = NOW() WHERE stripe_customer_id = $2`
	tag, err := r.db.Exec(ctx, query, userID, stripeCustomerID)
	if err != nil {
		return fmt.Errorf("attach user to %s: %w", stripeCustomerID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) DeactivateByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) error {
	query := `UPDATE subscriptions SET active = FALSE, updated_at = NOW() WHERE stripe_subscription_id = $1`
	tag, err := r.db.Exec(ctx, query, stripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("deactivate subscription %s: %w", stripeSubscriptionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
