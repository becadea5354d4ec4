package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"badgerland/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func() error
}

func migrationPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "migrations", "0001_init.sql")
}

// SetupTestDB connects to TEST_DATABASE_URL, applies the schema and empties
// every table. The test is skipped when the variable is not set.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	schema, err := os.ReadFile(migrationPath())
	if err != nil {
		pool.Close()
		t.Fatalf("Failed to read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		pool.Close()
		t.Fatalf("Failed to apply schema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE overage_charges, notifications, orders, subscriptions, notification_settings, profiles`); err != nil {
		pool.Close()
		t.Fatalf("Failed to truncate tables: %v", err)
	}

	db := &TestDB{
		Pool: pool,
		Cleanup: func() error {
			pool.Close()
			return nil
		},
	}
	t.Cleanup(func() { _ = db.Cleanup() })
	return db
}

// SeedProfile creates a user profile with its notification settings.
func SeedProfile(t *testing.T, db *TestDB, fullName, email, phone string, emailEnabled, smsEnabled bool) uuid.UUID {
	t.Helper()

	userID := uuid.New()
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `INSERT INTO profiles (id, full_name, email) VALUES ($1, $2, $3)`, userID, fullName, email)
	if err != nil {
		t.Fatalf("Failed to create test profile: %v", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO notification_settings (user_id, email_enabled, sms_enabled, phone)
		VALUES ($1, $2, $3, $4)
	`, userID, emailEnabled, smsEnabled, phone)
	if err != nil {
		t.Fatalf("Failed to create notification settings: %v", err)
	}

	return userID
}

// SeedSubscription creates an active subscription for a catalog plan.
func SeedSubscription(t *testing.T, db *TestDB, userID *uuid.UUID, planName string) *models.Subscription {
	t.Helper()

	plan, _ := models.LookupPlan(planName)
	now := time.Now()
	sub := &models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		StripeCustomerID:     "cus_" + uuid.NewString()[:8],
		StripeSubscriptionID: "sub_" + uuid.NewString()[:8],
		PlanName:             planName,
		IncludedLbs:          plan.IncludedLbs,
		ExtraRate:            plan.ExtraRate,
		Active:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	query := `
		INSERT INTO subscriptions (id, user_id, stripe_customer_id, stripe_subscription_id, plan_name, included_lbs, extra_rate, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := db.Pool.Exec(context.Background(), query,
		sub.ID, sub.UserID, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.PlanName,
		sub.IncludedLbs, sub.ExtraRate, sub.Active, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// SeedWeighedOrder creates a completed subscriber order created at createdAt.
func SeedWeighedOrder(t *testing.T, db *TestDB, userID uuid.UUID, pounds float64, createdAt time.Time) uuid.UUID {
	t.Helper()

	orderID := uuid.New()
	query := `
		INSERT INTO orders (id, user_id, pickup_date, pickup_time, pounds, status, service, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err := db.Pool.Exec(context.Background(), query,
		orderID, userID, createdAt, models.PickupSlots[1], pounds, models.OrderStatusCompleted,
		models.ServiceSubscriber, createdAt)
	if err != nil {
		t.Fatalf("Failed to create test order: %v", err)
	}

	return orderID
}
