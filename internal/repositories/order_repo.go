package repositories

import (
	"context"
	"fmt"
	"time"

	"badgerland/internal/models"

	"github.com/google/uuid"
)

type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.Order, error)
	ExistsForSlot(ctx context.Context, userID uuid.UUID, pickupDate time.Time, pickupTime string) (bool, error)
	LatestSubscriberPickup(ctx context.Context, userID uuid.UUID) (*time.Time, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
	RecordWeight(ctx context.Context, id uuid.UUID, pounds, totalPrice float64) error
}

type orderRepo struct {
	db DBTX
}

func NewOrderRepo(db DBTX) OrderRepository {
	return &orderRepo{db: db}
}

const orderColumns = `id, user_id, full_name, address, phone, email, pickup_date, pickup_time, pounds, total_price, status, service, detergent, dryer_sheets, instructions, bags, estimate, notification_preference, created_at, updated_at`

func scanOrder(row scanner) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(&o.ID, &o.UserID, &o.FullName, &o.Address, &o.Phone, &o.Email, &o.PickupDate, &o.PickupTime, &o.Pounds, &o.TotalPrice, &o.Status, &o.Service, &o.Detergent, &o.DryerSheets, &o.Instructions, &o.Bags, &o.Estimate, &o.NotificationPreference, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) Create(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO orders (id, user_id, full_name, address, phone, email, pickup_date, pickup_time, pounds, total_price, status, service, detergent, dryer_sheets, instructions, bags, estimate, notification_preference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, o.ID, o.UserID, o.FullName, o.Address, o.Phone, o.Email, o.PickupDate, o.PickupTime, o.Pounds, o.TotalPrice, o.Status, o.Service, o.Detergent, o.DryerSheets, o.Instructions, o.Bags, o.Estimate, o.NotificationPreference)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

// ListForUserSince returns the user's orders created at or after since.
func (r *orderRepo) ListForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list orders for %s: %w", userID, err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *orderRepo) ExistsForSlot(ctx context.Context, userID uuid.UUID, pickupDate time.Time, pickupTime string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM orders WHERE user_id = $1 AND pickup_date = $2 AND pickup_time = $3
	)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, userID, pickupDate, pickupTime).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pickup slot: %w", err)
	}
	return exists, nil
}

// LatestSubscriberPickup returns the furthest pickup date among the user's
// subscriber-originated orders, or nil when there are none.
func (r *orderRepo) LatestSubscriberPickup(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	query := `SELECT MAX(pickup_date) FROM orders WHERE user_id = $1 AND service = $2`
	var latest *time.Time
	if err := r.db.QueryRow(ctx, query, userID, models.ServiceSubscriber).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest subscriber pickup: %w", err)
	}
	return latest, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	query := `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordWeight stores the weighed pounds and closes the order.
func (r *orderRepo) RecordWeight(ctx context.Context, id uuid.UUID, pounds, totalPrice float64) error {
	query := `UPDATE orders SET pounds = $1, total_price = $2, status = $3, updated_at = NOW() WHERE id = $4`
	tag, err := r.db.Exec(ctx, query, pounds, totalPrice, models.OrderStatusCompleted, id)
	if err != nil {
		return fmt.Errorf("record order weight: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
