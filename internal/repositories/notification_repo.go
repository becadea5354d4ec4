package repositories

import (
	"context"
	"fmt"
	"time"

	"badgerland/internal/models"

	"github.com/google/uuid"
)

type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListUndispatched(ctx context.Context, limit int) ([]*models.Notification, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error
}

type notificationRepo struct {
	db DBTX
}

func NewNotificationRepo(db DBTX) NotificationRepository {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	query := `
		INSERT INTO notifications (id, user_id, type, message, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.db.Exec(ctx, query, n.ID, n.UserID, n.Type, n.Message)
	if err != nil {
		return fmt.Errorf("insert %s notification: %w", n.Type, err)
	}
	return nil
}

func (r *notificationRepo) ListUndispatched(ctx context.Context, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, type, message, created_at, dispatched_at
		FROM notifications
		WHERE dispatched_at IS NULL AND user_id IS NOT NULL
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list undispatched notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &n.CreatedAt, &n.DispatchedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *notificationRepo) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE notifications SET dispatched_at = $1 WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("mark notification dispatched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
