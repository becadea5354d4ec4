package repositories

import (
	"context"
	"fmt"

	"badgerland/internal/models"

	"github.com/google/uuid"
)

type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

type profileRepo struct {
	db DBTX
}

func NewProfileRepo(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

// GetByUserID joins the profile with its notification settings. Users with
// no settings row get email on and SMS off.
func (r *profileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT p.id, p.full_name, p.email, COALESCE(ns.phone, p.phone),
			COALESCE(ns.email_enabled, TRUE), COALESCE(ns.sms_enabled, FALSE)
		FROM profiles p
		LEFT JOIN notification_settings ns ON ns.user_id = p.id
		WHERE p.id = $1
	`
	p := &models.Profile{}
	err := r.db.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.FullName, &p.Email, &p.Phone, &p.EmailEnabled, &p.SMSEnabled)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return p, nil
}
