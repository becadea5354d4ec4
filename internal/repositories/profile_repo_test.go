package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileColumnNames = []string{"id", "full_name", "email", "phone", "email_enabled", "sms_enabled"}

func TestProfileRepo_GetByUserID(t *testing.T) {
	mock := newMockPool(t)
	userID := uuid.New()
	mock.ExpectQuery(`LEFT JOIN notification_settings ns ON ns.user_id = p.id`).WithArgs(userID).
		WillReturnRows(pgxmock.NewRows(profileColumnNames).
			AddRow(userID, ptr("Ada Lovelace"), ptr("ada@example.com"), ptr("+16085550100"), true, true))

	p, err := NewProfileRepo(mock).GetByUserID(context.Background(), userID)

	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, "+16085550100", *p.Phone)
	assert.True(t, p.SMSEnabled)
}

func TestProfileRepo_GetByUserID_NotFound(t *testing.T) {
	mock := newMockPool(t)
	userID := uuid.New()
	mock.ExpectQuery(`FROM profiles p`).WithArgs(userID).WillReturnError(pgx.ErrNoRows)

	_, err := NewProfileRepo(mock).GetByUserID(context.Background(), userID)

	assert.ErrorIs(t, err, ErrNotFound)
}
