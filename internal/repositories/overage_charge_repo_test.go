package repositories

import (
	"context"
	"testing"
	"time"

	"badgerland/internal/models"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverageChargeRepo_BilledLbs(t *testing.T) {
	mock := newMockPool(t)
	subID := uuid.New()
	cycle := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(billed_lbs\), 0\)`).WithArgs(subID, cycle).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(10.0))

	billed, err := NewOverageChargeRepo(mock).BilledLbs(context.Background(), subID, cycle)

	require.NoError(t, err)
	assert.Equal(t, 10.0, billed)
}

func TestOverageChargeRepo_CreateIsIdempotentOnInvoiceItem(t *testing.T) {
	mock := newMockPool(t)
	charge := &models.OverageCharge{
		SubscriptionID:      uuid.New(),
		StripeCustomerID:    "cus_1",
		CycleStart:          time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		BilledLbs:           15,
		AmountCents:         2400,
		StripeInvoiceItemID: "ii_1",
	}
	mock.ExpectExec(`ON CONFLICT \(stripe_invoice_item_id\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), charge.SubscriptionID, "cus_1", charge.CycleStart, 15.0, int64(2400), "ii_1").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, NewOverageChargeRepo(mock).Create(context.Background(), charge))
	assert.NotEqual(t, uuid.Nil, charge.ID)
}
