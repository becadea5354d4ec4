package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"badgerland/internal/common"
	"badgerland/internal/jobs/background"
	"badgerland/internal/models"
	"badgerland/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Book(ctx context.Context, req services.BookingRequest) (*models.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.Order, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderService) RecordWeight(ctx context.Context, id uuid.UUID, pounds float64) (*models.Order, error) {
	args := m.Called(ctx, id, pounds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type MockBillingService struct {
	mock.Mock
}

func (m *MockBillingService) CreateInvoiceItem(ctx context.Context, req services.InvoiceItemRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockBillingService) FindInvoiceItem(ctx context.Context, customerID, idempotencyKey string, since time.Time) (string, error) {
	args := m.Called(ctx, customerID, idempotencyKey, since)
	return args.String(0), args.Error(1)
}

func (m *MockBillingService) CreateCheckoutSession(ctx context.Context, req services.CheckoutRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockUsageReporter struct {
	mock.Mock
}

func (m *MockUsageReporter) ForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*services.UsageReport, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.UsageReport), args.Error(1)
}

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) ApplyEvent(ctx context.Context, event services.StripeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockDeduplicator struct {
	mock.Mock
}

func (m *MockDeduplicator) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeduplicator) ReleaseEvent(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

type MockJobController struct {
	mock.Mock
}

func (m *MockJobController) RunNow(ctx context.Context, name string) (*models.JobReport, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobReport), args.Error(1)
}

func (m *MockJobController) GetJobStatus() []background.JobStatus {
	args := m.Called()
	return args.Get(0).([]background.JobStatus)
}

type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// newRequest builds a JSON request, signed in as userID when it is not uuid.Nil.
func newRequest(method, target, body string, userID uuid.UUID, role string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != uuid.Nil {
		req = req.WithContext(common.WithUser(req.Context(), userID, role))
	}
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) common.ErrorResponse {
	t.Helper()
	var resp common.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}
