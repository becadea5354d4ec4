package jobs

import (
	"context"
	"time"

	"badgerland/internal/models"
	"badgerland/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockSubscriptionRepository mocks the SubscriptionRepository interface for testing
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) ListActiveWithPickupPreference(ctx context.Context) ([]*models.Subscription, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) UpsertByCustomerID(ctx context.Context, subscription *models.Subscription) error {
	args := m.Called(ctx, subscription)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) AttachUser(ctx context.Context, stripeCustomerID string, userID uuid.UUID) error {
	args := m.Called(ctx, stripeCustomerID, userID)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) DeactivateByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) error {
	args := m.Called(ctx, stripeSubscriptionID)
	return args.Error(0)
}

// MockOrderRepository mocks the OrderRepository interface for testing
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) ListForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]*models.Order, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Order), args.Error(1)
}

func (m *MockOrderRepository) ExistsForSlot(ctx context.Context, userID uuid.UUID, pickupDate time.Time, pickupTime string) (bool, error) {
	args := m.Called(ctx, userID, pickupDate, pickupTime)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) LatestSubscriberPickup(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockOrderRepository) RecordWeight(ctx context.Context, id uuid.UUID, pounds, totalPrice float64) error {
	args := m.Called(ctx, id, pounds, totalPrice)
	return args.Error(0)
}

// MockNotificationRepository mocks the NotificationRepository interface for testing
type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	args := m.Called(ctx, notification)
	return args.Error(0)
}

func (m *MockNotificationRepository) ListUndispatched(ctx context.Context, limit int) ([]*models.Notification, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}

func (m *MockNotificationRepository) MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// MockOverageChargeRepository mocks the OverageChargeRepository interface for testing
type MockOverageChargeRepository struct {
	mock.Mock
}

func (m *MockOverageChargeRepository) BilledLbs(ctx context.Context, subscriptionID uuid.UUID, cycleStart time.Time) (float64, error) {
	args := m.Called(ctx, subscriptionID, cycleStart)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockOverageChargeRepository) Create(ctx context.Context, charge *models.OverageCharge) error {
	args := m.Called(ctx, charge)
	return args.Error(0)
}

// MockProfileRepository mocks the ProfileRepository interface for testing
type MockProfileRepository struct {
	mock.Mock
}

func (m *MockProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

// MockBillingService mocks the BillingService interface for testing
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

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) Deliver(ctx context.Context, notification *models.Notification, profile *models.Profile) error {
	args := m.Called(ctx, notification, profile)
	return args.Error(0)
}

func ptr[T any](v T) *T {
	return &v
}
