package services

import (
	"context"
	"io"
	"time"

	"badgerland/internal/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
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

type MockUsageCache struct {
	mock.Mock
}

func (m *MockUsageCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	if fill, ok := args.Get(0).(func(any)); ok {
		fill(dest)
		return true, args.Error(1)
	}
	return args.Bool(0), args.Error(1)
}

func (m *MockUsageCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockUsageCache) Delete(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStore) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockObjectStore) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	body, _ := io.ReadAll(reader)
	args := m.Called(ctx, bucketName, objectName, body, objectSize, opts)
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, args.Error(0)
}

// recordingSender captures outbound email and SMS instead of sending them.
type recordingSender struct {
	emails []EmailMessage
	sms    []string
	err    error
}

func (s *recordingSender) SendEmail(_ context.Context, msg EmailMessage) error {
	if s.err != nil {
		return s.err
	}
	s.emails = append(s.emails, msg)
	return nil
}

func (s *recordingSender) SendSMS(_ context.Context, to, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sms = append(s.sms, to+": "+body)
	return nil
}

func ptr[T any](v T) *T { return &v }
