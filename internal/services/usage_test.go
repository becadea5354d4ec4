package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"badgerland/internal/models"
	"badgerland/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

func ordersWeighing(pounds ...*float64) []*models.Order {
	orders := make([]*models.Order, 0, len(pounds))
	for _, p := range pounds {
		orders = append(orders, &models.Order{ID: uuid.New(), Pounds: p})
	}
	return orders
}

func TestComputeUsage(t *testing.T) {
	tests := []struct {
		name   string
		sub    models.Subscription
		orders []*models.Order
		want   Usage
	}{
		{
			name:   "over allowance",
			sub:    models.Subscription{IncludedLbs: 80, ExtraRate: 1.50},
			orders: ordersWeighing(ptr(40.0), ptr(30.0), ptr(25.0)),
			want:   Usage{IncludedLbs: 80, Used: 95, Remaining: 0, OverageLbs: 15, OverageAmount: 22.50},
		},
		{
			name:   "under allowance",
			sub:    models.Subscription{IncludedLbs: 200, ExtraRate: 1.60},
			orders: ordersWeighing(ptr(100.0), ptr(50.0)),
			want:   Usage{IncludedLbs: 200, Used: 150, Remaining: 50},
		},
		{
			name:   "unweighed orders count as zero",
			sub:    models.Subscription{IncludedLbs: 30, ExtraRate: 1.60},
			orders: ordersWeighing(nil, ptr(12.5), nil),
			want:   Usage{IncludedLbs: 30, Used: 12.5, Remaining: 17.5},
		},
		{
			name: "no orders",
			sub:  models.Subscription{IncludedLbs: 60, ExtraRate: 1.60},
			want: Usage{IncludedLbs: 60, Remaining: 60},
		},
		{
			name:   "negative rate never charges",
			sub:    models.Subscription{IncludedLbs: 10, ExtraRate: -2},
			orders: ordersWeighing(ptr(20.0)),
			want:   Usage{IncludedLbs: 10, Used: 20, OverageLbs: 10},
		},
		{
			name:   "amount rounds to cents",
			sub:    models.Subscription{IncludedLbs: 30, ExtraRate: 1.60},
			orders: ordersWeighing(ptr(33.333)),
			want:   Usage{IncludedLbs: 30, Used: 33.333, OverageLbs: 3.333000000000002, OverageAmount: 5.33},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeUsage(&tt.sub, tt.orders)
			assert.InDelta(t, tt.want.Used, got.Used, 1e-9)
			assert.InDelta(t, tt.want.Remaining, got.Remaining, 1e-9)
			assert.InDelta(t, tt.want.OverageLbs, got.OverageLbs, 1e-9)
			assert.Equal(t, tt.want.OverageAmount, got.OverageAmount)
			assert.Equal(t, tt.want.IncludedLbs, got.IncludedLbs)
		})
	}
}

func TestComputeUsage_RemainingAndOverageAreExclusive(t *testing.T) {
	sub := &models.Subscription{IncludedLbs: 50, ExtraRate: 1.60}
	for _, used := range []float64{0, 25, 50, 75} {
		u := ComputeUsage(sub, ordersWeighing(ptr(used)))
		assert.Zero(t, u.Remaining*u.OverageLbs, "used=%v", used)
		assert.InDelta(t, u.IncludedLbs-u.Used, u.Remaining-u.OverageLbs, 1e-9)
	}
}

func TestUsedPercent(t *testing.T) {
	assert.Equal(t, 118.8, Usage{IncludedLbs: 80, Used: 95}.UsedPercent())
	assert.Equal(t, 1200.0, Usage{IncludedLbs: 0, Used: 12}.UsedPercent())
}

func TestCycleStart(t *testing.T) {
	cst := time.FixedZone("CST", -6*60*60)
	now := time.Date(2025, 3, 31, 23, 30, 0, 0, cst)

	start := CycleStart(now)

	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, cst), start)
	assert.Equal(t, cst, start.Location())
}

func TestMoneyHelpers(t *testing.T) {
	assert.Equal(t, 22.5, RoundCents(22.499999))
	assert.Equal(t, int64(2250), ToCents(22.5))
	assert.Equal(t, int64(533), ToCents(5.3328))
}

type UsageServiceTestSuite struct {
	suite.Suite
	subscriptions *MockSubscriptionRepository
	orders        *MockOrderRepository
	cache         *MockUsageCache
	service       *UsageService
	ctx           context.Context
	userID        uuid.UUID
	now           time.Time
}

func (suite *UsageServiceTestSuite) SetupTest() {
	suite.subscriptions = new(MockSubscriptionRepository)
	suite.orders = new(MockOrderRepository)
	suite.cache = new(MockUsageCache)
	suite.service = NewUsageService(suite.subscriptions, suite.orders, suite.cache, 5*time.Minute, zap.NewNop())
	suite.ctx = context.Background()
	suite.userID = uuid.New()
	suite.now = time.Date(2025, 3, 20, 9, 0, 0, 0, time.FixedZone("CST", -6*60*60))
}

func (suite *UsageServiceTestSuite) TearDownTest() {
	suite.subscriptions.AssertExpectations(suite.T())
	suite.orders.AssertExpectations(suite.T())
	suite.cache.AssertExpectations(suite.T())
}

func TestUsageServiceTestSuite(t *testing.T) {
	suite.Run(t, new(UsageServiceTestSuite))
}

func (suite *UsageServiceTestSuite) TestForUser_ComputesAndCaches() {
	key := "usage:" + suite.userID.String()
	cycleStart := CycleStart(suite.now)
	sub := &models.Subscription{ID: uuid.New(), PlanName: models.PlanFamily, IncludedLbs: 60, ExtraRate: 1.60}

	suite.cache.On("GetJSON", suite.ctx, key, mock.Anything).Return(false, nil)
	suite.subscriptions.On("GetActiveByUserID", suite.ctx, suite.userID).Return(sub, nil)
	suite.orders.On("ListForUserSince", suite.ctx, suite.userID, cycleStart).Return(ordersWeighing(ptr(45.0), ptr(25.0)), nil)
	suite.cache.On("SetJSON", suite.ctx, key, mock.AnythingOfType("*services.UsageReport"), 5*time.Minute).Return(nil)

	report, err := suite.service.ForUser(suite.ctx, suite.userID, suite.now)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.PlanFamily, report.PlanName)
	assert.Equal(suite.T(), 70.0, report.Used)
	assert.Equal(suite.T(), 10.0, report.OverageLbs)
	assert.Equal(suite.T(), 16.0, report.OverageAmount)
	assert.Equal(suite.T(), 116.7, report.UsedPercent)
	assert.True(suite.T(), cycleStart.Equal(report.CycleStart))
}

func (suite *UsageServiceTestSuite) TestForUser_ServesCurrentCycleFromCache() {
	key := "usage:" + suite.userID.String()
	cached := UsageReport{PlanName: models.PlanHousehold, CycleStart: CycleStart(suite.now), Usage: Usage{Used: 42}}
	suite.cache.On("GetJSON", suite.ctx, key, mock.Anything).Return(func(dest any) {
		*dest.(*UsageReport) = cached
	}, nil)

	report, err := suite.service.ForUser(suite.ctx, suite.userID, suite.now)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 42.0, report.Used)
	suite.subscriptions.AssertNotCalled(suite.T(), "GetActiveByUserID", mock.Anything, mock.Anything)
}

func (suite *UsageServiceTestSuite) TestForUser_IgnoresCacheFromPreviousCycle() {
	key := "usage:" + suite.userID.String()
	stale := UsageReport{CycleStart: CycleStart(suite.now).AddDate(0, -1, 0), Usage: Usage{Used: 99}}
	sub := &models.Subscription{ID: uuid.New(), IncludedLbs: 100, ExtraRate: 1.60}

	suite.cache.On("GetJSON", suite.ctx, key, mock.Anything).Return(func(dest any) {
		*dest.(*UsageReport) = stale
	}, nil)
	suite.subscriptions.On("GetActiveByUserID", suite.ctx, suite.userID).Return(sub, nil)
	suite.orders.On("ListForUserSince", suite.ctx, suite.userID, CycleStart(suite.now)).Return([]*models.Order{}, nil)
	suite.cache.On("SetJSON", suite.ctx, key, mock.Anything, 5*time.Minute).Return(nil)

	report, err := suite.service.ForUser(suite.ctx, suite.userID, suite.now)

	require.NoError(suite.T(), err)
	assert.Zero(suite.T(), report.Used)
	assert.Equal(suite.T(), 100.0, report.Remaining)
}

func (suite *UsageServiceTestSuite) TestForUser_CacheOutageFallsThrough() {
	key := "usage:" + suite.userID.String()
	sub := &models.Subscription{ID: uuid.New(), IncludedLbs: 30, ExtraRate: 1.60}

	suite.cache.On("GetJSON", suite.ctx, key, mock.Anything).Return(false, errors.New("redis down"))
	suite.subscriptions.On("GetActiveByUserID", suite.ctx, suite.userID).Return(sub, nil)
	suite.orders.On("ListForUserSince", suite.ctx, suite.userID, CycleStart(suite.now)).Return(ordersWeighing(ptr(10.0)), nil)
	suite.cache.On("SetJSON", suite.ctx, key, mock.Anything, 5*time.Minute).Return(errors.New("redis down"))

	report, err := suite.service.ForUser(suite.ctx, suite.userID, suite.now)

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 20.0, report.Remaining)
}

func (suite *UsageServiceTestSuite) TestForUser_NoActiveSubscription() {
	suite.cache.On("GetJSON", suite.ctx, mock.Anything, mock.Anything).Return(false, nil)
	suite.subscriptions.On("GetActiveByUserID", suite.ctx, suite.userID).Return(nil, repositories.ErrNotFound)

	_, err := suite.service.ForUser(suite.ctx, suite.userID, suite.now)

	assert.ErrorIs(suite.T(), err, ErrSubscriptionNotFound)
}

func (suite *UsageServiceTestSuite) TestInvalidate() {
	suite.cache.On("Delete", suite.ctx, []string{"usage:" + suite.userID.String()}).Return(nil)

	suite.service.Invalidate(suite.ctx, suite.userID)
}

func TestUsageService_WithoutCache(t *testing.T) {
	subscriptions := new(MockSubscriptionRepository)
	orders := new(MockOrderRepository)
	service := NewUsageService(subscriptions, orders, nil, time.Minute, zap.NewNop())
	ctx := context.Background()
	userID := uuid.New()
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	subscriptions.On("GetActiveByUserID", ctx, userID).Return(&models.Subscription{IncludedLbs: 80, ExtraRate: 1.5}, nil)
	orders.On("ListForUserSince", ctx, userID, CycleStart(now)).Return(ordersWeighing(ptr(95.0)), nil)

	report, err := service.ForUser(ctx, userID, now)

	require.NoError(t, err)
	assert.Equal(t, 22.5, report.OverageAmount)
	service.Invalidate(ctx, userID)
	subscriptions.AssertExpectations(t)
	orders.AssertExpectations(t)
}
