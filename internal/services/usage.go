package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"badgerland/internal/models"
	"badgerland/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Usage is a subscriber's consumption for the current billing cycle.
type Usage struct {
	IncludedLbs   float64 `json:"included_lbs"`
	Used          float64 `json:"used"`
	Remaining     float64 `json:"remaining"`
	OverageLbs    float64 `json:"overage_lbs"`
	OverageAmount float64 `json:"overage_amount"`
}

// UsedPercent is for display only. The divisor is floored at 1 lb so a plan
// with no allowance does not divide by zero.
func (u Usage) UsedPercent() float64 {
	return math.Round(u.Used/math.Max(u.IncludedLbs, 1)*1000) / 10
}

// ComputeUsage sums the pounds of the cycle's orders against the plan
// allowance. Orders without a recorded weight count as zero.
func ComputeUsage(sub *models.Subscription, orders []*models.Order) Usage {
	var used float64
	for _, o := range orders {
		if o == nil || o.Pounds == nil {
			continue
		}
		used += *o.Pounds
	}

	u := Usage{
		IncludedLbs: sub.IncludedLbs,
		Used:        used,
		Remaining:   math.Max(sub.IncludedLbs-used, 0),
		OverageLbs:  math.Max(used-sub.IncludedLbs, 0),
	}
	u.OverageAmount = RoundCents(u.OverageLbs * math.Max(sub.ExtraRate, 0))
	return u
}

// RoundCents rounds a dollar amount to the nearest cent.
func RoundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// ToCents converts dollars to the minor currency unit.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CycleStart is the first instant of now's calendar month, in now's location.
func CycleStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// UsageCache holds computed usage reports between dashboard loads.
type UsageCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// UsageService loads a subscriber's cycle and runs ComputeUsage over it.
type UsageService struct {
	subscriptions repositories.SubscriptionRepository
	orders        repositories.OrderRepository
	cache         UsageCache
	ttl           time.Duration
	logger        *zap.Logger
}

// NewUsageService builds the service. cache may be nil.
func NewUsageService(subscriptions repositories.SubscriptionRepository, orders repositories.OrderRepository, cache UsageCache, ttl time.Duration, logger *zap.Logger) *UsageService {
	return &UsageService{subscriptions: subscriptions, orders: orders, cache: cache, ttl: ttl, logger: logger}
}

func usageKey(userID uuid.UUID) string {
	return "usage:" + userID.String()
}

// Invalidate drops the cached report after the user's orders change.
func (s *UsageService) Invalidate(ctx context.Context, userID uuid.UUID) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, usageKey(userID)); err != nil {
		s.logger.Warn("usage cache invalidation failed", zap.Stringer("user_id", userID), zap.Error(err))
	}
}

// UsageReport is what the account dashboard renders.
type UsageReport struct {
	PlanName    string     `json:"plan_name"`
	CycleStart  time.Time  `json:"cycle_start"`
	RenewalDate *time.Time `json:"renewal_date"`
	ExtraRate   float64    `json:"extra_rate"`
	UsedPercent float64    `json:"used_percent"`
	Usage
}

func (s *UsageService) ForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*UsageReport, error) {
	cycleStart := CycleStart(now)
	if s.cache != nil {
		var cached UsageReport
		found, err := s.cache.GetJSON(ctx, usageKey(userID), &cached)
		if err != nil {
			s.logger.Warn("usage cache read failed", zap.Stringer("user_id", userID), zap.Error(err))
		}
		if found && cached.CycleStart.Equal(cycleStart) {
			return &cached, nil
		}
	}

	sub, err := s.subscriptions.GetActiveByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	orders, err := s.orders.ListForUserSince(ctx, userID, cycleStart)
	if err != nil {
		return nil, fmt.Errorf("load cycle orders: %w", err)
	}

	usage := ComputeUsage(sub, orders)
	report := &UsageReport{
		PlanName:    sub.PlanName,
		CycleStart:  cycleStart,
		RenewalDate: sub.RenewalDate,
		ExtraRate:   sub.ExtraRate,
		UsedPercent: usage.UsedPercent(),
		Usage:       usage,
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, usageKey(userID), report, s.ttl); err != nil {
			s.logger.Warn("usage cache write failed", zap.Stringer("user_id", userID), zap.Error(err))
		}
	}
	return report, nil
}
