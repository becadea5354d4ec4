package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"badgerland/internal/models"
	"badgerland/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// BookingRequest is a pickup booked from the website, by a guest or a signed-in user.
type BookingRequest struct {
	UserID                 *uuid.UUID
	FullName               string
	Address                string
	Phone                  string
	Email                  string
	PickupDate             string
	PickupTime             string
	Service                string
	Detergent              string
	DryerSheets            bool
	Instructions           string
	Bags                   *int
	Estimate               *float64
	NotificationPreference string
}

func (r BookingRequest) validate() error {
	var problems []string
	if strings.TrimSpace(r.FullName) == "" {
		problems = append(problems, "full_name is required")
	}
	if strings.TrimSpace(r.Address) == "" {
		problems = append(problems, "address is required")
	}
	if strings.TrimSpace(r.Phone) == "" && strings.TrimSpace(r.Email) == "" {
		problems = append(problems, "phone or email is required")
	}
	if _, err := time.Parse(dateLayout, r.PickupDate); err != nil {
		problems = append(problems, "pickup_date must be YYYY-MM-DD")
	}
	if !models.IsPickupSlot(r.PickupTime) {
		problems = append(problems, "pickup_time is not an offered slot")
	}
	// Subscriber pickups are created by the scheduler only.
	if strings.EqualFold(strings.TrimSpace(r.Service), models.ServiceSubscriber) {
		problems = append(problems, "service subscriber cannot be booked directly")
	}
	switch r.NotificationPreference {
	case "", "email", "sms", "both", "none":
	default:
		problems = append(problems, "notification_preference must be email, sms, both or none")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidBooking, strings.Join(problems, "; "))
	}
	return nil
}

// Pricing applies to orders not covered by a subscription.
type Pricing struct {
	GuestRate     float64
	MinimumCharge float64
}

// GuestPrice is pounds at the per-pound rate, never below the minimum order.
func (p Pricing) GuestPrice(pounds float64) float64 {
	return RoundCents(math.Max(pounds*p.GuestRate, p.MinimumCharge))
}

type OrderService interface {
	Book(ctx context.Context, req BookingRequest) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.Order, error)
	RecordWeight(ctx context.Context, id uuid.UUID, pounds float64) (*models.Order, error)
}

type orderService struct {
	orders        repositories.OrderRepository
	subscriptions repositories.SubscriptionRepository
	notifications repositories.NotificationRepository
	profiles      repositories.ProfileRepository
	usage         *UsageService
	notifier      *Notifier
	pricing       Pricing
	logger        *zap.Logger
}

func NewOrderService(
	orders repositories.OrderRepository,
	subscriptions repositories.SubscriptionRepository,
	notifications repositories.NotificationRepository,
	profiles repositories.ProfileRepository,
	usage *UsageService,
	notifier *Notifier,
	pricing Pricing,
	logger *zap.Logger,
) OrderService {
	return &orderService{
		orders:        orders,
		subscriptions: subscriptions,
		notifications: notifications,
		profiles:      profiles,
		usage:         usage,
		notifier:      notifier,
		pricing:       pricing,
		logger:        logger,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *orderService) Book(ctx context.Context, req BookingRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	pickupDate, _ := time.Parse(dateLayout, req.PickupDate)

	order := &models.Order{
		ID:                     uuid.New(),
		UserID:                 req.UserID,
		FullName:               optional(req.FullName),
		Address:                optional(req.Address),
		Phone:                  optional(req.Phone),
		Email:                  optional(req.Email),
		PickupDate:             pickupDate,
		PickupTime:             req.PickupTime,
		Status:                 models.OrderStatusPending,
		Service:                req.Service,
		Detergent:              optional(req.Detergent),
		DryerSheets:            req.DryerSheets,
		Instructions:           optional(req.Instructions),
		Bags:                   req.Bags,
		Estimate:               req.Estimate,
		NotificationPreference: optional(req.NotificationPreference),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := s.notifier.NotifyBooking(ctx, order); err != nil {
		s.logger.Error("booking notification failed", zap.Stringer("order_id", order.ID), zap.Error(err))
	}
	return order, nil
}

func (s *orderService) load(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func (s *orderService) UpdateStatus(ctx context.Context, id uuid.UUID, raw string) (*models.Order, error) {
	status, ok := models.ParseOrderStatus(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanAdvanceTo(status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, status)
	}

	if err := s.orders.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	order.Status = status
	s.announceStatus(ctx, order)
	return order, nil
}

// announceStatus records the change for signed-in customers and sends it out.
// Failures here never undo the status update.
func (s *orderService) announceStatus(ctx context.Context, order *models.Order) {
	var profile *models.Profile
	if order.UserID != nil {
		p, err := s.profiles.GetByUserID(ctx, *order.UserID)
		switch {
		case err == nil:
			profile = p
		case !errors.Is(err, repositories.ErrNotFound):
			s.logger.Warn("profile lookup failed", zap.Stringer("user_id", *order.UserID), zap.Error(err))
		}

		name := deref(order.FullName)
		if profile != nil && profile.FullName != nil {
			name = *profile.FullName
		}
		_, message := StatusMessage(order.Status, name)
		n := &models.Notification{UserID: order.UserID, Type: models.NotificationTypeOrderStatus, Message: message}
		if err := s.notifications.Create(ctx, n); err != nil {
			s.logger.Error("order status notification not stored", zap.Stringer("order_id", order.ID), zap.Error(err))
		}
	}

	if err := s.notifier.NotifyOrderStatus(ctx, order, profile); err != nil {
		s.logger.Error("order status message failed", zap.Stringer("order_id", order.ID), zap.Error(err))
	}
}

// RecordWeight stores the weighed pounds and completes the order. Pounds on
// a subscriber's order are covered by the plan and billed as overage; every
// other order is priced here.
func (s *orderService) RecordWeight(ctx context.Context, id uuid.UUID, pounds float64) (*models.Order, error) {
	if pounds <= 0 || math.IsNaN(pounds) || math.IsInf(pounds, 0) {
		return nil, ErrInvalidWeight
	}
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	covered, err := s.coveredBySubscription(ctx, order)
	if err != nil {
		return nil, err
	}
	total := 0.0
	if !covered {
		total = s.pricing.GuestPrice(pounds)
	}

	if err := s.orders.RecordWeight(ctx, id, pounds, total); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	order.Pounds = &pounds
	order.TotalPrice = total
	order.Status = models.OrderStatusCompleted
	if order.UserID != nil {
		s.usage.Invalidate(ctx, *order.UserID)
	}
	return order, nil
}

func (s *orderService) coveredBySubscription(ctx context.Context, order *models.Order) (bool, error) {
	if order.UserID == nil {
		return false, nil
	}
	if order.IsSubscriberOrder() {
		return true, nil
	}
	_, err := s.subscriptions.GetActiveByUserID(ctx, *order.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return true, nil
}
