package services

import (
	"context"
	"errors"
	"fmt"

	"badgerland/internal/models"
	"badgerland/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const newSubscriptionMessage = "A new user subscribed"

// SubscriptionService keeps the subscriptions table in step with Stripe.
type SubscriptionService interface {
	ApplyEvent(ctx context.Context, event StripeEvent) error
}

type subscriptionService struct {
	subscriptions repositories.SubscriptionRepository
	notifications repositories.NotificationRepository
	logger        *zap.Logger
}

func NewSubscriptionService(
	subscriptions repositories.SubscriptionRepository,
	notifications repositories.NotificationRepository,
	logger *zap.Logger,
) SubscriptionService {
	return &subscriptionService{
		subscriptions: subscriptions,
		notifications: notifications,
		logger:        logger,
	}
}

func (s *subscriptionService) ApplyEvent(ctx context.Context, event StripeEvent) error {
	switch e := event.(type) {
	case CheckoutCompleted:
		return s.checkoutCompleted(ctx, e)
	case SubscriptionUpserted:
		return s.upsert(ctx, e)
	case SubscriptionDeleted:
		return s.deactivate(ctx, e)
	case IgnoredEvent:
		s.logger.Debug("ignoring stripe event", zap.String("event_id", e.ID), zap.String("type", e.Type))
		return nil
	default:
		return fmt.Errorf("unhandled stripe event variant %T", event)
	}
}

func (s *subscriptionService) checkoutCompleted(ctx context.Context, e CheckoutCompleted) error {
	if e.UserID == "" {
		s.logger.Warn("checkout session without user_id metadata", zap.String("event_id", e.ID), zap.String("customer", e.CustomerID))
		return nil
	}
	userID, err := uuid.Parse(e.UserID)
	if err != nil {
		s.logger.Warn("checkout session with malformed user_id", zap.String("event_id", e.ID), zap.String("user_id", e.UserID))
		return nil
	}

	// Checkout can arrive before customer.subscription.created. Failing here
	// makes Stripe redeliver once the row exists.
	if err := s.subscriptions.AttachUser(ctx, e.CustomerID, userID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Warn("no subscription row for checkout customer yet", zap.String("customer", e.CustomerID))
			return fmt.Errorf("%w: customer %s", ErrSubscriptionPending, e.CustomerID)
		}
		return fmt.Errorf("attach user: %w", err)
	}
	s.logger.Info("attached user to subscription", zap.String("customer", e.CustomerID), zap.Stringer("user_id", userID))

	n := &models.Notification{UserID: &userID, Type: models.NotificationTypeNewSubscription, Message: newSubscriptionMessage}
	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("new subscription notification: %w", err)
	}
	return nil
}

func (s *subscriptionService) upsert(ctx context.Context, e SubscriptionUpserted) error {
	if e.CustomerID == "" {
		return fmt.Errorf("subscription %s has no customer", e.SubscriptionID)
	}
	includedLbs, extraRate := e.PlanTerms()
	sub := &models.Subscription{
		ID:                   uuid.New(),
		StripeCustomerID:     e.CustomerID,
		StripeSubscriptionID: e.SubscriptionID,
		PlanName:             e.PlanName,
		IncludedLbs:          includedLbs,
		ExtraRate:            extraRate,
		RenewalDate:          e.RenewalDate,
		Active:               e.Active,
	}
	if e.UserID != "" {
		if userID, err := uuid.Parse(e.UserID); err == nil {
			sub.UserID = &userID
		} else {
			s.logger.Warn("subscription with malformed user_id metadata", zap.String("subscription", e.SubscriptionID), zap.String("user_id", e.UserID))
		}
	}
	if err := s.subscriptions.UpsertByCustomerID(ctx, sub); err != nil {
		return err
	}
	s.logger.Info("subscription upserted",
		zap.String("customer", e.CustomerID),
		zap.String("plan", e.PlanName),
		zap.Bool("active", e.Active),
	)
	return nil
}

func (s *subscriptionService) deactivate(ctx context.Context, e SubscriptionDeleted) error {
	err := s.subscriptions.DeactivateByStripeSubscriptionID(ctx, e.SubscriptionID)
	if errors.Is(err, repositories.ErrNotFound) {
		s.logger.Warn("deleted subscription not found locally", zap.String("subscription", e.SubscriptionID))
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info("subscription marked inactive", zap.String("subscription", e.SubscriptionID))
	return nil
}
