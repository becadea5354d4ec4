package jobs

import (
	"context"
	"fmt"
	"time"

	"badgerland/internal/models"
	"badgerland/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AutoPickupScheduler books the next pickup for subscribers whose plan has an
// automatic cadence. It is safe to run as often as wanted: a pickup already
// booked for the same slot, or one still inside the cadence spacing, is left alone.
type AutoPickupScheduler struct {
	subscriptions repositories.SubscriptionRepository
	orders        repositories.OrderRepository
	notifications repositories.NotificationRepository
	logger        *zap.Logger
}

func NewAutoPickupScheduler(
	subscriptions repositories.SubscriptionRepository,
	orders repositories.OrderRepository,
	notifications repositories.NotificationRepository,
	logger *zap.Logger,
) *AutoPickupScheduler {
	return &AutoPickupScheduler{
		subscriptions: subscriptions,
		orders:        orders,
		notifications: notifications,
		logger:        logger.With(zap.String("job", models.JobAutoPickups)),
	}
}

// AutoPickupMessage is the notification text for a newly booked pickup.
func AutoPickupMessage(cadence models.Cadence, date time.Time, slot string) string {
	return fmt.Sprintf("Your %s pickup has been scheduled for %s at %s.", cadence, date.Format("2006-01-02"), slot)
}

func (s *AutoPickupScheduler) Run(ctx context.Context, now time.Time) (*models.JobReport, error) {
	report := models.NewJobReport(models.JobAutoPickups, now)

	subs, err := s.subscriptions.ListActiveWithPickupPreference(ctx)
	if err != nil {
		s.logger.Error("listing subscriptions failed", zap.Error(err))
		return report.Finish(time.Now()), fmt.Errorf("list subscriptions with pickup preference: %w", err)
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report.Finish(time.Now()), err
		}
		s.schedule(ctx, report, sub, now)
	}

	s.logger.Info("auto pickups finished",
		zap.Int("processed", report.Processed),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report.Finish(time.Now()), nil
}

func (s *AutoPickupScheduler) schedule(ctx context.Context, report *models.JobReport, sub *models.Subscription, now time.Time) {
	subject := sub.UserLabel()
	log := s.logger.With(zap.String("subscriber", subject), zap.String("plan", sub.PlanName))

	if sub.UserID == nil || !sub.HasPickupPreference() {
		report.AddSkipped(subject, "no user or pickup preference")
		return
	}

	cadence := models.CadenceForPlan(sub.PlanName)
	weekday, ok := ParseWeekday(*sub.PickupDay)
	if !ok {
		log.Warn("unrecognized pickup day", zap.String("pickup_day", *sub.PickupDay))
		report.AddSkipped(subject, fmt.Sprintf("unrecognized pickup day %q", *sub.PickupDay))
		return
	}
	date, ok := NextPickupDate(now, weekday, cadence)
	if !ok {
		report.AddSkipped(subject, "manual cadence")
		return
	}
	slot := *sub.PickupTime

	exists, err := s.orders.ExistsForSlot(ctx, *sub.UserID, date, slot)
	if err != nil {
		log.Error("duplicate check failed", zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("check existing order: %w", err))
		return
	}
	if exists {
		report.AddSkipped(subject, "already scheduled")
		return
	}

	latest, err := s.orders.LatestSubscriberPickup(ctx, *sub.UserID)
	if err != nil {
		log.Error("latest pickup lookup failed", zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("load latest pickup: %w", err))
		return
	}
	if latest != nil && dateOnly(*latest).After(date.AddDate(0, 0, -cadenceSpacing(cadence))) {
		report.AddSkipped(subject, "pickup already booked for this period")
		return
	}

	zero := 0.0
	order := &models.Order{
		ID:         uuid.New(),
		UserID:     sub.UserID,
		PickupDate: date,
		PickupTime: slot,
		Pounds:     &zero,
		TotalPrice: 0,
		Status:     models.OrderStatusScheduled,
		Service:    models.ServiceSubscriber,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		log.Error("creating pickup failed", zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("create order: %w", err))
		return
	}

	notification := &models.Notification{
		UserID:  sub.UserID,
		Type:    models.NotificationTypeAutoPickup,
		Message: AutoPickupMessage(cadence, date, slot),
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		log.Error("writing pickup notification failed", zap.Stringer("order_id", order.ID), zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("order %s created but notification failed: %w", order.ID, err))
		return
	}

	log.Info("pickup scheduled", zap.Stringer("order_id", order.ID), zap.Time("pickup_date", date))
	report.AddCreated(subject, date.Format("2006-01-02")+" "+slot)
}
