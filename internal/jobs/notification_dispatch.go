package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"badgerland/internal/models"
	"badgerland/internal/repositories"
	"badgerland/internal/services"

	"go.uber.org/zap"
)

const defaultDispatchBatch = 100

// Deliverer pushes one stored notification to a user's channels.
type Deliverer interface {
	Deliver(ctx context.Context, notification *models.Notification, profile *models.Profile) error
}

// NotificationDispatcher sends stored notifications by email and SMS and
// marks them dispatched. A notification whose delivery fails stays pending
// and is retried on the next run.
type NotificationDispatcher struct {
	notifications repositories.NotificationRepository
	profiles      repositories.ProfileRepository
	deliverer     Deliverer
	batchSize     int
	logger        *zap.Logger
}

func NewNotificationDispatcher(
	notifications repositories.NotificationRepository,
	profiles repositories.ProfileRepository,
	deliverer Deliverer,
	batchSize int,
	logger *zap.Logger,
) *NotificationDispatcher {
	if batchSize <= 0 {
		batchSize = defaultDispatchBatch
	}
	return &NotificationDispatcher{
		notifications: notifications,
		profiles:      profiles,
		deliverer:     deliverer,
		batchSize:     batchSize,
		logger:        logger.With(zap.String("job", models.JobNotificationDispatch)),
	}
}

var _ Deliverer = (*services.Notifier)(nil)

func (d *NotificationDispatcher) Run(ctx context.Context, now time.Time) (*models.JobReport, error) {
	report := models.NewJobReport(models.JobNotificationDispatch, now)

	pending, err := d.notifications.ListUndispatched(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("listing notifications failed", zap.Error(err))
		return report.Finish(time.Now()), fmt.Errorf("list undispatched notifications: %w", err)
	}

	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return report.Finish(time.Now()), err
		}
		d.dispatch(ctx, report, n)
	}

	if report.Processed > 0 {
		d.logger.Info("notifications dispatched",
			zap.Int("sent", report.Created),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	return report.Finish(time.Now()), nil
}

func (d *NotificationDispatcher) dispatch(ctx context.Context, report *models.JobReport, n *models.Notification) {
	subject := n.ID.String()
	if n.UserID == nil {
		report.AddSkipped(subject, "no recipient")
		return
	}
	log := d.logger.With(zap.Stringer("notification_id", n.ID), zap.Stringer("user_id", *n.UserID))

	profile, err := d.profiles.GetByUserID(ctx, *n.UserID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		// Nobody to reach; mark it so it does not come back every run.
		d.markDispatched(ctx, report, n, "no profile")
		return
	case err != nil:
		log.Error("profile lookup failed", zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("load profile: %w", err))
		return
	}

	if err := d.deliverer.Deliver(ctx, n, profile); err != nil {
		log.Warn("delivery failed", zap.Error(err))
		report.AddFailed(subject, fmt.Errorf("deliver: %w", err))
		return
	}
	d.markDispatched(ctx, report, n, "")
}

func (d *NotificationDispatcher) markDispatched(ctx context.Context, report *models.JobReport, n *models.Notification, skipReason string) {
	at := time.Now()
	if err := d.notifications.MarkDispatched(ctx, n.ID, at); err != nil {
		d.logger.Error("marking notification dispatched failed", zap.Stringer("notification_id", n.ID), zap.Error(err))
		report.AddFailed(n.ID.String(), fmt.Errorf("mark dispatched: %w", err))
		return
	}
	n.DispatchedAt = &at
	if skipReason != "" {
		report.AddSkipped(n.ID.String(), skipReason)
		return
	}
	report.AddCreated(n.ID.String(), string(n.Type))
}
