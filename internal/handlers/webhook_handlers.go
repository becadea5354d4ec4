package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"badgerland/internal/common"
	"badgerland/internal/metrics"
	"badgerland/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	// Stripe retries for up to three days; a delivery seen in the last two is a duplicate.
	eventDedupTTL = 48 * time.Hour
	// maxWebhookBody caps what we read from a webhook delivery.
	maxWebhookBody = 64 << 10
)

// EventDeduplicator remembers which Stripe events were already applied.
type EventDeduplicator interface {
	MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

// WebhookHandlers handles HTTP requests for webhooks
type WebhookHandlers struct {
	subscriptionService services.SubscriptionService
	dedup               EventDeduplicator
	webhookSecret       string
	metrics             *metrics.Metrics
	logger              *zap.Logger
}

// NewWebhookHandlers creates a new webhook handlers instance. dedup may be nil.
func NewWebhookHandlers(
	subscriptionService services.SubscriptionService,
	dedup EventDeduplicator,
	webhookSecret string,
	m *metrics.Metrics,
	logger *zap.Logger,
) *WebhookHandlers {
	return &WebhookHandlers{
		subscriptionService: subscriptionService,
		dedup:               dedup,
		webhookSecret:       webhookSecret,
		metrics:             m,
		logger:              logger.With(zap.String("component", "stripe-webhook")),
	}
}

// StripeWebhook handles POST /webhooks/stripe
func (h *WebhookHandlers) StripeWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.IncWebhookEvent("unknown", "too_large")
			h.logger.Warn("webhook body over limit", zap.Int64("limit", tooLarge.Limit))
			return common.SendPayloadTooLargeError(c, "Webhook body too large")
		}
		return common.SendClientError(c, "Failed to read request body")
	}

	event, err := services.ParseStripeEvent(body, c.Request().Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		if errors.Is(err, services.ErrSignatureInvalid) {
			h.metrics.IncWebhookEvent("unknown", "invalid_signature")
			h.logger.Warn("rejected webhook signature", zap.Error(err))
			return common.SendClientError(c, "Invalid webhook signature")
		}
		h.metrics.IncWebhookEvent("unknown", "malformed")
		h.logger.Warn("malformed webhook event", zap.Error(err))
		return common.SendClientError(c, "Malformed event payload")
	}

	log := h.logger.With(zap.String("event_id", event.EventID()), zap.String("event_type", event.EventType()))

	if h.dedup != nil {
		first, err := h.dedup.MarkEventProcessed(ctx, event.EventID(), eventDedupTTL)
		if err != nil {
			// Without the cache we still apply the event; handlers are idempotent on stripe ids.
			log.Warn("event dedup unavailable", zap.Error(err))
		} else if !first {
			h.metrics.IncWebhookEvent(event.EventType(), "duplicate")
			log.Info("duplicate webhook event ignored")
			return c.JSON(http.StatusOK, map[string]bool{"received": true})
		}
	}

	if err := h.subscriptionService.ApplyEvent(ctx, event); err != nil {
		h.metrics.IncWebhookEvent(event.EventType(), "failed")
		log.Error("applying webhook event failed", zap.Error(err))
		if h.dedup != nil {
			if rerr := h.dedup.ReleaseEvent(context.WithoutCancel(ctx), event.EventID()); rerr != nil {
				log.Warn("releasing event for retry failed", zap.Error(rerr))
			}
		}
		return common.SendServerError(c, "Failed to process event")
	}

	h.metrics.IncWebhookEvent(event.EventType(), "ok")
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
