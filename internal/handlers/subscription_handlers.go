package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"badgerland/internal/common"
	"badgerland/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// UsageReporter is the account dashboard's view of the current cycle.
type UsageReporter interface {
	ForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*services.UsageReport, error)
}

// SubscriptionHandlers handles checkout and account usage for subscribers
type SubscriptionHandlers struct {
	billing services.BillingService
	usage   UsageReporter
	now     func() time.Time
	logger  *zap.Logger
}

// NewSubscriptionHandlers creates a new subscription handlers instance
func NewSubscriptionHandlers(billing services.BillingService, usage UsageReporter, location *time.Location, logger *zap.Logger) *SubscriptionHandlers {
	if location == nil {
		location = time.UTC
	}
	return &SubscriptionHandlers{
		billing: billing,
		usage:   usage,
		now:     func() time.Time { return time.Now().In(location) },
		logger:  logger,
	}
}

// CreateCheckout handles POST /v1/checkout
func (h *SubscriptionHandlers) CreateCheckout(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	var req struct {
		BasePriceID    string `json:"base_price_id"`
		MeteredPriceID string `json:"metered_price_id"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if strings.TrimSpace(req.BasePriceID) == "" || strings.TrimSpace(req.MeteredPriceID) == "" {
		return common.SendClientError(c, services.ErrMissingPriceIDs.Error())
	}

	url, err := h.billing.CreateCheckoutSession(ctx, services.CheckoutRequest{
		UserID:         userID.String(),
		BasePriceID:    req.BasePriceID,
		MeteredPriceID: req.MeteredPriceID,
	})
	if err != nil {
		if errors.Is(err, services.ErrMissingPriceIDs) {
			return common.SendClientError(c, err.Error())
		}
		if errors.Is(err, services.ErrCircuitOpen) {
			return common.SendUnavailableError(c, "Payments are temporarily unavailable")
		}
		h.logger.Error("checkout session failed", zap.Stringer("user_id", userID), zap.Error(err))
		return common.SendServerError(c, "Failed to start checkout")
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

// GetUsage handles GET /v1/me/usage
func (h *SubscriptionHandlers) GetUsage(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	report, err := h.usage.ForUser(ctx, userID, h.now())
	if err != nil {
		if errors.Is(err, services.ErrSubscriptionNotFound) {
			return common.SendNotFoundError(c, "Active subscription")
		}
		h.logger.Error("usage lookup failed", zap.Stringer("user_id", userID), zap.Error(err))
		return common.SendServerError(c, "Failed to load usage")
	}
	return c.JSON(http.StatusOK, report)
}
