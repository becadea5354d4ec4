package handlers

import (
	"errors"
	"net/http"

	"badgerland/internal/common"
	"badgerland/internal/services"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// maxOrderPounds bounds a single weigh-in.
const maxOrderPounds = 1000.0

// OrderHandlers handles HTTP requests for pickups
type OrderHandlers struct {
	orderService services.OrderService
	logger       *zap.Logger
}

// NewOrderHandlers creates a new order handlers instance
func NewOrderHandlers(orderService services.OrderService, logger *zap.Logger) *OrderHandlers {
	return &OrderHandlers{
		orderService: orderService,
		logger:       logger,
	}
}

type bookingRequest struct {
	FullName               string   `json:"full_name"`
	Address                string   `json:"address"`
	Phone                  string   `json:"phone"`
	Email                  string   `json:"email"`
	PickupDate             string   `json:"pickup_date"`
	PickupTime             string   `json:"pickup_time"`
	Service                string   `json:"service"`
	Detergent              string   `json:"detergent"`
	DryerSheets            bool     `json:"dryer_sheets"`
	Instructions           string   `json:"instructions"`
	Bags                   *int     `json:"bags"`
	Estimate               *float64 `json:"estimate"`
	NotificationPreference string   `json:"notification_preference"`
}

// BookPickup handles POST /v1/orders. Guests may book; a signed-in caller's
// user id is attached to the order.
func (h *OrderHandlers) BookPickup(c echo.Context) error {
	ctx := c.Request().Context()

	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}

	booking := services.BookingRequest{
		FullName:               req.FullName,
		Address:                req.Address,
		Phone:                  req.Phone,
		Email:                  req.Email,
		PickupDate:             req.PickupDate,
		PickupTime:             req.PickupTime,
		Service:                req.Service,
		Detergent:              req.Detergent,
		DryerSheets:            req.DryerSheets,
		Instructions:           req.Instructions,
		Bags:                   req.Bags,
		Estimate:               req.Estimate,
		NotificationPreference: req.NotificationPreference,
	}
	if userID, ok := common.GetUserIDFromContext(ctx); ok {
		booking.UserID = &userID
	}

	order, err := h.orderService.Book(ctx, booking)
	if err != nil {
		return h.sendOrderError(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

// UpdateStatus handles PUT /v1/admin/orders/:id/status
func (h *OrderHandlers) UpdateStatus(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := common.ValidateRequiredString(req.Status, "status"); err != nil {
		return common.SendValidationError(c, "status", err.Error())
	}

	order, err := h.orderService.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return h.sendOrderError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// RecordWeight handles PUT /v1/admin/orders/:id/weight
func (h *OrderHandlers) RecordWeight(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req struct {
		Pounds float64 `json:"pounds"`
	}
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request format")
	}
	if err := common.ValidatePositiveFloat(req.Pounds, "pounds", maxOrderPounds); err != nil {
		return common.SendValidationError(c, "pounds", err.Error())
	}

	order, err := h.orderService.RecordWeight(c.Request().Context(), id, req.Pounds)
	if err != nil {
		return h.sendOrderError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHandlers) sendOrderError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidBooking),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrInvalidWeight):
		return common.SendClientError(c, err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		return common.SendConflictError(c, err.Error())
	case errors.Is(err, services.ErrOrderNotFound):
		return common.SendNotFoundError(c, "Order")
	default:
		h.logger.Error("order request failed", zap.String("path", c.Path()), zap.Error(err))
		return common.SendServerError(c, "Failed to process order")
	}
}
