package services

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("active subscription not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidTransition    = errors.New("order status cannot move backwards")
	ErrInvalidWeight        = errors.New("weight must be positive")
	ErrInvalidBooking       = errors.New("invalid booking")
	ErrSignatureInvalid     = errors.New("invalid webhook signature")
	ErrMissingPriceIDs      = errors.New("base and metered price ids are required")
	ErrSubscriptionPending  = errors.New("subscription not synced yet")
)
