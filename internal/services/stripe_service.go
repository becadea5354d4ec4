package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"badgerland/internal/metrics"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"go.uber.org/zap"
)

const (
	metadataUserIDKey         = "user_id"
	metadataIdempotencyKeyKey = "idempotency_key"
)

// InvoiceItemRequest is a one-off charge added to the customer's next invoice.
type InvoiceItemRequest struct {
	CustomerID     string
	AmountCents    int64
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type CheckoutRequest struct {
	UserID         string
	BasePriceID    string
	MeteredPriceID string
}

// BillingService is the part of Stripe the jobs and handlers call.
type BillingService interface {
	CreateInvoiceItem(ctx context.Context, req InvoiceItemRequest) (string, error)
	// FindInvoiceItem returns the id of an invoice item created for the
	// customer since the given time under idempotencyKey, or "" if none.
	FindInvoiceItem(ctx context.Context, customerID, idempotencyKey string, since time.Time) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
}

type StripeConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	// APIURL overrides the Stripe API host (stripe-mock or a test server).
	APIURL  string
	Breaker BreakerConfig
}

type stripeBillingService struct {
	api        *client.API
	breaker    *gobreaker.CircuitBreaker[any]
	successURL string
	cancelURL  string
	logger     *zap.Logger
}

func NewStripeBillingService(cfg StripeConfig, logger *zap.Logger, m *metrics.Metrics) BillingService {
	var backends *stripe.Backends
	if cfg.APIURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.APIURL),
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	sc := &client.API{}
	sc.Init(cfg.SecretKey, backends)

	return &stripeBillingService{
		api:        sc,
		breaker:    newBreaker("stripe", cfg.Breaker, logger, m),
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
	}
}

func (s *stripeBillingService) CreateInvoiceItem(ctx context.Context, req InvoiceItemRequest) (string, error) {
	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(req.CustomerID),
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
		params.AddMetadata(metadataIdempotencyKeyKey, req.IdempotencyKey)
	}

	item, err := execute(s.breaker, func() (*stripe.InvoiceItem, error) {
		return s.api.InvoiceItems.New(params)
	})
	if err != nil {
		logStripeError(s.logger, "CreateInvoiceItem", err)
		return "", fmt.Errorf("create invoice item for %s: %w", req.CustomerID, err)
	}
	return item.ID, nil
}

// FindInvoiceItem looks past Stripe's 24 hour idempotency window by matching
// the key stored in invoice item metadata.
func (s *stripeBillingService) FindInvoiceItem(ctx context.Context, customerID, idempotencyKey string, since time.Time) (string, error) {
	params := &stripe.InvoiceItemListParams{
		Customer:     stripe.String(customerID),
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx

	id, err := execute(s.breaker, func() (string, error) {
		iter := s.api.InvoiceItems.List(params)
		for iter.Next() {
			item := iter.InvoiceItem()
			if item.Metadata[metadataIdempotencyKeyKey] == idempotencyKey {
				return item.ID, nil
			}
		}
		return "", iter.Err()
	})
	if err != nil {
		logStripeError(s.logger, "FindInvoiceItem", err)
		return "", fmt.Errorf("list invoice items for %s: %w", customerID, err)
	}
	return id, nil
}

func (s *stripeBillingService) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	if req.BasePriceID == "" || req.MeteredPriceID == "" {
		return "", ErrMissingPriceIDs
	}

	// Metered prices are billed from usage, Stripe rejects a quantity on them.
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.BasePriceID), Quantity: stripe.Int64(1)},
			{Price: stripe.String(req.MeteredPriceID)},
		},
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserIDKey: req.UserID},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataUserIDKey, req.UserID)

	session, err := execute(s.breaker, func() (*stripe.CheckoutSession, error) {
		return s.api.CheckoutSessions.New(params)
	})
	if err != nil {
		logStripeError(s.logger, "CreateCheckoutSession", err)
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return session.URL, nil
}

func logStripeError(logger *zap.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		logger.Error("stripe API error",
			zap.String("operation", operation),
			zap.String("type", string(stripeErr.Type)),
			zap.String("code", string(stripeErr.Code)),
			zap.String("param", stripeErr.Param),
			zap.String("message", stripeErr.Msg),
			zap.String("request_id", stripeErr.RequestID),
			zap.Int("status_code", stripeErr.HTTPStatusCode),
		)
		return
	}
	logger.Error("stripe call failed", zap.String("operation", operation), zap.Error(err))
}
