package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"badgerland/internal/caching"
	"badgerland/internal/config"
	"badgerland/internal/handlers"
	"badgerland/internal/jobs"
	"badgerland/internal/jobs/background"
	"badgerland/internal/metrics"
	"badgerland/internal/middleware"
	"badgerland/internal/models"
	"badgerland/internal/repositories"
	"badgerland/internal/services"
	"badgerland/pkg/database"
	"badgerland/pkg/logger"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", os.Getenv("BADGERLAND_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Database connection
	pool, err := database.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, zl)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	// Redis backs the usage cache, webhook dedup and the job lock. The service
	// runs without it, single-replica.
	var (
		redisClient *redis.Client
		cacheSvc    caching.CacheService
		usageCache  services.UsageCache
		dedup       handlers.EventDeduplicator
		cachePinger handlers.Pinger
		locker      *caching.RedisLocker
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = caching.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, zl)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		cacheSvc = caching.NewRedisCacheService(redisClient)
		usageCache, dedup, cachePinger = cacheSvc, cacheSvc, cacheSvc
		locker = caching.NewRedisLocker(redisClient, cfg.Jobs.LockTTL)
	} else {
		zl.Warn("redis not configured: usage cache, webhook dedup and job locking disabled")
	}

	// Create repositories
	subscriptionRepo := repositories.NewSubscriptionRepo(pool)
	orderRepo := repositories.NewOrderRepo(pool)
	notificationRepo := repositories.NewNotificationRepo(pool)
	overageRepo := repositories.NewOverageChargeRepo(pool)
	profileRepo := repositories.NewProfileRepo(pool)

	// Outbound providers
	breakerCfg := services.BreakerConfig{}
	billing := services.NewStripeBillingService(services.StripeConfig{
		SecretKey:  cfg.Stripe.SecretKey,
		SuccessURL: cfg.Stripe.SuccessURL,
		CancelURL:  cfg.Stripe.CancelURL,
		APIURL:     cfg.Stripe.APIURL,
		Breaker:    breakerCfg,
	}, zl, m)
	notifier := newNotifier(cfg, breakerCfg, m, zl)

	// Create services
	usageSvc := services.NewUsageService(subscriptionRepo, orderRepo, usageCache, cfg.Redis.UsageTTL, zl)
	orderSvc := services.NewOrderService(orderRepo, subscriptionRepo, notificationRepo, profileRepo, usageSvc, notifier, services.Pricing{
		GuestRate:     cfg.Pricing.GuestRate,
		MinimumCharge: cfg.Pricing.MinimumCharge,
	}, zl)
	subscriptionSvc := services.NewSubscriptionService(subscriptionRepo, notificationRepo, zl)

	// Background jobs
	archive, err := newReportArchive(ctx, cfg, zl)
	if err != nil {
		return err
	}
	runners := map[string]background.Runner{
		models.JobOverageBilling:       jobs.NewOverageBiller(subscriptionRepo, orderRepo, overageRepo, notificationRepo, billing, cfg.Stripe.Currency, m, zl),
		models.JobAutoPickups:          jobs.NewAutoPickupScheduler(subscriptionRepo, orderRepo, notificationRepo, zl),
		models.JobNotificationDispatch: jobs.NewNotificationDispatcher(notificationRepo, profileRepo, notifier, cfg.Jobs.DispatchBatch, zl),
	}
	scheduler, err := newScheduler(cfg, runners, locker, archive, m, zl)
	if err != nil {
		return err
	}
	if cfg.Jobs.Enabled {
		scheduler.Start()
	} else {
		zl.Info("scheduled jobs disabled; admin runs are still available")
	}

	auth, err := middleware.NewAuthenticator(middleware.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		JWKSURL:   cfg.Auth.JWKSURL,
	}, zl)
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}
	defer auth.Close()

	e := newServer(cfg, zl, auth, routes{
		health:        handlers.NewHealthHandlers(pool, cachePinger, registry, version),
		orders:        handlers.NewOrderHandlers(orderSvc, zl),
		subscriptions: handlers.NewSubscriptionHandlers(billing, usageSvc, cfg.Location(), zl),
		webhooks:      handlers.NewWebhookHandlers(subscriptionSvc, dedup, cfg.Stripe.WebhookSecret, m, zl),
		jobs:          handlers.NewJobHandlers(scheduler, zl),
	})

	serverErr := make(chan error, 1)
	go func() {
		zl.Info("badgerland server starting", zap.String("version", version), zap.Int("port", cfg.HTTP.Port), zap.String("env", cfg.Env))
		if err := e.Start(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		zl.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			_ = scheduler.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := scheduler.Stop(); err != nil {
		zl.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	zl.Info("server stopped")
	return nil
}

// newNotifier sends through Resend and Twilio when they are configured and
// logs the messages otherwise.
func newNotifier(cfg *config.Config, breakerCfg services.BreakerConfig, m *metrics.Metrics, zl *zap.Logger) *services.Notifier {
	logSender := services.NewLogSender(zl)

	var email services.EmailSender = logSender
	if cfg.Email.ResendAPIKey != "" {
		email = services.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From, breakerCfg, zl, m)
	} else {
		zl.Warn("resend api key not set: emails are logged, not sent")
	}

	var sms services.SMSSender = logSender
	if cfg.SMS.TwilioAccountSID != "" && cfg.SMS.TwilioAuthToken != "" {
		sms = services.NewTwilioSender(cfg.SMS.TwilioAccountSID, cfg.SMS.TwilioAuthToken, cfg.SMS.FromNumber, breakerCfg, zl, m)
	} else {
		zl.Warn("twilio credentials not set: text messages are logged, not sent")
	}

	return services.NewNotifier(email, sms, cfg.Email.AdminAddress, m, zl)
}

// newReportArchive returns nil when object storage is not configured.
func newReportArchive(ctx context.Context, cfg *config.Config, zl *zap.Logger) (services.ReportArchiver, error) {
	if cfg.Storage.Endpoint == "" {
		zl.Info("object storage not configured: job reports are not archived")
		return nil, nil
	}
	client, err := services.NewMinioClient(services.StorageConfig{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	archive, err := services.NewReportArchive(ctx, client, cfg.Storage.Bucket)
	if err != nil {
		return nil, fmt.Errorf("prepare report bucket: %w", err)
	}
	return archive, nil
}

func newScheduler(cfg *config.Config, runners map[string]background.Runner, locker *caching.RedisLocker,
	archive services.ReportArchiver, m *metrics.Metrics, zl *zap.Logger) (*background.JobScheduler, error) {

	billingAt, err := background.ParseClockTime(cfg.Jobs.OverageBillingAt)
	if err != nil {
		return nil, err
	}
	pickupsAt, err := background.ParseClockTime(cfg.Jobs.AutoPickupsAt)
	if err != nil {
		return nil, err
	}

	jobCfg := background.Config{
		Location:         cfg.Location(),
		OverageBillingAt: billingAt,
		AutoPickupsAt:    pickupsAt,
		DispatchInterval: cfg.Jobs.DispatchInterval,
		RunTimeout:       cfg.Jobs.RunTimeout,
	}
	if locker == nil {
		return background.NewJobScheduler(jobCfg, runners, nil, archive, m, zl)
	}
	return background.NewJobScheduler(jobCfg, runners, locker, archive, m, zl)
}

type routes struct {
	health        *handlers.HealthHandlers
	orders        *handlers.OrderHandlers
	subscriptions *handlers.SubscriptionHandlers
	webhooks      *handlers.WebhookHandlers
	jobs          *handlers.JobHandlers
}

func newServer(cfg *config.Config, zl *zap.Logger, auth *middleware.Authenticator, r routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.HTTP.ReadTimeout
	e.Server.WriteTimeout = cfg.HTTP.WriteTimeout

	// Global middleware
	e.Use(echoMiddleware.RequestID())
	e.Use(middleware.RequestLogger(zl))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: cfg.HTTP.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Pre(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", r.health.LivenessCheck)
	e.GET("/health/ready", r.health.ReadinessCheck)
	e.GET("/metrics", r.health.Metrics())

	// Stripe signs its deliveries; no bearer token.
	e.POST("/webhooks/stripe", r.webhooks.StripeWebhook)

	v1 := e.Group("/v1", middleware.VersionHeader(middleware.APIVersion))

	// Guests can book without signing in.
	v1.POST("/orders", r.orders.BookPickup, auth.OptionalUser())

	user := v1.Group("", auth.RequireUser())
	user.POST("/checkout", r.subscriptions.CreateCheckout)
	user.GET("/me/usage", r.subscriptions.GetUsage)

	admin := v1.Group("/admin", auth.RequireUser(), middleware.RequireAdmin())
	admin.PUT("/orders/:id/status", r.orders.UpdateStatus)
	admin.PUT("/orders/:id/weight", r.orders.RecordWeight)
	admin.GET("/jobs", r.jobs.ListJobs)
	admin.POST("/jobs/:name/run", r.jobs.RunJob)

	return e
}
