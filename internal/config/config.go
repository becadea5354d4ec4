package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "BADGERLAND"

// Config is the whole service configuration. Every key can be overridden by
// an environment variable, e.g. stripe.secret_key by BADGERLAND_STRIPE_SECRET_KEY.
type Config struct {
	Env string `mapstructure:"env"`
	HTTP struct {
		Port            int           `mapstructure:"port"`
		AllowedOrigins  []string      `mapstructure:"allowed_origins"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`
	Database struct {
		URL      string `mapstructure:"url"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		UsageTTL time.Duration `mapstructure:"usage_ttl"`
	} `mapstructure:"redis"`
	Stripe struct {
		SecretKey     string `mapstructure:"secret_key"`
		WebhookSecret string `mapstructure:"webhook_secret"`
		SuccessURL    string `mapstructure:"success_url"`
		CancelURL     string `mapstructure:"cancel_url"`
		Currency      string `mapstructure:"currency"`
		APIURL        string `mapstructure:"api_url"`
	} `mapstructure:"stripe"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
		JWKSURL   string `mapstructure:"jwks_url"`
	} `mapstructure:"auth"`
	Email struct {
		ResendAPIKey string `mapstructure:"resend_api_key"`
		From         string `mapstructure:"from"`
		AdminAddress string `mapstructure:"admin_address"`
	} `mapstructure:"email"`
	SMS struct {
		TwilioAccountSID string `mapstructure:"twilio_account_sid"`
		TwilioAuthToken  string `mapstructure:"twilio_auth_token"`
		FromNumber       string `mapstructure:"from_number"`
	} `mapstructure:"sms"`
	Storage struct {
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		Bucket    string `mapstructure:"bucket"`
		UseSSL    bool   `mapstructure:"use_ssl"`
	} `mapstructure:"storage"`
	Jobs struct {
		Enabled          bool          `mapstructure:"enabled"`
		Timezone         string        `mapstructure:"timezone"`
		OverageBillingAt string        `mapstructure:"overage_billing_at"`
		AutoPickupsAt    string        `mapstructure:"auto_pickups_at"`
		DispatchInterval time.Duration `mapstructure:"dispatch_interval"`
		DispatchBatch    int           `mapstructure:"dispatch_batch"`
		RunTimeout       time.Duration `mapstructure:"run_timeout"`
		LockTTL          time.Duration `mapstructure:"lock_ttl"`
	} `mapstructure:"jobs"`
	Pricing struct {
		GuestRate     float64 `mapstructure:"guest_rate"`
		MinimumCharge float64 `mapstructure:"minimum_charge"`
	} `mapstructure:"pricing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 20*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.usage_ttl", 5*time.Minute)

	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.success_url", "http://localhost:3000/account?checkout=success")
	v.SetDefault("stripe.cancel_url", "http://localhost:3000/plans")
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("stripe.api_url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwks_url", "")

	v.SetDefault("email.resend_api_key", "")
	v.SetDefault("email.from", "Badgerland Laundry <pickups@badgerlandlaundry.com>")
	v.SetDefault("email.admin_address", "")

	v.SetDefault("sms.twilio_account_sid", "")
	v.SetDefault("sms.twilio_auth_token", "")
	v.SetDefault("sms.from_number", "")

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.bucket", "badgerland-reports")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.timezone", "America/Chicago")
	v.SetDefault("jobs.overage_billing_at", "23:00")
	v.SetDefault("jobs.auto_pickups_at", "06:00")
	v.SetDefault("jobs.dispatch_interval", time.Minute)
	v.SetDefault("jobs.dispatch_batch", 100)
	v.SetDefault("jobs.run_timeout", 10*time.Minute)
	v.SetDefault("jobs.lock_ttl", 15*time.Minute)

	v.SetDefault("pricing.guest_rate", 1.75)
	v.SetDefault("pricing.minimum_charge", 25.0)
}

// Load reads an optional .env file, then the optional YAML file at path,
// then BADGERLAND_* environment variables. Missing files are not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsLocal reports whether the service runs on a developer machine.
func (c *Config) IsLocal() bool {
	return c.Env == "local" || c.Env == "test"
}

// Validate checks the keys the service cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if c.Database.URL == "" {
		problems = append(problems, "database.url is required")
	}
	if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		problems = append(problems, "auth.jwt_secret or auth.jwks_url is required")
	}
	if !c.IsLocal() {
		if c.Stripe.SecretKey == "" {
			problems = append(problems, "stripe.secret_key is required")
		}
		if c.Stripe.WebhookSecret == "" {
			problems = append(problems, "stripe.webhook_secret is required")
		}
	}
	if _, err := time.LoadLocation(c.Jobs.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("jobs.timezone: %v", err))
	}
	if c.Pricing.GuestRate <= 0 {
		problems = append(problems, "pricing.guest_rate must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Location is the time zone the jobs and the billing cycle run in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Jobs.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
