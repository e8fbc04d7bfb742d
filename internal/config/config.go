// Package config loads process configuration from the environment and the
// optional services.yaml toggle file.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Env string `env:"APP_ENV,default=development"`

	HTTP      HTTPConfig
	Log       LogConfig
	Supabase  SupabaseConfig
	Redis     RedisConfig
	Mail      MailConfig
	Geocode   GeocodeConfig
	Queue     QueueConfig
	Reporting ReportingConfig
	Store     StoreConfig
}

// HTTPConfig configures the HTTP listener.
type HTTPConfig struct {
	Port            int           `env:"PORT,default=8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RateLimit       int           `env:"RATE_LIMIT_RPS,default=20"`
	RateBurst       int           `env:"RATE_LIMIT_BURST,default=40"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
	File   string `env:"LOG_FILE"`
}

// SupabaseConfig configures the hosted backend.
type SupabaseConfig struct {
	URL        string `env:"SUPABASE_URL"`
	AnonKey    string `env:"SUPABASE_ANON_KEY"`
	ServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	JWTSecret  string `env:"SUPABASE_JWT_SECRET"`
}

// RedisConfig configures the optional Redis cache.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,default=0"`
}

// MailConfig configures the transactional mail provider.
type MailConfig struct {
	BaseURL     string `env:"MAIL_API_URL"`
	APIKey      string `env:"MAIL_API_KEY"`
	Sender      string `env:"MAIL_SENDER,default=orders@vegdirect.vn"`
	SenderName  string `env:"MAIL_SENDER_NAME,default=VegDirect"`
	AdminCopyTo string `env:"MAIL_ADMIN_COPY"`
}

// GeocodeConfig configures the address lookup provider.
type GeocodeConfig struct {
	BaseURL string `env:"GEOCODE_API_URL,default=https://nominatim.openstreetmap.org"`
	// UserAgent identifies this deployment to the provider, which refuses
	// anonymous clients.
	UserAgent string        `env:"GEOCODE_USER_AGENT,default=vegdirect-storefront/1.0"`
	MinDelay  time.Duration `env:"GEOCODE_MIN_DELAY,default=1s"`
	CacheTTL  time.Duration `env:"GEOCODE_CACHE_TTL,default=24h"`
}

// QueueConfig configures the optional mail queue broker.
type QueueConfig struct {
	AMQPURL string `env:"AMQP_URL"`
}

// ReportingConfig points at the optional SQL mirror of the orders table.
// When set, the dashboard reads revenue rollups from it instead of scanning
// order rows through the API.
type ReportingConfig struct {
	DSN string `env:"REPORTING_DSN"`
}

// StoreConfig carries storefront-wide defaults.
type StoreConfig struct {
	Currency        string `env:"STORE_CURRENCY,default=VND"`
	OrderNumberSeed int    `env:"ORDER_NUMBER_SEED,default=1000"`
	InvoiceBucket   string `env:"INVOICE_BUCKET,default=invoices"`
	ProductBucket   string `env:"PRODUCT_IMAGE_BUCKET,default=product-images"`
}

// Load reads envFile when non-empty, then decodes the environment. A
// missing env file is only an error when it was explicitly requested.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	} else {
		// Best effort; production deployments set real env vars.
		godotenv.Load()
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the settings that have no workable default.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("config: SUPABASE_URL is required")
	}
	if c.Supabase.AnonKey == "" {
		return fmt.Errorf("config: SUPABASE_ANON_KEY is required")
	}
	if c.IsProduction() && c.Supabase.ServiceKey == "" {
		return fmt.Errorf("config: SUPABASE_SERVICE_KEY is required in production")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.HTTP.Port)
	}
	return nil
}

// IsProduction reports whether the process runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// CacheEnabled reports whether a Redis cache is configured.
func (c *Config) CacheEnabled() bool {
	return c.Redis.Addr != ""
}

// QueueEnabled reports whether mail dispatch goes through a broker.
func (c *Config) QueueEnabled() bool {
	return c.Queue.AMQPURL != ""
}

// MailEnabled reports whether a mail provider is configured.
func (c *Config) MailEnabled() bool {
	return c.Mail.BaseURL != "" && c.Mail.APIKey != ""
}

// ReportingEnabled reports whether a SQL reporting mirror is configured.
func (c *Config) ReportingEnabled() bool {
	return c.Reporting.DSN != ""
}
