package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/telecare-api/pkg/messaging/redis"
	"github.com/jwalitptl/telecare-api/pkg/worker"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Session   SessionConfig   `mapstructure:"session"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Video     VideoConfig     `mapstructure:"video"`
	Email     EmailConfig     `mapstructure:"email"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Stats     StatsConfig     `mapstructure:"stats"`

	// Secrets are read from TELECARE_* environment variables only.
	Secrets Secrets `mapstructure:"-"`
}

type ServerConfig struct {
	Port             int           `mapstructure:"port"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout  time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes   int           `mapstructure:"max_header_bytes"`
	PublicURL        string        `mapstructure:"public_url"`
	Mode             string        `mapstructure:"mode"`
	WorkerHealthAddr string        `mapstructure:"worker_health_addr"`
	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For is
	// honoured. Empty means the peer address is the client address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type JWTConfig struct {
	Secret        string        `mapstructure:"secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	Issuer        string        `mapstructure:"issuer"`
	TTL           time.Duration `mapstructure:"ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
}

type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl"`
	Secure     bool          `mapstructure:"secure"`
	Domain     string        `mapstructure:"domain"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	AuthLimit         int           `mapstructure:"auth_limit"`
	AuthWindow        time.Duration `mapstructure:"auth_window"`
	PaymentLimit      int           `mapstructure:"payment_limit"`
	PaymentWindow     time.Duration `mapstructure:"payment_window"`
	MaxKeys           int           `mapstructure:"max_keys"`
}

type CORSConfig struct {
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	AllowedMethods []string      `mapstructure:"allowed_methods"`
	AllowedHeaders []string      `mapstructure:"allowed_headers"`
	MaxAge         time.Duration `mapstructure:"max_age"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetries    int           `mapstructure:"max_retries"`
	Channel       string        `mapstructure:"channel"`
}

type PaymentConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	Currency       string        `mapstructure:"currency"`
	DryRun         bool          `mapstructure:"dry_run"`
	SuccessURL     string        `mapstructure:"success_url"`
	CancelURL      string        `mapstructure:"cancel_url"`
	StripeBaseURL  string        `mapstructure:"stripe_base_url"`
	PayPalBaseURL  string        `mapstructure:"paypal_base_url"`
	PaddleBaseURL  string        `mapstructure:"paddle_base_url"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type VideoConfig struct {
	Provider   string        `mapstructure:"provider"`
	BaseURL    string        `mapstructure:"base_url"`
	TemplateID string        `mapstructure:"template_id"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

type EmailConfig struct {
	Provider  string `mapstructure:"provider"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
	SMTPHost  string `mapstructure:"smtp_host"`
	SMTPPort  int    `mapstructure:"smtp_port"`
	SMTPUser  string `mapstructure:"smtp_user"`
}

type StorageConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Region         string        `mapstructure:"region"`
	Bucket         string        `mapstructure:"bucket"`
	PresignTTL     time.Duration `mapstructure:"presign_ttl"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	UsePathStyle   bool          `mapstructure:"use_path_style"`
}

type AuditConfig struct {
	RetentionDays   int           `mapstructure:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type StatsConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Secrets holds provider credentials. They are processed by envconfig with
// the TELECARE prefix, e.g. TELECARE_STRIPE_SECRET_KEY.
type Secrets struct {
	JWTSecret           string `envconfig:"JWT_SECRET"`
	SessionKey          string `envconfig:"SESSION_KEY"`
	DatabasePassword    string `envconfig:"DATABASE_PASSWORD"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PayPalClientID      string `envconfig:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret  string `envconfig:"PAYPAL_CLIENT_SECRET"`
	PaddleAPIKey        string `envconfig:"PADDLE_API_KEY"`
	PaddleWebhookSecret string `envconfig:"PADDLE_WEBHOOK_SECRET"`
	HMSAccessKey        string `envconfig:"HMS_ACCESS_KEY"`
	HMSAppSecret        string `envconfig:"HMS_APP_SECRET"`
	AgoraAppID          string `envconfig:"AGORA_APP_ID"`
	AgoraAppCertificate string `envconfig:"AGORA_APP_CERTIFICATE"`
	SendGridAPIKey      string `envconfig:"SENDGRID_API_KEY"`
	SMTPPassword        string `envconfig:"SMTP_PASSWORD"`
	StorageAccessKey    string `envconfig:"STORAGE_ACCESS_KEY"`
	StorageSecretKey    string `envconfig:"STORAGE_SECRET_KEY"`
}

const envPrefix = "TELECARE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 20*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_health_addr", ":8081")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "telecare")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("jwt.issuer", "telecare-api")
	v.SetDefault("jwt.ttl", time.Hour)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)

	v.SetDefault("session.cookie_name", "session")
	v.SetDefault("session.ttl", 5*24*time.Hour)
	v.SetDefault("session.secure", true)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 50.0)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("rate_limit.auth_limit", 10)
	v.SetDefault("rate_limit.auth_window", time.Minute)
	v.SetDefault("rate_limit.payment_limit", 5)
	v.SetDefault("rate_limit.payment_window", time.Minute)
	v.SetDefault("rate_limit.max_keys", 10000)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.channel", "events")

	v.SetDefault("payment.timeout", 15*time.Minute)
	v.SetDefault("payment.sweep_interval", time.Minute)
	v.SetDefault("payment.currency", "usd")
	v.SetDefault("payment.dry_run", false)
	v.SetDefault("payment.success_url", "http://localhost:3000/payments/success")
	v.SetDefault("payment.cancel_url", "http://localhost:3000/payments/cancel")
	v.SetDefault("payment.stripe_base_url", "https://api.stripe.com")
	v.SetDefault("payment.paypal_base_url", "https://api-m.sandbox.paypal.com")
	v.SetDefault("payment.paddle_base_url", "https://sandbox-api.paddle.com")
	v.SetDefault("payment.retry_attempts", 3)
	v.SetDefault("payment.retry_delay", 500*time.Millisecond)
	v.SetDefault("payment.request_timeout", 15*time.Second)

	v.SetDefault("video.provider", "100ms")
	v.SetDefault("video.base_url", "https://api.100ms.live/v2")
	v.SetDefault("video.token_ttl", 2*time.Hour)

	v.SetDefault("email.provider", "log")
	v.SetDefault("email.from_email", "no-reply@telecare.local")
	v.SetDefault("email.from_name", "Telecare")
	v.SetDefault("email.smtp_port", 587)

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "telecare-attachments")
	v.SetDefault("storage.presign_ttl", 15*time.Minute)
	v.SetDefault("storage.max_upload_bytes", 10<<20)

	v.SetDefault("audit.retention_days", 365)
	v.SetDefault("audit.cleanup_interval", 24*time.Hour)

	v.SetDefault("stats.cache_ttl", time.Minute)
}

// LoadConfig reads config.yaml from the working directory or ./config,
// then applies environment overrides.
func LoadConfig() (*Config, error) {
	return Load(".", "./config")
}

func Load(paths ...string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process(envPrefix, &cfg.Secrets); err != nil {
		return nil, fmt.Errorf("failed to process secrets: %w", err)
	}
	cfg.applySecrets()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets() {
	if c.Secrets.JWTSecret != "" {
		c.JWT.Secret = c.Secrets.JWTSecret
	}
	if c.Secrets.DatabasePassword != "" {
		c.Database.Password = c.Secrets.DatabasePassword
	}
}

// Validate checks settings the service cannot start without.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("config: jwt secret is required")
	}
	if len(c.Secrets.SessionKey) != 32 {
		return errors.New("config: session key must be 32 bytes")
	}
	if c.Payment.Timeout <= 0 {
		return errors.New("config: payment timeout must be positive")
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("config: invalid trusted proxy %q", proxy)
			}
		}
	}
	switch c.Video.Provider {
	case "", "100ms", "agora":
	default:
		return fmt.Errorf("config: unknown video provider %q", c.Video.Provider)
	}
	switch c.Email.Provider {
	case "sendgrid", "smtp", "log":
	default:
		return fmt.Errorf("config: unknown email provider %q", c.Email.Provider)
	}
	return nil
}

func (c RateLimitConfig) Validate() error {
	if c.AuthLimit < 1 || c.PaymentLimit < 1 {
		return errors.New("config: rate limit auth_limit and payment_limit must be at least 1")
	}
	if c.AuthWindow <= 0 || c.PaymentWindow <= 0 {
		return errors.New("config: rate limit windows must be positive")
	}
	if c.MaxKeys < 1 {
		return errors.New("config: rate limit max_keys must be at least 1")
	}
	if c.Enabled && (c.RequestsPerSecond <= 0 || c.Burst < 1) {
		return errors.New("config: rate limit requests_per_second and burst must be positive")
	}
	return nil
}

func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		MaxRetries:    c.MaxRetries,
		Channel:       c.Channel,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
