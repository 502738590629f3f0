// Package app wires the infrastructure shared by the API server and the worker.
package app

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/telecare-api/internal/config"
	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/internal/repository/postgres"
	"github.com/jwalitptl/telecare-api/internal/service/audit"
	"github.com/jwalitptl/telecare-api/internal/service/booking"
	"github.com/jwalitptl/telecare-api/internal/service/event"
	"github.com/jwalitptl/telecare-api/internal/service/payment"
	"github.com/jwalitptl/telecare-api/pkg/httpclient"
	"github.com/jwalitptl/telecare-api/pkg/messaging/redis"
	"github.com/jwalitptl/telecare-api/pkg/metrics"
)

const metricsNamespace = "telecare"

// Infra holds the long-lived connections of a process.
type Infra struct {
	Config   *config.Config
	DB       *sqlx.DB
	Base     postgres.BaseRepository
	Redis    *goredis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

func Open(ctx context.Context, cfg *config.Config) (*Infra, error) {
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	rdb, err := redis.NewClient(cfg.Redis.ToBrokerConfig())
	if err != nil {
		db.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Infra{
		Config:   cfg,
		DB:       db,
		Base:     postgres.NewBaseRepository(db),
		Redis:    rdb,
		Registry: reg,
		Metrics:  metrics.New(metricsNamespace, reg),
	}, nil
}

func (i *Infra) Close() {
	if err := i.Redis.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis client")
	}
	if err := i.DB.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}

func (i *Infra) PingRedis(ctx context.Context) error {
	return i.Redis.Ping(ctx).Err()
}

func (i *Infra) Namespace() string {
	return metricsNamespace
}

func (i *Infra) Auditor() (*audit.Service, audit.Recorder) {
	svc := audit.NewService(postgres.NewAuditRepository(i.Base))
	return svc, audit.NewAuditLogger(svc)
}

func (i *Infra) Events() *event.EventService {
	return event.NewEventService(postgres.NewOutboxRepository(i.Base))
}

func (i *Infra) BookingConfig() booking.Config {
	return booking.Config{
		PaymentTimeout: i.Config.Payment.Timeout,
		Currency:       i.Config.Payment.Currency,
	}
}

// PaymentService builds the payment service with every provider. Providers
// without credentials, or all of them in dry-run mode, answer locally.
func (i *Infra) PaymentService(auditor audit.Recorder) *payment.Service {
	cfg := i.Config
	client := httpclient.New(httpclient.Config{
		Name:     "payments",
		Attempts: cfg.Payment.RetryAttempts,
		Delay:    cfg.Payment.RetryDelay,
		Timeout:  cfg.Payment.RequestTimeout,
	})

	s := cfg.Secrets
	dry := func(name model.PaymentProvider) payment.Provider {
		log.Warn().Str("provider", string(name)).Msg("payment provider running in dry-run mode")
		return payment.NewDryRunProvider(name, cfg.Server.PublicURL)
	}

	var providers []payment.Provider
	if cfg.Payment.DryRun || s.StripeSecretKey == "" {
		providers = append(providers, dry(model.ProviderStripe))
	} else {
		providers = append(providers, payment.NewStripeProvider(payment.StripeConfig{
			SecretKey:     s.StripeSecretKey,
			WebhookSecret: s.StripeWebhookSecret,
			BaseURL:       cfg.Payment.StripeBaseURL,
		}, client))
	}
	if cfg.Payment.DryRun || s.PayPalClientID == "" || s.PayPalClientSecret == "" {
		providers = append(providers, dry(model.ProviderPayPal))
	} else {
		providers = append(providers, payment.NewPayPalProvider(payment.PayPalConfig{
			ClientID:     s.PayPalClientID,
			ClientSecret: s.PayPalClientSecret,
			BaseURL:      cfg.Payment.PayPalBaseURL,
		}, client))
	}
	if cfg.Payment.DryRun || s.PaddleAPIKey == "" {
		providers = append(providers, dry(model.ProviderPaddle))
	} else {
		providers = append(providers, payment.NewPaddleProvider(payment.PaddleConfig{
			APIKey:        s.PaddleAPIKey,
			WebhookSecret: s.PaddleWebhookSecret,
			BaseURL:       cfg.Payment.PaddleBaseURL,
		}, client))
	}

	return payment.NewService(
		postgres.NewAppointmentRepository(i.Base),
		postgres.NewClinicBookingRepository(i.Base),
		postgres.NewPaymentRepository(i.Base),
		postgres.NewProcessedEventRepository(i.Base),
		providers,
		i.Events(),
		auditor,
		i.Metrics,
		payment.Config{
			PaymentTimeout:      cfg.Payment.Timeout,
			SuccessURL:          cfg.Payment.SuccessURL,
			CancelURL:           cfg.Payment.CancelURL,
			StripeWebhookSecret: s.StripeWebhookSecret,
			PaddleWebhookSecret: s.PaddleWebhookSecret,
		},
	)
}
