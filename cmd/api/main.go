package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telecare-api/internal/app"
	"github.com/jwalitptl/telecare-api/internal/config"
	appointmentHandler "github.com/jwalitptl/telecare-api/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/telecare-api/internal/handler/audit"
	authHandler "github.com/jwalitptl/telecare-api/internal/handler/auth"
	clinicBookingHandler "github.com/jwalitptl/telecare-api/internal/handler/clinicbooking"
	"github.com/jwalitptl/telecare-api/internal/handler/health"
	paymentHandler "github.com/jwalitptl/telecare-api/internal/handler/payment"
	prescriptionHandler "github.com/jwalitptl/telecare-api/internal/handler/prescription"
	"github.com/jwalitptl/telecare-api/internal/handler/prometheus"
	statsHandler "github.com/jwalitptl/telecare-api/internal/handler/stats"
	userHandler "github.com/jwalitptl/telecare-api/internal/handler/user"
	videoHandler "github.com/jwalitptl/telecare-api/internal/handler/video"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/repository/postgres"
	sessionstore "github.com/jwalitptl/telecare-api/internal/repository/redis"
	"github.com/jwalitptl/telecare-api/internal/router"
	appointmentService "github.com/jwalitptl/telecare-api/internal/service/appointment"
	authService "github.com/jwalitptl/telecare-api/internal/service/auth"
	clinicBookingService "github.com/jwalitptl/telecare-api/internal/service/clinicbooking"
	prescriptionService "github.com/jwalitptl/telecare-api/internal/service/prescription"
	statsService "github.com/jwalitptl/telecare-api/internal/service/stats"
	userService "github.com/jwalitptl/telecare-api/internal/service/user"
	videoService "github.com/jwalitptl/telecare-api/internal/service/video"
	"github.com/jwalitptl/telecare-api/migrations"
	"github.com/jwalitptl/telecare-api/pkg/auth"
	"github.com/jwalitptl/telecare-api/pkg/httpclient"
	"github.com/jwalitptl/telecare-api/pkg/logger"
	"github.com/jwalitptl/telecare-api/pkg/ratelimit"
	"github.com/jwalitptl/telecare-api/pkg/security"
	"github.com/jwalitptl/telecare-api/pkg/storage"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "telecare-api",
		Short:        "Telemedicine booking API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), func(m *migrate.Migrate) error { return m.Up() })
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), func(m *migrate.Migrate) error { return m.Steps(-1) })
		},
	})
	return cmd
}

func runMigrations(ctx context.Context, apply func(*migrate.Migrate) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := apply(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("migrations complete")
	return nil
}

func newMigrator(db *sqlx.DB) (*migrate.Migrate, error) {
	dbDriver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("db driver: %w", err)
	}
	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("source driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
}

func serve(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

	if err := middleware.RegisterValidators(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	infra, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer infra.Close()

	// Initialize repositories
	userRepo := postgres.NewUserRepository(infra.Base)
	appointmentRepo := postgres.NewAppointmentRepository(infra.Base)
	clinicBookingRepo := postgres.NewClinicBookingRepository(infra.Base)
	prescriptionRepo := postgres.NewPrescriptionRepository(infra.Base)
	sessions := sessionstore.NewSessionStore(infra.Redis)

	sealer, err := auth.NewSessionSealer(cfg.Secrets.SessionKey)
	if err != nil {
		return fmt.Errorf("failed to create session sealer: %w", err)
	}
	jwtSvc := auth.NewJWTService(auth.JWTConfig{
		Secret:        cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
		TTL:           cfg.JWT.TTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	})
	hasher := security.NewBcryptHasher(0)

	store, err := storage.NewS3Store(ctx, storage.Config{
		Endpoint:     cfg.Storage.Endpoint,
		Region:       cfg.Storage.Region,
		Bucket:       cfg.Storage.Bucket,
		AccessKey:    cfg.Secrets.StorageAccessKey,
		SecretKey:    cfg.Secrets.StorageSecretKey,
		UsePathStyle: cfg.Storage.UsePathStyle,
	})
	if err != nil {
		return err
	}

	// Initialize services
	auditSvc, auditor := infra.Auditor()
	events := infra.Events()
	bookingCfg := infra.BookingConfig()

	authSvc := authService.NewService(userRepo, sessions, jwtSvc, sealer, hasher, auditor,
		authService.Config{SessionTTL: cfg.Session.TTL})
	userSvc := userService.NewService(userRepo, sessions, hasher, auditor, authSvc)
	appointmentSvc := appointmentService.NewService(appointmentRepo, userRepo, events, auditor, bookingCfg)
	clinicBookingSvc := clinicBookingService.NewService(clinicBookingRepo, userRepo, events, auditor, bookingCfg)
	prescriptionSvc := prescriptionService.NewService(prescriptionRepo, appointmentRepo, userRepo, store, events, auditor,
		prescriptionService.Config{PresignTTL: cfg.Storage.PresignTTL, MaxUploadBytes: cfg.Storage.MaxUploadBytes})
	paymentSvc := infra.PaymentService(auditor)
	videoSvc := videoService.NewService(appointmentRepo,
		httpclient.New(httpclient.Config{Name: "video", Timeout: 10 * time.Second}),
		videoService.Config{
			Provider:       cfg.Video.Provider,
			AccessKey:      cfg.Secrets.HMSAccessKey,
			AppSecret:      cfg.Secrets.HMSAppSecret,
			BaseURL:        cfg.Video.BaseURL,
			TemplateID:     cfg.Video.TemplateID,
			AgoraAppID:     cfg.Secrets.AgoraAppID,
			AgoraAppCert:   cfg.Secrets.AgoraAppCertificate,
			TokenTTL:       cfg.Video.TokenTTL,
			PaymentTimeout: cfg.Payment.Timeout,
		})
	statsSvc := statsService.NewService(userRepo, appointmentRepo, clinicBookingRepo, prescriptionRepo, cfg.Stats.CacheTTL)

	// Initialize handlers
	handlers := router.Handlers{
		Auth: authHandler.NewHandler(authSvc, authHandler.CookieConfig{
			Name:   cfg.Session.CookieName,
			Domain: cfg.Session.Domain,
			Secure: cfg.Session.Secure,
		}),
		User:          userHandler.NewHandler(userSvc),
		Appointment:   appointmentHandler.NewHandler(appointmentSvc),
		ClinicBooking: clinicBookingHandler.NewHandler(clinicBookingSvc),
		Prescription:  prescriptionHandler.NewHandler(prescriptionSvc, cfg.Storage.MaxUploadBytes),
		Payment:       paymentHandler.NewHandler(paymentSvc),
		Video:         videoHandler.NewHandler(videoSvc),
		Stats:         statsHandler.NewHandler(statsSvc),
		Audit:         auditHandler.NewHandler(auditSvc),
		Health: health.NewHandler(map[string]health.Pinger{
			"database": infra.DB,
			"redis":    health.PingFunc(infra.PingRedis),
		}),
		Prometheus: prometheus.New(infra.Namespace(), infra.Registry),
	}

	rl := cfg.RateLimit
	authLimiter := ratelimit.NewSlidingWindow(rl.AuthLimit, rl.AuthWindow, rl.MaxKeys)
	paymentLimiter := ratelimit.NewSlidingWindow(rl.PaymentLimit, rl.PaymentWindow, rl.MaxKeys)

	r, err := router.NewRouter(
		middleware.NewAuthMiddleware(authSvc, cfg.Session.CookieName),
		handlers,
		infra.Metrics,
		router.RouterConfig{
			Mode:        cfg.Server.Mode,
			RateEnabled: rl.Enabled,
			RateLimit:   rate.Limit(rl.RequestsPerSecond),
			RateBurst:   rl.Burst,
			CORSConfig: middleware.CORSConfig{
				AllowOrigins: cfg.CORS.AllowedOrigins,
				AllowMethods: cfg.CORS.AllowedMethods,
				AllowHeaders: cfg.CORS.AllowedHeaders,
				MaxAge:       cfg.CORS.MaxAge,
			},
			Security: middleware.SecurityConfig{
				HSTS:       cfg.Session.Secure,
				HSTSMaxAge: 31536000,
			},
			SizeLimit: middleware.SizeLimitConfig{
				MaxBodySize:   1 << 20,
				MaxUploadSize: cfg.Storage.MaxUploadBytes,
			},
			RequestTimeout: cfg.Server.RequestTimeout,
			TrustedProxies: cfg.Server.TrustedProxies,
			AuthLimiter:    authLimiter,
			PaymentLimiter: paymentLimiter,
		},
	)
	if err != nil {
		return err
	}
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go pruneLimiters(ctx, authLimiter, paymentLimiter)

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("mode", gin.Mode()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server exited properly")
	return nil
}

// pruneLimiters drops idle keys so the limiters stay bounded between bursts.
func pruneLimiters(ctx context.Context, limiters ...*ratelimit.SlidingWindow) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, l := range limiters {
				l.Cleanup(now)
			}
		}
	}
}
