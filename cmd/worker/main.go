package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/telecare-api/internal/app"
	"github.com/jwalitptl/telecare-api/internal/config"
	"github.com/jwalitptl/telecare-api/internal/email"
	"github.com/jwalitptl/telecare-api/internal/handler/health"
	"github.com/jwalitptl/telecare-api/internal/handler/prometheus"
	"github.com/jwalitptl/telecare-api/internal/repository/postgres"
	"github.com/jwalitptl/telecare-api/internal/service/notification"
	internalworker "github.com/jwalitptl/telecare-api/internal/worker"
	"github.com/jwalitptl/telecare-api/pkg/logger"
	"github.com/jwalitptl/telecare-api/pkg/messaging/redis"
	"github.com/jwalitptl/telecare-api/pkg/worker"
)

func setupHealthCheck(addr string, infra *app.Infra) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery())

	health.NewHandler(map[string]health.Pinger{
		"database": infra.DB,
		"redis":    health.PingFunc(infra.PingRedis),
	}).RegisterRoutes(r.Group(""))
	r.GET("/metrics", prometheus.New(infra.Namespace(), infra.Registry).Handler())

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	lg := logger.Setup(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	infra, err := app.Open(ctx, cfg)
	if err != nil {
		lg.Fatal(err, "failed to initialize infrastructure")
	}
	defer infra.Close()

	broker := redis.NewRedisBroker(infra.Redis, lg.Zerolog())
	defer broker.Close()

	sender, err := email.New(email.Config{
		Provider:       cfg.Email.Provider,
		FromEmail:      cfg.Email.FromEmail,
		FromName:       cfg.Email.FromName,
		SendGridAPIKey: cfg.Secrets.SendGridAPIKey,
		SMTPHost:       cfg.Email.SMTPHost,
		SMTPPort:       cfg.Email.SMTPPort,
		SMTPUser:       cfg.Email.SMTPUser,
		SMTPPassword:   cfg.Secrets.SMTPPassword,
	})
	if err != nil {
		lg.Fatal(err, "failed to create email sender")
	}

	auditSvc, auditor := infra.Auditor()

	processor := worker.NewOutboxProcessor(
		postgres.NewOutboxRepository(infra.Base),
		broker,
		cfg.Outbox.ToWorkerConfig(),
		lg,
		infra.Metrics,
	)
	sweeper := internalworker.NewPaymentSweeper(infra.PaymentService(auditor), cfg.Payment.SweepInterval)
	cleanup := internalworker.NewAuditCleanupWorker(auditSvc, cfg.Audit.RetentionDays, cfg.Audit.CleanupInterval)
	notifier := notification.NewService(postgres.NewUserRepository(infra.Base), sender, infra.Metrics)

	healthSrv := setupHealthCheck(cfg.Server.WorkerHealthAddr, infra)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			lg.Info("worker stopped", "worker", name)
		}()
	}

	run("outbox", processor.Start)
	run("payment_sweeper", sweeper.Start)
	run("audit_cleanup", cleanup.Start)
	run("notifications", func(ctx context.Context) {
		if err := notifier.Run(ctx, broker, cfg.Outbox.Channel); err != nil {
			lg.Error(err, "notification consumer stopped")
			cancel()
		}
	})

	lg.Info("worker started", "health_addr", cfg.Server.WorkerHealthAddr)
	<-ctx.Done()
	lg.Info("shutting down...")

	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		lg.Error(err, "health server forced to shutdown")
	}
}
