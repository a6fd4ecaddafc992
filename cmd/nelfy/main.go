package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"nelfy/internal/alerts"
	"nelfy/internal/amqp"
	"nelfy/internal/api"
	"nelfy/internal/cache"
	"nelfy/internal/cli"
	"nelfy/internal/config"
	apphttp "nelfy/internal/http"
	"nelfy/internal/installments"
	"nelfy/internal/log"
	"nelfy/internal/middleware/ratelimit"
	"nelfy/internal/middleware/security"
	"nelfy/internal/poll"
	"nelfy/internal/services"
	"nelfy/internal/session"
	"nelfy/internal/sheets"
	mem "nelfy/internal/sheets/memory"
	"nelfy/internal/worker"
)

const (
	maxViews        = 10000
	cacheSweepEvery = 5 * time.Minute
	sessionSweep    = time.Hour
	shutdownTimeout = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	db := cli.OpenStorage(logger, cfg.SessionDBPath)

	backend, err := api.New(api.Config{BaseURL: cfg.BackendAPIURL, Timeout: cfg.BackendTimeout})
	if err != nil {
		logger.Error("Failed to create backend client", log.FieldError, err, log.FieldEndpoint, cfg.BackendAPIURL)
		os.Exit(1)
	}

	sessions := session.NewManager(db.Sessions(), session.Options{
		TTL:          cfg.SessionTTL,
		CookieName:   cfg.SessionCookieName,
		CookieSecure: cfg.SessionCookieSecure,
	})
	registry := alerts.NewRegistry(cfg.AlertPollInterval, cfg.AlertIdleTimeout)
	views := installments.NewViews(maxViews, cfg.SessionTTL)
	sessions.OnDestroy(registry.Stop)
	sessions.OnDestroy(views.Forget)

	caches := cache.NewManager()
	caches.Register("sessions", sessions.Cache())
	caches.Register("installment_views", views.Cache())

	// AMQP is optional: without it toggles only invalidate this replica and
	// exports run inline.
	var broker *amqp.Client
	if cfg.AMQPEnabled() {
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without events", log.FieldError, err)
			broker = nil
		} else {
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	}

	var (
		statusEvents services.StatusPublisher
		exportEvents services.ExportPublisher
	)
	if broker != nil {
		statusEvents, exportEvents = broker, broker
	}

	presenter := installments.NewPresenter(installments.NewFetcher(installments.DefaultConcurrency))
	transactions := services.NewTransactionService(presenter, views, statusEvents, instanceID(), cfg.PreloadInstallments)

	exporter, err := newExporter(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize report exporter", log.FieldError, err, "backend", cfg.ExportMode())
		os.Exit(1)
	}
	var reports *services.ReportService
	if exporter != nil || exportEvents != nil {
		var processor *services.ExportProcessor
		if exporter != nil {
			processor = services.NewExportProcessor(db.Exports(), exporter)
		}
		reports = services.NewReportService(db.Exports(), exportEvents, processor)
	}
	logger.Info("Report export configured", "backend", cfg.ExportMode(), "queued", exportEvents != nil)

	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	checks := map[string]func(context.Context) error{
		"backend":  backend.Ping,
		"database": db.Ping,
	}
	if broker != nil {
		checks["amqp"] = func(context.Context) error {
			if !broker.Healthy() {
				return errors.New("amqp connection lost")
			}
			return nil
		}
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Logger:            logger,
		Auth:              backend,
		Backend:           func(token string) apphttp.UserAPI { return backend.As(token) },
		Sessions:          sessions,
		Alerts:            registry,
		Transactions:      transactions,
		Reports:           reports,
		Views:             views,
		Limiter:           limiter,
		Detector:          detector,
		Checks:            checks,
		AlertPollInterval: cfg.AlertPollInterval,
	})
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	sweeper := poll.New("session-sweep", sessionSweep, func(ctx context.Context) error {
		_, err := sessions.Sweep(ctx)
		return err
	})

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		registry.Shutdown()
		sweeper.Stop()
		caches.Stop()
		limiter.Stop()
		if broker != nil {
			if err := broker.Close(); err != nil {
				logger.Error("Failed to close AMQP client", log.FieldError, err)
			}
		}
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", log.FieldError, err)
		}
	})
	ctx = log.NewContext(ctx, logger)

	registry.Start(ctx)
	limiter.Start(ctx)
	sweeper.Start(ctx)
	caches.StartCleanup(cacheSweepEvery)

	if broker != nil {
		go func() {
			if err := worker.RunInvalidation(ctx, broker, transactions.HandleStatusChanged); err != nil {
				logger.Error("Status change consumer stopped", log.FieldError, err)
			}
		}()
	}

	logger.Info("Starting nelfy server",
		"port", cfg.Port,
		log.FieldEndpoint, backend.BaseURL(),
		"amqp", broker != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}

// newExporter returns the exporter selected by EXPORT_BACKEND, or nil when
// exports are disabled.
func newExporter(ctx context.Context, cfg *config.Config) (sheets.ReportExporter, error) {
	switch cfg.ExportMode() {
	case "sheets":
		client, err := cli.NewSheetsClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "memory":
		return mem.New(), nil
	default:
		return nil, nil
	}
}

// instanceID tags published status changes so this replica can skip its own.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "nelfy"
	}
	return host + "-" + uuid.NewString()[:8]
}
