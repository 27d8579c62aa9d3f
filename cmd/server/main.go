package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/mautic-dnc-proxy/internal/api"
	"github.com/ignite/mautic-dnc-proxy/internal/config"
	"github.com/ignite/mautic-dnc-proxy/internal/mautic"
	"github.com/ignite/mautic-dnc-proxy/internal/metrics"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/httpretry"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/logger"
	"github.com/ignite/mautic-dnc-proxy/internal/pkg/ratelimit"
	"github.com/ignite/mautic-dnc-proxy/internal/repository/postgres"
	"github.com/ignite/mautic-dnc-proxy/internal/service/actions"
	"github.com/ignite/mautic-dnc-proxy/internal/service/health"
	"github.com/ignite/mautic-dnc-proxy/internal/service/unsubscribe"
	"github.com/ignite/mautic-dnc-proxy/internal/ses"
)

func main() {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required for the audit log")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Audit log database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("database ping failed, audit writes will be retried per request", "error", err)
	}
	pingCancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Rate limiter (optional)
	var limiter api.RateLimiter
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		limiter = ratelimit.NewLimiter(redisClient, "unsubscribe", cfg.RateLimit.Requests, cfg.RateLimit.Window())
		logger.Info("rate limiting enabled", "requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window().String())
	} else {
		logger.Warn("REDIS_ADDR not set, rate limiting disabled")
	}

	// SES suppression mirror (optional)
	var mirror unsubscribe.Mirror
	if cfg.SES.Enabled {
		sesMirror, err := ses.NewMirror(ctx, cfg.SES)
		if err != nil {
			log.Fatalf("Failed to initialize SES mirror: %v", err)
		}
		mirror = sesMirror
		logger.Info("ses suppression mirror enabled", "region", cfg.SES.Region)
	}

	client := mautic.NewClient(cfg.Mautic)
	repo := postgres.NewActionRepo(db)
	recorder := actions.NewRecorder(repo, cfg.Audit.WriteTimeout(), m)

	svc := unsubscribe.NewService(
		unsubscribe.NewResolver(client),
		unsubscribe.NewMutator(client, unsubscribe.MutatorConfig{
			Reason:  cfg.Mautic.DNCReason,
			Comment: cfg.Mautic.DNCComment,
			Policy:  httpretry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, Delay: cfg.Retry.Delay()},
		}, m),
		recorder, mirror, m,
	)
	monitor := health.NewMonitor(client, cfg.Health.TTL(), m)

	handlers := api.NewHandlers(svc, monitor, actions.NewService(repo), limiter, m, api.Options{
		AdminAPIKey:   cfg.Admin.APIKey,
		ResponseFloor: cfg.Unsubscribe.ResponseFloor(),
		OriginMaxLen:  cfg.Unsubscribe.OriginMaxLen,
	})
	server := api.NewServer(handlers, cfg.CORS.AllowedOrigins, reg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", cfg.Server.Addr(), "mautic", client.BaseURL())
		if err := server.ListenAndServe(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}

	// In-flight requests are done; drain their background writes.
	svc.Wait()
	recorder.Wait()
	logger.Info("server stopped")
}
