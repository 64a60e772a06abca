package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	specpkg "github.com/hafedapp/entitlement/api"
	"github.com/hafedapp/entitlement/internal/activation"
	"github.com/hafedapp/entitlement/internal/api"
	"github.com/hafedapp/entitlement/internal/api/handler"
	"github.com/hafedapp/entitlement/internal/api/middleware"
	"github.com/hafedapp/entitlement/internal/census"
	"github.com/hafedapp/entitlement/internal/config"
	"github.com/hafedapp/entitlement/internal/database"
	"github.com/hafedapp/entitlement/internal/entitlement"
	"github.com/hafedapp/entitlement/internal/identity"
	"github.com/hafedapp/entitlement/internal/license"
	"github.com/hafedapp/entitlement/internal/metrics"
	"github.com/hafedapp/entitlement/internal/profile"
	"github.com/hafedapp/entitlement/internal/purchase"
	"github.com/hafedapp/entitlement/internal/reconcile"
	"github.com/hafedapp/entitlement/internal/trial"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		if err := database.Migrate(ctx, db.Pool()); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	admins, err := cfg.AdminAllowlist()
	if err != nil {
		slog.Error("failed to load admin allowlist", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	repo := profile.NewRepository(db.Pool())
	recon := reconcile.NewService(repo,
		reconcile.WithAutoRegister(cfg.AutoRegister),
		reconcile.WithRecorder(m),
	)
	authority := license.NewClient(cfg.AuthorityURL, license.WithTimeout(cfg.AuthorityTimeout))

	checks := map[string]handler.Pinger{"database": db}
	trialStore, rdb, err := initTrialStore(cfg)
	if err != nil {
		slog.Error("failed to configure trial store", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	gate := trial.NewGate(trialStore, map[trial.Action]trial.Policy{
		trial.ActionGame:     {Limit: cfg.TrialGameLimit, Window: cfg.TrialWindow},
		trial.ActionAnalysis: {Limit: cfg.TrialAnalysisLimit, Window: cfg.TrialWindow},
	})

	tokens := purchase.NewTokenChecker(cfg.WebhookTokenHash)
	if !tokens.Enabled() {
		slog.Warn("WEBHOOK_TOKEN_HASH is not set; purchase pings are accepted from anyone")
	}

	router := api.NewRouter(api.RouterDeps{
		Checks:      checks,
		Version:     cfg.Version,
		OpenAPISpec: specpkg.OpenAPISpec,
		Identity: identity.NewJWTResolver(cfg.JWTSecret,
			identity.WithAudience(cfg.JWTAudience),
			identity.WithRequireVerifiedEmail(cfg.RequireVerifiedEmail),
		),
		Purchases:         purchase.NewService(repo, cfg.ProductID),
		WebhookTokens:     tokens,
		Activation:        activation.NewService(authority, recon, repo, cfg.ProductID),
		Reconciler:        recon,
		Evaluator:         entitlement.NewEvaluator(admins),
		Trials:            gate,
		Metrics:           m,
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ActivationLimiter: middleware.NewRateLimiter(cfg.ActivationRate, cfg.ActivationBurst),
		ResolveTimeout:    cfg.ResolveTimeout,
		CORSOrigin:        cfg.CORSOrigin,
	})

	go census.New(repo, m, cfg.CensusInterval).Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting entitlement server", "port", cfg.Port, "version", cfg.Version, "admins", len(admins))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(logHandler))
}

// initTrialStore shares trial counters through Redis when REDIS_URL is set.
// Without it counters live in process memory and reset on restart.
func initTrialStore(cfg *config.Config) (trial.Store, *redis.Client, error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL is not set; trial counters are kept in memory")
		return trial.NewMemoryStore(nil), nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	return trial.NewRedisStore(rdb), rdb, nil
}
