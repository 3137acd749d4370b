// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/carterperez-dev/studybuddy/internal/admin"
	"github.com/carterperez-dev/studybuddy/internal/assist"
	"github.com/carterperez-dev/studybuddy/internal/auth"
	"github.com/carterperez-dev/studybuddy/internal/challenge"
	"github.com/carterperez-dev/studybuddy/internal/config"
	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/credit"
	"github.com/carterperez-dev/studybuddy/internal/health"
	"github.com/carterperez-dev/studybuddy/internal/leaderboard"
	"github.com/carterperez-dev/studybuddy/internal/llm"
	"github.com/carterperez-dev/studybuddy/internal/middleware"
	"github.com/carterperez-dev/studybuddy/internal/referral"
	"github.com/carterperez-dev/studybuddy/internal/scheduler"
	"github.com/carterperez-dev/studybuddy/internal/server"
	"github.com/carterperez-dev/studybuddy/internal/user"
)

const (
	drainDelay = 5 * time.Second

	leaderboardSeedSize = 1000
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, closeLog := setupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.MigrateOnStart {
		version, migErr := db.Migrate()
		if migErr != nil {
			return migErr
		}
		logger.Info("database migrated", "version", version)
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis client ready",
		"pool_size", cfg.Redis.PoolSize,
	)

	if cfg.IsDevelopment() {
		created, keyErr := auth.EnsureKeyPair(cfg.JWT.PrivateKeyPath, cfg.JWT.PublicKeyPath)
		if keyErr != nil {
			return keyErr
		}
		if created {
			logger.Warn("generated a development signing key pair",
				"private_key", cfg.JWT.PrivateKeyPath,
			)
		}
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", "ES256",
		"key_id", jwtManager.GetKeyID(),
	)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo, cfg.Credits.FreeStarting)
	userHandler := user.NewHandler(userSvc)

	ledger := credit.NewLedger(userRepo)

	referralEngine := referral.NewEngine(
		db.DB,
		func(q core.DBTX) referral.Store { return user.NewRepository(q) },
		cfg.Credits,
	)
	referralHandler := referral.NewHandler(
		referralEngine,
		cfg.Referral.ShareBaseURL,
		cfg.Referral.AllowedHosts...,
	)

	authRepo := auth.NewRepository(db.DB)
	authSvc := auth.NewService(authRepo, jwtManager, userSvc, redis.Client).
		WithSignupHook(referralEngine)
	if cfg.Google.ClientID != "" {
		authSvc.WithGoogle(auth.NewGoogleVerifier(cfg.Google))
	}
	authHandler := auth.NewHandler(authSvc)

	gate := auth.NewGate(jwtManager, userSvc, authSvc, cfg.Admin.BootstrapEmail)
	if err := gate.SeedBootstrapAdmin(ctx); err != nil {
		logger.Warn("bootstrap admin not seeded", "error", err)
	}

	llmClient := llm.NewOpenAI(cfg.Generator, logger)
	if !cfg.Generator.GeneratorConfigured() {
		logger.Warn("content generator not configured; AI routes and new challenges are unavailable")
	}

	boards := leaderboard.NewStore(redis.Client, cfg.Leaderboard)

	challengeSvc := challenge.NewService(
		db.DB,
		challenge.NewRepository,
		challenge.NewLLMGenerator(llmClient, cfg.Generator.Temperature),
		cfg.DailyChallenge.GenerationAttempts,
	)
	if cfg.Leaderboard.Enabled {
		challengeSvc.WithScoreBoard(boards)
	}
	challengeHandler := challenge.NewHandler(challengeSvc)

	assistSvc := assist.NewService(
		llmClient,
		ledger,
		cfg.Credits.AICallCost,
		cfg.Generator.GeneratorConfigured(),
	).WithTranscriber(llmClient)
	assistHandler := assist.NewHandler(assistSvc)

	healthHandler := health.NewHandler(
		health.Check{Name: "database", Critical: true, Probe: db.Ping},
		health.Check{Name: "schema", Critical: true, Probe: db.SchemaReady},
		health.Check{Name: "redis", Probe: redis.Ping},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Users:      userSvc,
		Credits:    ledger,
		Attempts:   challengeSvc,
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(chimw.Recoverer)
	router.Use(
		middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
			Limit: middleware.PerMinute(
				cfg.RateLimit.Requests,
				cfg.RateLimit.Burst,
			),
		}).Handler,
	)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())

	authenticator := middleware.Authenticator(gate)
	aiLimiter := middleware.TieredRateLimiter(redis.Client, "ai", middleware.DefaultTiers)

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator)
		userHandler.RegisterRoutes(r, authenticator)
		referralHandler.RegisterRoutes(r, authenticator)
		challengeHandler.RegisterRoutes(r, authenticator)
		assistHandler.RegisterRoutes(r, authenticator, aiLimiter)

		if cfg.Leaderboard.Enabled {
			leaderboard.NewHandler(boards).RegisterRoutes(r, authenticator)
		}

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticator)
			r.Use(middleware.RequireAdmin)

			userHandler.RegisterAdminRoutes(r)
			adminHandler.RegisterRoutes(r)
		})
	})

	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched := scheduler.Jobs{
			Prewarm: challengeSvc,
			Tokens:  authSvc,
		}
		if cfg.Leaderboard.Enabled {
			sched.Leaderboard = resyncLeaderboard(challengeSvc, boards)
		}

		jobs, err = scheduler.New(cfg.Scheduler, sched, logger)
		if err != nil {
			return err
		}
		jobs.Start()
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if jobs != nil {
		if err := jobs.Shutdown(); err != nil {
			logger.Error("scheduler shutdown error", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

// resyncLeaderboard reloads the top stored scores into Redis. The boards only
// ever raise a score, so replaying older values is harmless.
func resyncLeaderboard(
	scores *challenge.Service,
	boards *leaderboard.Store,
) scheduler.Resyncer {
	return func(ctx context.Context) error {
		top, err := scores.TopScores(ctx, leaderboardSeedSize)
		if err != nil {
			return fmt.Errorf("load scores: %w", err)
		}

		seed := make([]leaderboard.Score, 0, len(top))
		for _, s := range top {
			seed = append(seed, leaderboard.Score{
				UserID:     s.UserID,
				XP:         s.XP,
				BestStreak: s.BestDailyStreak,
			})
		}

		return boards.Seed(ctx, seed)
	}
}

func setupLogger(cfg config.LogConfig) (*slog.Logger, func()) {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	closeFn := func() {}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() {
			//nolint:errcheck // process is exiting
			_ = rotator.Close()
		}
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closeFn
}
