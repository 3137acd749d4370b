// AngelaMos | 2026
// scheduler.go

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/carterperez-dev/studybuddy/internal/config"
)

const jobTimeout = 2 * time.Minute

type Prewarmer interface {
	Prewarm(ctx context.Context) error
}

type TokenSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Resyncer rebuilds derived state (the Redis leaderboards) from Postgres.
type Resyncer func(ctx context.Context) error

type Jobs struct {
	Prewarm     Prewarmer
	Tokens      TokenSweeper
	Leaderboard Resyncer
}

// Scheduler runs housekeeping that speeds things up but that no request
// depends on for correctness.
type Scheduler struct {
	cron   gocron.Scheduler
	jobs   Jobs
	cfg    config.SchedulerConfig
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg config.SchedulerConfig, jobs Jobs, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:   cron,
		jobs:   jobs,
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}

	if err := s.register(); err != nil {
		cancel()
		//nolint:errcheck // scheduler never started
		_ = cron.Shutdown()
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) register() error {
	if s.jobs.Prewarm != nil {
		hour, minute, err := s.cfg.PrewarmClock()
		if err != nil {
			return err
		}

		opts := []gocron.JobOption{
			gocron.WithName("daily-challenge-prewarm"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}
		if s.cfg.PrewarmRunOnStart {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}

		_, err = s.cron.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
			gocron.NewTask(s.run, "daily-challenge-prewarm", s.jobs.Prewarm.Prewarm),
			opts...,
		)
		if err != nil {
			return fmt.Errorf("schedule prewarm: %w", err)
		}
	}

	if s.jobs.Tokens != nil {
		every := s.cfg.TokenSweepEvery
		if every <= 0 {
			every = time.Hour
		}

		_, err := s.cron.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(s.run, "refresh-token-sweep", s.sweepTokens),
			gocron.WithName("refresh-token-sweep"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("schedule token sweep: %w", err)
		}
	}

	if s.jobs.Leaderboard != nil {
		_, err := s.cron.NewJob(
			gocron.DurationJob(6*time.Hour),
			gocron.NewTask(s.run, "leaderboard-resync", func(ctx context.Context) error {
				return s.jobs.Leaderboard(ctx)
			}),
			gocron.WithName("leaderboard-resync"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			return fmt.Errorf("schedule leaderboard resync: %w", err)
		}
	}

	return nil
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "jobs", len(s.cron.Jobs()))
	s.cron.Start()
}

func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

func (s *Scheduler) sweepTokens(ctx context.Context) error {
	n, err := s.jobs.Tokens.SweepExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired refresh tokens removed", "count", n)
	}
	return nil
}

// run executes one job with a bounded context; failures are logged only.
func (s *Scheduler) run(name string, job func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	started := time.Now()
	if err := job(ctx); err != nil {
		s.logger.WarnContext(ctx, "scheduled job failed",
			"job", name,
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err,
		)
		return
	}

	s.logger.DebugContext(ctx, "scheduled job finished",
		"job", name,
		"duration_ms", time.Since(started).Milliseconds(),
	)
}
