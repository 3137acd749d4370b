// AngelaMos | 2026
// scheduler_test.go

package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carterperez-dev/studybuddy/internal/config"
)

type countingPrewarmer struct {
	calls atomic.Int32
}

func (p *countingPrewarmer) Prewarm(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("job context has no deadline")
	}
	p.calls.Add(1)
	return nil
}

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) SweepExpired(context.Context) (int64, error) {
	s.calls.Add(1)
	return 3, nil
}

func TestNewRegistersConfiguredJobs(t *testing.T) {
	cfg := config.SchedulerConfig{PrewarmAt: "00:05", TokenSweepEvery: time.Hour}

	s, err := New(cfg, Jobs{
		Prewarm: &countingPrewarmer{},
		Tokens:  &countingSweeper{},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		_ = s.Shutdown()
	})

	if got := len(s.cron.Jobs()); got != 2 {
		t.Fatalf("jobs = %d, want 2", got)
	}
}

func TestNewRejectsBadClock(t *testing.T) {
	_, err := New(config.SchedulerConfig{PrewarmAt: "25:99"}, Jobs{Prewarm: &countingPrewarmer{}}, nil)
	if err == nil {
		t.Fatal("expected an error for an invalid prewarm clock")
	}
}

func TestRunOnStartFiresImmediately(t *testing.T) {
	prewarm := &countingPrewarmer{}
	resynced := make(chan struct{}, 1)

	s, err := New(config.SchedulerConfig{PrewarmAt: "03:00", PrewarmRunOnStart: true}, Jobs{
		Prewarm: prewarm,
		Leaderboard: func(context.Context) error {
			select {
			case resynced <- struct{}{}:
			default:
			}
			return nil
		},
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()
	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		_ = s.Shutdown()
	})

	select {
	case <-resynced:
	case <-time.After(5 * time.Second):
		t.Fatal("leaderboard resync did not run on start")
	}

	deadline := time.Now().Add(5 * time.Second)
	for prewarm.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if prewarm.calls.Load() == 0 {
		t.Fatal("prewarm did not run on start")
	}
}

func TestSweepTokens(t *testing.T) {
	sweeper := &countingSweeper{}
	s := &Scheduler{jobs: Jobs{Tokens: sweeper}, logger: slog.Default()}

	if err := s.sweepTokens(context.Background()); err != nil {
		t.Fatalf("sweepTokens: %v", err)
	}
	if sweeper.calls.Load() != 1 {
		t.Fatalf("sweeps = %d", sweeper.calls.Load())
	}
}
