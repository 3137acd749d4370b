// AngelaMos | 2026
// board.go

package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/studybuddy/internal/config"
)

type Board string

const (
	BoardXP         Board = "xp"
	BoardBestStreak Board = "best_streak"
)

const (
	defaultPrefix = "leaderboard"
	defaultSize   = 10
	maxSize       = 100
)

type Entry struct {
	UserID string `json:"user_id"`
	Score  int64  `json:"score"`
	Rank   int64  `json:"rank"`
}

// Standing is a board snapshot plus the caller's own rank (0 when unranked).
type Standing struct {
	Top    []Entry `json:"top"`
	MyRank int64   `json:"my_rank"`
}

type Snapshot struct {
	XP         Standing `json:"xp"`
	BestStreak Standing `json:"best_streak"`
}

// Store keeps the XP and best-streak boards in Redis sorted sets. Scores only
// ever move up: writes use ZADD GT so a stale writer cannot lower them.
type Store struct {
	rdb    redis.Cmdable
	prefix string
	size   int
}

func NewStore(rdb redis.Cmdable, cfg config.LeaderboardConfig) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	size := cfg.Size
	if size <= 0 {
		size = defaultSize
	}

	return &Store{
		rdb:    rdb,
		prefix: prefix,
		size:   min(size, maxSize),
	}
}

func (s *Store) key(b Board) string {
	return s.prefix + ":" + string(b)
}

func (s *Store) Record(ctx context.Context, userID string, xp, bestStreak int) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddGT(ctx, s.key(BoardXP), redis.Z{Score: float64(xp), Member: userID})
		pipe.ZAddGT(ctx, s.key(BoardBestStreak), redis.Z{Score: float64(bestStreak), Member: userID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("record leaderboard scores: %w", err)
	}
	return nil
}

func (s *Store) Top(ctx context.Context, b Board, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.size {
		limit = s.size
	}

	results, err := s.rdb.ZRevRangeWithScores(ctx, s.key(b), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s leaderboard: %w", b, err)
	}

	entries := make([]Entry, 0, len(results))
	for i, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			UserID: member,
			Score:  int64(z.Score),
			Rank:   int64(i) + 1,
		})
	}

	return entries, nil
}

// Rank is 1-based; 0 means the user is not on the board.
func (s *Store) Rank(ctx context.Context, b Board, userID string) (int64, error) {
	rank, err := s.rdb.ZRevRank(ctx, s.key(b), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rank on %s leaderboard: %w", b, err)
	}
	return rank + 1, nil
}

// Score is one user's totals as stored in Postgres.
type Score struct {
	UserID     string
	XP         int
	BestStreak int
}

// Seed replays persisted totals into the boards in one round trip. Because
// writes only raise scores, it is safe to run while submissions are live.
func (s *Store) Seed(ctx context.Context, scores []Score) error {
	if len(scores) == 0 {
		return nil
	}

	xp := make([]redis.Z, len(scores))
	best := make([]redis.Z, len(scores))
	for i, sc := range scores {
		xp[i] = redis.Z{Score: float64(sc.XP), Member: sc.UserID}
		best[i] = redis.Z{Score: float64(sc.BestStreak), Member: sc.UserID}
	}

	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddGT(ctx, s.key(BoardXP), xp...)
		pipe.ZAddGT(ctx, s.key(BoardBestStreak), best...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed leaderboards: %w", err)
	}
	return nil
}

// Snapshot reads both boards and the caller's ranks concurrently.
func (s *Store) Snapshot(ctx context.Context, userID string, limit int) (*Snapshot, error) {
	var snap Snapshot
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		top, err := s.Top(ctx, BoardXP, limit)
		snap.XP.Top = top
		return err
	})
	g.Go(func() error {
		top, err := s.Top(ctx, BoardBestStreak, limit)
		snap.BestStreak.Top = top
		return err
	})
	g.Go(func() error {
		rank, err := s.Rank(ctx, BoardXP, userID)
		snap.XP.MyRank = rank
		return err
	})
	g.Go(func() error {
		rank, err := s.Rank(ctx, BoardBestStreak, userID)
		snap.BestStreak.MyRank = rank
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &snap, nil
}
