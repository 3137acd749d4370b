// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/studybuddy/internal/auth"
	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/credit"
	"github.com/carterperez-dev/studybuddy/internal/user"
)

type Users interface {
	GetByEmail(ctx context.Context, email string) (*auth.UserInfo, error)
	CountByRole(ctx context.Context) (user.RoleCounts, error)
}

type CreditAdjuster interface {
	Adjust(ctx context.Context, userID string, delta int) (int, error)
}

type Attempts interface {
	CurrentDate() string
	AttemptsOn(ctx context.Context, date string) (int, error)
}

type Handler struct {
	users      Users
	credits    CreditAdjuster
	attempts   Attempts
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	validator  *validator.Validate
}

type HandlerConfig struct {
	Users      Users
	Credits    CreditAdjuster
	Attempts   Attempts
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		users:      cfg.Users,
		credits:    cfg.Credits,
		attempts:   cfg.Attempts,
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		validator:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes expects r to already sit behind the authenticator and the
// admin check.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/users/credits", h.AdjustCredits)
	r.Get("/analytics", h.GetAnalytics)
	r.Get("/stats", h.GetSystemStats)
}

// AdjustCredits applies a signed delta to the account with the given email.
// A zero delta succeeds without touching storage and reports no balance.
func (h *Handler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	var req AdjustCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	if req.Delta == 0 {
		core.OK(w, AdjustCreditsResponse{})
		return
	}

	ctx := r.Context()

	target, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	balance, err := h.credits.Adjust(ctx, target.ID, req.Delta)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.InfoContext(ctx, "credits adjusted by admin",
		"user_id", target.ID,
		"delta", req.Delta,
		"balance", balance,
	)

	core.OK(w, AdjustCreditsResponse{Credits: &balance})
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	date := h.attempts.CurrentDate()

	var (
		counts   user.RoleCounts
		attempts int
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		counts, err = h.users.CountByRole(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		attempts, err = h.attempts.AttemptsOn(ctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		core.WriteError(w, err)
		return
	}

	core.OK(w, AnalyticsResponse{
		UsersCount:    counts.Total(),
		Roles:         counts,
		Date:          date,
		TodayAttempts: attempts,
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	core.OK(w, SystemStatsResponse{
		Database: h.getDBStats(),
		Redis:    h.getRedisStats(),
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc,
			MemSys:       memStats.Sys,
			NumGC:        memStats.NumGC,
		},
	})
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	if stats == nil {
		return nil
	}
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "user")
	case errors.Is(err, core.ErrInsufficientCredits):
		core.BadRequest(w, "Insufficient credits")
	case errors.Is(err, credit.ErrNoChange):
		core.OK(w, AdjustCreditsResponse{})
	default:
		core.WriteError(w, err)
	}
}

type AdjustCreditsRequest struct {
	Email string `json:"email" validate:"required,email"`
	Delta int    `json:"delta"`
}

type AdjustCreditsResponse struct {
	Credits *int `json:"credits"`
}

type AnalyticsResponse struct {
	UsersCount    int             `json:"users_count"`
	Roles         user.RoleCounts `json:"roles"`
	Date          string          `json:"date"`
	TodayAttempts int             `json:"today_attempts"`
}

type SystemStatsResponse struct {
	Database *DBPoolStats    `json:"database,omitempty"`
	Redis    *RedisPoolStats `json:"redis,omitempty"`
	Runtime  RuntimeStats    `json:"runtime"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}
