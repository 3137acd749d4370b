// AngelaMos | 2026
// handler.go

package leaderboard

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/middleware"
)

type snapshotter interface {
	Snapshot(ctx context.Context, userID string, limit int) (*Snapshot, error)
}

type Handler struct {
	boards snapshotter
}

func NewHandler(boards snapshotter) *Handler {
	return &Handler{boards: boards}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.With(authenticator).Get("/leaderboard", h.Get)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	snap, err := h.boards.Snapshot(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		slog.WarnContext(r.Context(), "leaderboard read failed", "error", err)
		core.JSONError(w, core.NewAppError(
			err,
			"Leaderboard is temporarily unavailable",
			http.StatusServiceUnavailable,
			"LEADERBOARD_UNAVAILABLE",
		))
		return
	}

	core.OK(w, snap)
}
