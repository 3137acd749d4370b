// AngelaMos | 2026
// handler.go

package challenge

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/daily-challenge", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/today", h.GetToday)
		r.Post("/submit", h.Submit)
	})
}

func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Today(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, view)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	userID := middleware.GetUserID(r.Context())

	var (
		result *SubmitResult
		err    error
	)
	if req.ChallengeID != "" {
		result, err = h.service.Submit(r.Context(), userID, req.ChallengeID, req.Answers)
	} else {
		result, err = h.service.SubmitToday(r.Context(), userID, req.Answers)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, result)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrNotConfigured) && !core.IsAppError(err) {
		core.JSONError(w, core.NotConfiguredError(
			"Daily Challenge is not configured yet",
			"apply the daily challenge migration to create its tables and the XP and streak columns",
		))
		return
	}
	core.WriteError(w, err)
}
