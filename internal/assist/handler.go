// AngelaMos | 2026
// handler.go

package assist

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/credit"
	"github.com/carterperez-dev/studybuddy/internal/llm"
	"github.com/carterperez-dev/studybuddy/internal/middleware"
)

type ChatMessage struct {
	Role    string `json:"role"    validate:"omitempty,oneof=user assistant system"`
	Content string `json:"content" validate:"required,max=8000"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages" validate:"required,min=1,max=100,dive"`
	Context  string        `json:"context"  validate:"max=50000"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type SummarizeRequest struct {
	Text string `json:"text" validate:"required,max=50000"`
}

type SummarizeResponse struct {
	Summary string `json:"summary"`
}

type TranscribeResponse struct {
	Text string `json:"text"`
}

// maxAudioBytes matches the upstream transcription upload limit.
const maxAudioBytes = 25 << 20

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

// RegisterRoutes mounts the metered routes; limiter runs after authentication
// so it can key on the caller's role.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
	limiter func(http.Handler) http.Handler,
) {
	r.Route("/ai", func(r chi.Router) {
		r.Use(authenticator)
		if limiter != nil {
			r.Use(limiter)
		}

		r.Post("/chat", h.Chat)
		r.Post("/summarize", h.Summarize)
		r.Post("/audio", h.Transcribe)
	})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.service.Chat(r.Context(), account(r), req)
	if err != nil {
		core.WriteError(w, err)
		return
	}

	core.OK(w, ChatResponse{Reply: reply})
}

func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	summary, err := h.service.Summarize(r.Context(), account(r), req.Text)
	if err != nil {
		core.WriteError(w, err)
		return
	}

	core.OK(w, SummarizeResponse{Summary: summary})
}

// Transcribe expects a multipart form with the recording in the "file" field.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			core.BadRequest(w, "Audio file is too large")
			return
		}
		core.BadRequest(w, "No audio file uploaded")
		return
	}
	defer file.Close() //nolint:errcheck // multipart temp file

	data, err := io.ReadAll(io.LimitReader(file, maxAudioBytes+1))
	if err != nil {
		core.BadRequest(w, "Could not read audio file")
		return
	}
	if len(data) == 0 {
		core.BadRequest(w, "No audio file uploaded")
		return
	}
	if len(data) > maxAudioBytes {
		core.BadRequest(w, "Audio file is too large")
		return
	}

	text, err := h.service.Transcribe(r.Context(), account(r), llm.Audio{
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		core.WriteError(w, err)
		return
	}

	core.OK(w, TranscribeResponse{Text: text})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}
	return true
}

// account treats a caller without a role as free so the call is metered.
func account(r *http.Request) credit.Account {
	role := middleware.GetUserRole(r.Context())
	if role == "" {
		role = "free"
	}
	return credit.Account{
		UserID: middleware.GetUserID(r.Context()),
		Role:   role,
	}
}
