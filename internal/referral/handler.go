// AngelaMos | 2026
// handler.go

package referral

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/middleware"
)

type RedeemRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type CodeResponse struct {
	Code     string `json:"code"`
	ShareURL string `json:"share_url"`
}

type Handler struct {
	engine       *Engine
	shareBaseURL string
	allowedHosts map[string]bool
	validator    *validator.Validate
}

// NewHandler builds share links from shareBaseURL when set. Otherwise the
// request's host is used only when it appears in allowedHosts; entries may be
// comma separated lists.
func NewHandler(engine *Engine, shareBaseURL string, allowedHosts ...string) *Handler {
	hosts := map[string]bool{}
	for _, entry := range allowedHosts {
		for _, host := range strings.Split(entry, ",") {
			if host = strings.ToLower(strings.TrimSpace(host)); host != "" {
				hosts[host] = true
			}
		}
	}

	return &Handler{
		engine:       engine,
		shareBaseURL: strings.TrimRight(shareBaseURL, "/"),
		allowedHosts: hosts,
		validator:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/referral", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/me", h.GetMyCode)
		r.Post("/redeem", h.Redeem)
	})
}

func (h *Handler) GetMyCode(w http.ResponseWriter, r *http.Request) {
	code, err := h.engine.EnsureCodeForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	core.OK(w, CodeResponse{
		Code:     code,
		ShareURL: h.shareURL(r, code),
	})
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, "referral code is required")
		return
	}

	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		core.Unauthorized(w, "")
		return
	}

	result, err := h.engine.ApplyReferral(r.Context(), identity.Email, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}

	if !result.Applied {
		core.JSONError(w, core.NewAppError(
			core.ErrInvalidInput,
			"referral code was not applied",
			http.StatusBadRequest,
			"REFERRAL_NOT_APPLIED",
		).WithDetails(result))
		return
	}

	core.OK(w, result)
}

// shareURL prefers the configured public base. Without one the origin is
// rebuilt from proxy headers, but only for an allowlisted host; anything else
// gets a relative link.
func (h *Handler) shareURL(r *http.Request, code string) string {
	path := "/register?ref=" + url.QueryEscape(code)

	if h.shareBaseURL != "" {
		return h.shareBaseURL + path
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || !h.allowedHosts[host] {
		return path
	}

	proto := "https"
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "http") {
		proto = "http"
	}

	return proto + "://" + host + path
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrNotConfigured) && !core.IsAppError(err) {
		core.JSONError(w, core.NotConfiguredError(
			"Referrals not configured",
			"apply the referral columns migration",
		))
		return
	}
	core.WriteError(w, err)
}
