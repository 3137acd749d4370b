// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("down") }

func readiness(t *testing.T, h *Handler) (int, ReadinessResponse) {
	t.Helper()

	w := httptest.NewRecorder()
	h.Readiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, body
}

func TestReadinessAllHealthy(t *testing.T) {
	h := NewHandler(
		Check{Name: "database", Critical: true, Probe: ok},
		Check{Name: "redis", Probe: ok},
	)

	code, body := readiness(t, h)
	if code != http.StatusOK || body.Status != "ok" || len(body.Checks) != 2 {
		t.Fatalf("readiness = %d %+v", code, body)
	}
}

func TestReadinessOptionalFailureDegrades(t *testing.T) {
	h := NewHandler(
		Check{Name: "database", Critical: true, Probe: ok},
		Check{Name: "redis", Probe: failing},
	)

	code, body := readiness(t, h)
	if code != http.StatusOK || body.Status != "degraded" {
		t.Fatalf("readiness = %d %s", code, body.Status)
	}
	if body.Checks[1].Healthy || body.Checks[1].Message == "" {
		t.Fatalf("redis check = %+v", body.Checks[1])
	}
}

func TestReadinessCriticalFailure(t *testing.T) {
	h := NewHandler(
		Check{Name: "database", Critical: true, Probe: failing},
		Check{Name: "redis", Probe: ok},
	)

	code, body := readiness(t, h)
	if code != http.StatusServiceUnavailable || body.Status != "unavailable" {
		t.Fatalf("readiness = %d %s", code, body.Status)
	}
}

func TestShutdownFailsLiveness(t *testing.T) {
	h := NewHandler()
	h.SetShutdown(true)

	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
