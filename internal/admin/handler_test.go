// AngelaMos | 2026
// handler_test.go

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/carterperez-dev/studybuddy/internal/auth"
	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/credit"
	"github.com/carterperez-dev/studybuddy/internal/user"
)

type fakeUsers struct {
	byEmail map[string]string
	lookups int
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*auth.UserInfo, error) {
	f.lookups++
	id, ok := f.byEmail[email]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &auth.UserInfo{ID: id, Email: email}, nil
}

func (f *fakeUsers) CountByRole(context.Context) (user.RoleCounts, error) {
	return user.RoleCounts{Free: 3, Pro: 1, Admin: 1}, nil
}

type fakeStore struct {
	credits map[string]int
}

func (f *fakeStore) AdjustCredits(_ context.Context, id string, delta int, requireNonNegative bool) (int, error) {
	next := f.credits[id] + delta
	if requireNonNegative && next < 0 {
		return 0, core.ErrInsufficientCredits
	}
	f.credits[id] = next
	return next, nil
}

type fakeAttempts struct{}

func (fakeAttempts) CurrentDate() string { return "2024-01-02" }

func (fakeAttempts) AttemptsOn(_ context.Context, date string) (int, error) {
	if date != "2024-01-02" {
		return 0, nil
	}
	return 7, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *core.AppError  `json:"error"`
}

func newHandler() (*Handler, *fakeUsers, *fakeStore) {
	users := &fakeUsers{byEmail: map[string]string{"kid@example.com": "u1"}}
	store := &fakeStore{credits: map[string]int{"u1": 2}}
	h := NewHandler(HandlerConfig{
		Users:    users,
		Credits:  credit.NewLedger(store),
		Attempts: fakeAttempts{},
	})
	return h, users, store
}

func adjust(t *testing.T, h *Handler, body string) (int, envelope) {
	t.Helper()

	w := httptest.NewRecorder()
	h.AdjustCredits(w, httptest.NewRequest(http.MethodPost, "/v1/admin/users/credits", strings.NewReader(body)))

	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, env
}

func TestAdjustCreditsAppliesDelta(t *testing.T) {
	h, _, store := newHandler()

	code, env := adjust(t, h, `{"email":"kid@example.com","delta":5}`)
	if code != http.StatusOK || string(env.Data) != `{"credits":7}` {
		t.Fatalf("response = %d %s", code, env.Data)
	}
	if store.credits["u1"] != 7 {
		t.Fatalf("stored credits = %d", store.credits["u1"])
	}
}

func TestAdjustCreditsZeroDeltaSkipsLookup(t *testing.T) {
	h, users, _ := newHandler()

	code, env := adjust(t, h, `{"email":"nobody@example.com","delta":0}`)
	if code != http.StatusOK || string(env.Data) != `{"credits":null}` {
		t.Fatalf("response = %d %s", code, env.Data)
	}
	if users.lookups != 0 {
		t.Fatalf("lookups = %d, want 0", users.lookups)
	}
}

func TestAdjustCreditsRejectsOverdraw(t *testing.T) {
	h, _, store := newHandler()

	code, env := adjust(t, h, `{"email":"kid@example.com","delta":-3}`)
	if code != http.StatusBadRequest || env.Error == nil || env.Error.Message != "Insufficient credits" {
		t.Fatalf("response = %d %+v", code, env.Error)
	}
	if store.credits["u1"] != 2 {
		t.Fatalf("credits changed to %d", store.credits["u1"])
	}
}

func TestAdjustCreditsUnknownUser(t *testing.T) {
	h, _, _ := newHandler()

	code, _ := adjust(t, h, `{"email":"ghost@example.com","delta":1}`)
	if code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", code)
	}
}

func TestAdjustCreditsValidatesEmail(t *testing.T) {
	h, _, _ := newHandler()

	code, _ := adjust(t, h, `{"email":"not-an-email","delta":1}`)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
}

func TestAnalytics(t *testing.T) {
	h, _, _ := newHandler()

	w := httptest.NewRecorder()
	h.GetAnalytics(w, httptest.NewRequest(http.MethodGet, "/v1/admin/analytics", nil))

	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var got AnalyticsResponse
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.UsersCount != 5 || got.Roles.Pro != 1 || got.TodayAttempts != 7 || got.Date != "2024-01-02" {
		t.Fatalf("analytics = %+v", got)
	}
}
