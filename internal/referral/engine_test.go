// AngelaMos | 2026
// engine_test.go

package referral

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/carterperez-dev/studybuddy/internal/config"
	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/middleware"
	"github.com/carterperez-dev/studybuddy/internal/user"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]*user.User
}

func newMemStore(users ...*user.User) *memStore {
	m := &memStore{users: map[string]*user.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memStore) find(match func(*user.User) bool) (*user.User, error) {
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (m *memStore) GetByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *user.User) bool { return u.ID == id })
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(email)
	return m.find(func(u *user.User) bool { return u.Email == email })
}

func (m *memStore) GetByReferralCode(_ context.Context, code string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *user.User) bool {
		return u.ReferralCode != nil && *u.ReferralCode == code
	})
}

func (m *memStore) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := m.GetByReferralCode(ctx, code)
	return err == nil, nil
}

func (m *memStore) AssignReferralCode(_ context.Context, id, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.ReferralCode != nil && *u.ReferralCode == code {
			return false, core.ErrDuplicateKey
		}
	}

	u, ok := m.users[id]
	if !ok || u.ReferralCode != nil {
		return false, nil
	}
	u.ReferralCode = &code
	return true, nil
}

func (m *memStore) SetReferredBy(_ context.Context, id, referrerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok || u.ReferredBy != nil || id == referrerID {
		return false, nil
	}
	ref := referrerID
	u.ReferredBy = &ref
	return true, nil
}

func (m *memStore) AdjustCredits(_ context.Context, id string, delta int, _ bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return 0, core.ErrNotFound
	}
	if u.Credits+delta < 0 {
		return 0, core.ErrInsufficientCredits
	}
	u.Credits += delta
	return u.Credits, nil
}

func (m *memStore) credits(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Credits
}

func strPtr(s string) *string { return &s }

func newTestEngine(store *memStore) *Engine {
	return NewEngine(nil, func(core.DBTX) Store { return store }, config.CreditsConfig{
		ReferralBonusNewUser:  5,
		ReferralBonusReferrer: 5,
	})
}

func fixtures() (*user.User, *user.User) {
	referrer := &user.User{ID: "ref", Email: "ref@example.com", Credits: 5, ReferralCode: strPtr("ABCD1234")}
	newbie := &user.User{ID: "new", Email: "new@example.com", Credits: 5}
	return referrer, newbie
}

func TestApplyReferralGrantsBothBonuses(t *testing.T) {
	referrer, newbie := fixtures()
	store := newMemStore(referrer, newbie)
	engine := newTestEngine(store)

	res, err := engine.ApplyReferral(context.Background(), "NEW@example.com", " abcd1234 ")
	if err != nil {
		t.Fatalf("ApplyReferral: %v", err)
	}
	if !res.Applied {
		t.Fatalf("not applied: %s", res.Reason)
	}
	if got := store.credits("new"); got != 10 {
		t.Fatalf("new user credits = %d, want 10", got)
	}
	if got := store.credits("ref"); got != 10 {
		t.Fatalf("referrer credits = %d, want 10", got)
	}
}

func TestApplyReferralIsIdempotent(t *testing.T) {
	referrer, newbie := fixtures()
	store := newMemStore(referrer, newbie)
	engine := newTestEngine(store)
	ctx := context.Background()

	if _, err := engine.ApplyReferral(ctx, newbie.Email, "ABCD1234"); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	res, err := engine.ApplyReferral(ctx, newbie.Email, "ABCD1234")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if res.Applied || res.Reason != ReasonAlreadyReferred {
		t.Fatalf("second apply = %+v, want already_referred", res)
	}
	if got := store.credits("new"); got != 10 {
		t.Fatalf("new user credits = %d, want 10", got)
	}
	if got := store.credits("ref"); got != 10 {
		t.Fatalf("referrer credits = %d, want 10", got)
	}
}

func TestApplyReferralConcurrentGrantsOnce(t *testing.T) {
	referrer, newbie := fixtures()
	store := newMemStore(referrer, newbie)
	engine := newTestEngine(store)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			//nolint:errcheck // outcome checked through balances
			_, _ = engine.ApplyReferral(context.Background(), newbie.Email, "ABCD1234")
		}()
	}
	wg.Wait()

	if got := store.credits("new"); got != 10 {
		t.Fatalf("new user credits = %d, want 10", got)
	}
	if got := store.credits("ref"); got != 10 {
		t.Fatalf("referrer credits = %d, want 10", got)
	}
}

func TestApplyReferralReasons(t *testing.T) {
	self := &user.User{ID: "self", Email: "self@example.com", ReferralCode: strPtr("0000FFFF")}
	linked := &user.User{ID: "linked", Email: "linked@example.com", ReferredBy: strPtr("ref")}
	referrer, newbie := fixtures()

	tests := []struct {
		name  string
		email string
		code  string
		want  Reason
	}{
		{"empty code", newbie.Email, "   ", ReasonMissingCode},
		{"bad syntax", newbie.Email, "XYZ", ReasonInvalidCode},
		{"non hex", newbie.Email, "ABCDEFGZ", ReasonInvalidCode},
		{"unknown user", "ghost@example.com", "ABCD1234", ReasonUserNotFound},
		{"already linked", linked.Email, "ABCD1234", ReasonAlreadyReferred},
		{"own code", self.Email, "0000ffff", ReasonSelfReferral},
		{"unknown code", newbie.Email, "DEADBEEF", ReasonCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(self, linked, referrer, newbie)
			engine := newTestEngine(store)

			res, err := engine.ApplyReferral(context.Background(), tt.email, tt.code)
			if err != nil {
				t.Fatalf("ApplyReferral: %v", err)
			}
			if res.Applied || res.Reason != tt.want {
				t.Fatalf("result = %+v, want reason %s", res, tt.want)
			}
		})
	}
}

func TestEnsureCodeForUserRoundTrip(t *testing.T) {
	_, newbie := fixtures()
	store := newMemStore(newbie)
	engine := newTestEngine(store)
	ctx := context.Background()

	code, err := engine.EnsureCodeForUser(ctx, newbie.ID)
	if err != nil {
		t.Fatalf("EnsureCodeForUser: %v", err)
	}
	if !ValidCode(code) {
		t.Fatalf("code %q does not match the referral code format", code)
	}

	again, err := engine.EnsureCodeForUser(ctx, newbie.ID)
	if err != nil || again != code {
		t.Fatalf("second call = %q, %v; want %q", again, err, code)
	}

	owner, err := store.GetByReferralCode(ctx, code)
	if err != nil || owner.ID != newbie.ID {
		t.Fatalf("code resolves to %v, %v", owner, err)
	}
}

func TestGenerateUniqueCodeExhaustsAttempts(t *testing.T) {
	taken := &user.User{ID: "t", Email: "t@example.com", ReferralCode: strPtr("00000000")}
	store := newMemStore(taken)
	engine := newTestEngine(store)
	engine.random = bytes.NewReader(make([]byte, codeBytes*MaxCodeAttempts))

	_, err := engine.GenerateUniqueCode(context.Background())
	if !errors.Is(err, core.ErrCodeGenerationFailed) {
		t.Fatalf("err = %v, want ErrCodeGenerationFailed", err)
	}
}

func TestGenerateUniqueCodeRetriesCollision(t *testing.T) {
	taken := &user.User{ID: "t", Email: "t@example.com", ReferralCode: strPtr("00000000")}
	store := newMemStore(taken)
	engine := newTestEngine(store)
	engine.random = bytes.NewReader([]byte{0, 0, 0, 0, 0xde, 0xad, 0xbe, 0xef})

	code, err := engine.GenerateUniqueCode(context.Background())
	if err != nil {
		t.Fatalf("GenerateUniqueCode: %v", err)
	}
	if code != "DEADBEEF" {
		t.Fatalf("code = %q, want DEADBEEF", code)
	}
}

func TestShareURL(t *testing.T) {
	forwarded := func(host, proto string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/v1/referral/me", nil)
		r.Host = "internal:8080"
		if host != "" {
			r.Header.Set("X-Forwarded-Host", host)
		}
		if proto != "" {
			r.Header.Set("X-Forwarded-Proto", proto)
		}
		return r
	}

	tests := []struct {
		name    string
		handler *Handler
		req     *http.Request
		want    string
	}{
		{
			"configured base wins",
			NewHandler(nil, "https://app.example.com/", "study.example.com"),
			forwarded("evil.example.net", "https"),
			"https://app.example.com/register?ref=ABCD1234",
		},
		{
			"allowlisted forwarded host",
			NewHandler(nil, "", "Study.Example.com, other.example.com"),
			forwarded("study.example.com", "https"),
			"https://study.example.com/register?ref=ABCD1234",
		},
		{
			"unlisted forwarded host",
			NewHandler(nil, "", "study.example.com"),
			forwarded("evil.example.net", "https"),
			"/register?ref=ABCD1234",
		},
		{
			"no allowlist",
			NewHandler(nil, ""),
			forwarded("study.example.com", "https"),
			"/register?ref=ABCD1234",
		},
		{
			"unknown proto defaults to https",
			NewHandler(nil, "", "other.example.com"),
			forwarded("other.example.com", "javascript"),
			"https://other.example.com/register?ref=ABCD1234",
		},
		{
			"allowlisted request host",
			NewHandler(nil, "", "internal:8080"),
			forwarded("", "http"),
			"http://internal:8080/register?ref=ABCD1234",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.handler.shareURL(tt.req, "ABCD1234"); got != tt.want {
				t.Fatalf("shareURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedeemRejectedIsBadRequest(t *testing.T) {
	referrer, newbie := fixtures()
	store := newMemStore(referrer, newbie)
	h := NewHandler(newTestEngine(store), "")

	body := strings.NewReader(`{"code":"DEADBEEF"}`)
	r := httptest.NewRequest(http.MethodPost, "/v1/referral/redeem", body)
	r = r.WithContext(middleware.WithIdentity(r.Context(), &middleware.Identity{
		UserID: newbie.ID, Email: newbie.Email, Role: "free",
	}))
	w := httptest.NewRecorder()

	h.Redeem(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), string(ReasonCodeNotFound)) {
		t.Fatalf("body %s does not carry the reason", w.Body.String())
	}
}
