// AngelaMos | 2026
// middleware_test.go

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/studybuddy/internal/core"
)

type resolverFunc func(ctx context.Context, token string) (*Identity, error)

func (f resolverFunc) Authorize(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, GetUserID(r.Context()))
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func withBearer(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestAuthenticator(t *testing.T) {
	resolver := resolverFunc(func(_ context.Context, token string) (*Identity, error) {
		switch token {
		case "good":
			return &Identity{UserID: "u1", Role: "free"}, nil
		case "expired":
			return nil, fmt.Errorf("verify: %w", core.ErrTokenExpired)
		default:
			return nil, fmt.Errorf("authorize: %w", core.ErrUnauthorized)
		}
	})
	h := Authenticator(resolver)(okHandler)

	tests := []struct {
		name     string
		token    string
		wantCode int
		wantBody string
	}{
		{"missing token", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"valid token", "good", http.StatusOK, "u1"},
		{"expired token", "expired", http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"unknown user", "stranger", http.StatusUnauthorized, "UNAUTHORIZED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(h, withBearer(tt.token))
			if w.Code != tt.wantCode || !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Fatalf("got %d %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestExtractTokenRequiresBearerScheme(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	if got := ExtractToken(r); got != "" {
		t.Fatalf("token = %q, want empty", got)
	}

	r.Header.Set("Authorization", "bearer  abc ")
	if got := ExtractToken(r); got != "abc" {
		t.Fatalf("token = %q, want abc", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/v1/admin/analytics", nil)
	if w := serve(h, r); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", w.Code)
	}

	free := r.WithContext(WithIdentity(r.Context(), &Identity{UserID: "u1", Role: "free"}))
	if w := serve(h, free); w.Code != http.StatusForbidden {
		t.Fatalf("free: %d", w.Code)
	}

	admin := r.WithContext(WithIdentity(r.Context(), &Identity{UserID: "a1", Role: "admin"}))
	if w := serve(h, admin); w.Code != http.StatusOK {
		t.Fatalf("admin: %d", w.Code)
	}
}

// unreachableRedis points at a closed port so every limiter call takes the
// local fallback.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		_ = rdb.Close()
	})
	return rdb
}

func TestRateLimiterFallsBackWhenRedisIsDown(t *testing.T) {
	rl := NewRateLimiter(unreachableRedis(t), RateLimitConfig{Limit: PerMinute(60, 2)})
	h := rl.Handler(okHandler)

	for i := range 2 {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:5000"
		if w := serve(h, r); w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	w := serve(h, r)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("third request: %d retry-after=%q", w.Code, w.Header().Get("Retry-After"))
	}

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	if w := serve(h, other); w.Code != http.StatusOK {
		t.Fatalf("other client: %d", w.Code)
	}
}

func TestTieredRateLimiterUsesRoleTier(t *testing.T) {
	tiers := map[string]TierConfig{
		"free": {RequestsPerMinute: 60, BurstSize: 1},
		"pro":  {RequestsPerMinute: 60, BurstSize: 3},
	}
	h := TieredRateLimiter(unreachableRedis(t), "ai", tiers)(okHandler)

	call := func(identity *Identity) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/v1/ai/chat", nil)
		return serve(h, r.WithContext(WithIdentity(r.Context(), identity)))
	}

	free := &Identity{UserID: "u1", Role: "free"}
	if w := call(free); w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Tier") != "free" {
		t.Fatalf("free first: %d tier=%q", w.Code, w.Header().Get("X-RateLimit-Tier"))
	}
	if w := call(free); w.Code != http.StatusTooManyRequests {
		t.Fatalf("free second: %d", w.Code)
	}

	pro := &Identity{UserID: "u2", Role: "pro"}
	for i := range 3 {
		if w := call(pro); w.Code != http.StatusOK {
			t.Fatalf("pro request %d: %d", i, w.Code)
		}
	}

	unknown := &Identity{UserID: "u3", Role: "mystery"}
	if w := call(unknown); w.Header().Get("X-RateLimit-Tier") != "free" {
		t.Fatalf("unknown role tier = %q", w.Header().Get("X-RateLimit-Tier"))
	}
}
