// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/studybuddy/internal/core"
)

var errRateLimited = errors.New("rate limited")

// limiter decides with Redis so limits hold across replicas, and falls back
// to per-process token buckets while Redis is unreachable.
type limiter struct {
	remote *redis_rate.Limiter
	local  *localLimiter
}

func newLimiter(rdb *redis.Client) *limiter {
	return &limiter{
		remote: redis_rate.NewLimiter(rdb),
		local:  newLocalLimiter(),
	}
}

func (l *limiter) allow(ctx context.Context, key string, limit redis_rate.Limit) *redis_rate.Result {
	res, err := l.remote.Allow(ctx, key, limit)
	if err == nil {
		return res
	}

	slog.DebugContext(ctx, "rate limiter using local fallback", "key", key, "error", err)
	return l.local.allow(key, limit)
}

// enforce writes the rate headers and reports whether the request may go on.
// A refused request has already been answered with 429.
func (l *limiter) enforce(w http.ResponseWriter, r *http.Request, key string, limit redis_rate.Limit) bool {
	res := l.allow(r.Context(), key, limit)

	setRateLimitHeaders(w, res, limit)

	if res.Allowed == 0 {
		writeRateLimitExceeded(w, res)
		return false
	}
	return true
}

type RateLimitConfig struct {
	Limit   redis_rate.Limit
	KeyFunc func(*http.Request) string
}

// RateLimiter is the coarse per-client limit in front of every route.
type RateLimiter struct {
	limiter *limiter
	config  RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(r *http.Request) string {
			return "ratelimit:global:" + KeyByIP(r)
		}
	}

	return &RateLimiter{limiter: newLimiter(rdb), config: cfg}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limiter.enforce(w, r, rl.config.KeyFunc(r), rl.config.Limit) {
			next.ServeHTTP(w, r)
		}
	})
}

type TierConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

// DefaultTiers bounds how fast each role may hit the metered AI routes.
// Credits already cap free users; this guards the upstream provider.
var DefaultTiers = map[string]TierConfig{
	"free":  {RequestsPerMinute: 20, BurstSize: 5},
	"pro":   {RequestsPerMinute: 120, BurstSize: 20},
	"admin": {RequestsPerMinute: 600, BurstSize: 100},
}

// TieredRateLimiter limits each authenticated caller by the tier of their
// role. It must run after Authenticator; unknown roles get the free tier.
func TieredRateLimiter(
	rdb *redis.Client,
	scope string,
	tiers map[string]TierConfig,
) func(http.Handler) http.Handler {
	l := newLimiter(rdb)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetUserRole(r.Context())
			tier, ok := tiers[role]
			if !ok {
				role = "free"
				tier = tiers[role]
			}

			w.Header().Set("X-RateLimit-Tier", role)

			key := fmt.Sprintf("ratelimit:%s:%s", scope, KeyByUser(r))
			if l.enforce(w, r, key, PerMinute(tier.RequestsPerMinute, tier.BurstSize)) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

func PerMinute(rate, burst int) redis_rate.Limit {
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: time.Minute,
	}
}

// KeyByIP trusts the last X-Forwarded-For hop, the one appended by our own
// proxy.
func KeyByIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		return "ip:" + strings.TrimSpace(hops[len(hops)-1])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return "ip:" + xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func KeyByUser(r *http.Request) string {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID
	}
	return KeyByIP(r)
}

func setRateLimitHeaders(w http.ResponseWriter, res *redis_rate.Result, limit redis_rate.Limit) {
	h := w.Header()

	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.ResetAfter).Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, res *redis_rate.Result) {
	retryAfter := max(int(res.RetryAfter.Seconds()), 1)

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	core.JSONError(w, core.NewAppError(
		errRateLimited,
		fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter),
		http.StatusTooManyRequests,
		"RATE_LIMITED",
	))
}

const (
	localSweepEvery = 5 * time.Minute
	localIdleTTL    = 10 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

type localLimiter struct {
	buckets sync.Map
}

func newLocalLimiter() *localLimiter {
	l := &localLimiter{}
	go l.sweep()
	return l
}

func (l *localLimiter) sweep() {
	ticker := time.NewTicker(localSweepEvery)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-localIdleTTL).Unix()
		l.buckets.Range(func(key, value any) bool {
			if b, ok := value.(*bucket); ok && b.lastSeen.Load() < cutoff {
				l.buckets.Delete(key)
			}
			return true
		})
	}
}

func (l *localLimiter) allow(key string, limit redis_rate.Limit) *redis_rate.Result {
	perSecond := float64(limit.Rate) / limit.Period.Seconds()
	interval := time.Duration(float64(time.Second) / perSecond)

	value, ok := l.buckets.Load(key)
	if !ok {
		value, _ = l.buckets.LoadOrStore(key, &bucket{
			limiter: rate.NewLimiter(rate.Limit(perSecond), limit.Burst),
		})
	}
	//nolint:forcetypeassert // the map only ever holds *bucket
	b := value.(*bucket)
	b.lastSeen.Store(time.Now().Unix())

	res := &redis_rate.Result{
		Limit:      limit,
		Remaining:  max(int(b.limiter.Tokens()), 0),
		RetryAfter: -1,
		ResetAfter: interval,
	}

	if b.limiter.Allow() {
		res.Allowed = 1
		res.Remaining = max(int(b.limiter.Tokens()), 0)
	} else {
		res.RetryAfter = interval
	}

	return res
}
