// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/mail"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App            AppConfig            `koanf:"app"`
	Server         ServerConfig         `koanf:"server"`
	Database       DatabaseConfig       `koanf:"database"`
	Redis          RedisConfig          `koanf:"redis"`
	JWT            JWTConfig            `koanf:"jwt"`
	Google         GoogleConfig         `koanf:"google"`
	RateLimit      RateLimitConfig      `koanf:"rate_limit"`
	CORS           CORSConfig           `koanf:"cors"`
	Log            LogConfig            `koanf:"log"`
	Otel           OtelConfig           `koanf:"otel"`
	Credits        CreditsConfig        `koanf:"credits"`
	Admin          AdminConfig          `koanf:"admin"`
	Generator      GeneratorConfig      `koanf:"generator"`
	DailyChallenge DailyChallengeConfig `koanf:"daily_challenge"`
	Referral       ReferralConfig       `koanf:"referral"`
	Leaderboard    LeaderboardConfig    `koanf:"leaderboard"`
	Scheduler      SchedulerConfig      `koanf:"scheduler"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

type JWTConfig struct {
	PrivateKeyPath     string        `koanf:"private_key_path"`
	PublicKeyPath      string        `koanf:"public_key_path"`
	AccessTokenExpire  time.Duration `koanf:"access_token_expire"`
	RefreshTokenExpire time.Duration `koanf:"refresh_token_expire"`
	Issuer             string        `koanf:"issuer"`
	Audience           string        `koanf:"audience"`
}

type GoogleConfig struct {
	ClientID string `koanf:"client_id"`
	JWKSURL  string `koanf:"jwks_url"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

type CreditsConfig struct {
	FreeStarting          int `koanf:"free_starting"`
	AICallCost            int `koanf:"ai_call_cost"`
	ReferralBonusNewUser  int `koanf:"referral_bonus_new_user"`
	ReferralBonusReferrer int `koanf:"referral_bonus_referrer"`
}

type AdminConfig struct {
	BootstrapEmail string `koanf:"bootstrap_email"`
}

type GeneratorConfig struct {
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Model       string        `koanf:"model"`
	AudioModel  string        `koanf:"audio_model"`
	Temperature float64       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
	DryRun      bool          `koanf:"dry_run"`
}

type DailyChallengeConfig struct {
	GenerationAttempts int `koanf:"generation_attempts"`
}

type ReferralConfig struct {
	ShareBaseURL string   `koanf:"share_base_url"`
	AllowedHosts []string `koanf:"allowed_hosts"`
}

type LeaderboardConfig struct {
	Enabled   bool   `koanf:"enabled"`
	KeyPrefix string `koanf:"key_prefix"`
	Size      int    `koanf:"size"`
}

type SchedulerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	PrewarmAt         string        `koanf:"prewarm_at"`
	TokenSweepEvery   time.Duration `koanf:"token_sweep_every"`
	PrewarmRunOnStart bool          `koanf:"prewarm_run_on_start"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		//nolint:errcheck // a missing .env is the normal case outside local dev
		_ = godotenv.Load()

		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		_, statErr := os.Stat(configPath)
		switch {
		case statErr == nil:
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		case !errors.Is(statErr, fs.ErrNotExist):
			return nil, fmt.Errorf("stat config file: %w", statErr)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	c.Admin.BootstrapEmail = strings.ToLower(strings.TrimSpace(c.Admin.BootstrapEmail))

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "StudyBuddy API",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "60s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.migrate_on_start":   true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.access_token_expire":  "15m",
		"jwt.refresh_token_expire": "168h",
		"jwt.issuer":               "studybuddy",
		"jwt.audience":             "studybuddy-api",
		"jwt.private_key_path":     "keys/private.pem",
		"jwt.public_key_path":      "keys/public.pem",

		"google.jwks_url": "https://www.googleapis.com/oauth2/v3/certs",

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":        "info",
		"log.format":       "json",
		"log.max_size_mb":  10,
		"log.max_backups":  3,
		"log.max_age_days": 28,

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "studybuddy-api",

		"credits.free_starting":           5,
		"credits.ai_call_cost":            1,
		"credits.referral_bonus_new_user": 5,
		"credits.referral_bonus_referrer": 5,

		"generator.base_url":    "https://api.groq.com/openai/v1",
		"generator.model":       "llama-3.1-8b-instant",
		"generator.audio_model": "whisper-large-v3",
		"generator.temperature": 0.7,
		"generator.timeout":     "30s",
		"generator.max_retries": 2,
		"generator.dry_run":     false,

		"daily_challenge.generation_attempts": 2,

		"leaderboard.enabled":    true,
		"leaderboard.key_prefix": "leaderboard",
		"leaderboard.size":       10,

		"scheduler.enabled":              false,
		"scheduler.prewarm_at":           "00:05",
		"scheduler.token_sweep_every":    "1h",
		"scheduler.prewarm_run_on_start": false,
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"DATABASE_MIGRATE_ON_START":   "database.migrate_on_start",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"LOG_FILE":                    "log.file",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_PUBLIC_KEY_PATH":         "jwt.public_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_REFRESH_TOKEN_EXPIRE":    "jwt.refresh_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"GOOGLE_CLIENT_ID":            "google.client_id",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"FREE_STARTING_CREDITS":       "credits.free_starting",
	"AI_CALL_COST":                "credits.ai_call_cost",
	"REFERRAL_BONUS_NEW_USER":     "credits.referral_bonus_new_user",
	"REFERRAL_BONUS_REFERRER":     "credits.referral_bonus_referrer",
	"ADMIN_EMAIL":                 "admin.bootstrap_email",
	"GROQ_API_KEY":                "generator.api_key",
	"LLM_API_KEY":                 "generator.api_key",
	"LLM_BASE_URL":                "generator.base_url",
	"LLM_MODEL":                   "generator.model",
	"LLM_AUDIO_MODEL":             "generator.audio_model",
	"LLM_DRY_RUN":                 "generator.dry_run",
	"DAILY_CHALLENGE_ATTEMPTS":    "daily_challenge.generation_attempts",
	"REFERRAL_SHARE_BASE_URL":     "referral.share_base_url",
	"REFERRAL_ALLOWED_HOSTS":      "referral.allowed_hosts",
	"LEADERBOARD_ENABLED":         "leaderboard.enabled",
	"SCHEDULER_ENABLED":           "scheduler.enabled",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

//nolint:gocyclo // flat list of independent checks
func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.PrivateKeyPath == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH is required")
	}

	if c.JWT.PublicKeyPath == "" {
		return fmt.Errorf("JWT_PUBLIC_KEY_PATH is required")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
		if c.Generator.DryRun {
			return fmt.Errorf("LLM_DRY_RUN cannot be enabled in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if c.Credits.FreeStarting < 0 {
		return fmt.Errorf("credits.free_starting must not be negative")
	}

	if c.Credits.AICallCost < 0 {
		return fmt.Errorf("credits.ai_call_cost must not be negative")
	}

	if c.Credits.ReferralBonusNewUser < 0 || c.Credits.ReferralBonusReferrer < 0 {
		return fmt.Errorf("referral bonuses must not be negative")
	}

	if c.Admin.BootstrapEmail != "" {
		if _, err := mail.ParseAddress(c.Admin.BootstrapEmail); err != nil {
			return fmt.Errorf("ADMIN_EMAIL is not a valid address: %w", err)
		}
	}

	if c.DailyChallenge.GenerationAttempts < 1 {
		return fmt.Errorf("daily_challenge.generation_attempts must be at least 1")
	}

	if c.Scheduler.Enabled {
		if _, _, err := c.Scheduler.PrewarmClock(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GeneratorConfigured reports whether content generation can be attempted.
func (g *GeneratorConfig) GeneratorConfigured() bool {
	return g.DryRun || g.APIKey != ""
}

// PrewarmClock parses PrewarmAt as a UTC HH:MM wall clock.
func (s *SchedulerConfig) PrewarmClock() (uint, uint, error) {
	t, err := time.Parse("15:04", s.PrewarmAt)
	if err != nil {
		return 0, 0, fmt.Errorf("scheduler.prewarm_at must be HH:MM: %w", err)
	}
	//nolint:gosec // G115: hour and minute are bounded by time.Parse
	return uint(t.Hour()), uint(t.Minute()), nil
}
