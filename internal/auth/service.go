// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/middleware"
)

const (
	denylistPrefix = "auth:denylist:"
	// refresh tokens are kept a day past expiry so late replays still read
	// as reuse rather than as unknown tokens
	expiredTokenGrace = 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenReuse         = errors.New("token reuse detected")
	ErrEmailExists        = errors.New("email already exists")
)

type Service struct {
	repo   Repository
	jwt    *JWTManager
	users  UserProvider
	redis  *redis.Client
	google IDTokenVerifier
	signup SignupHook
	now    func() time.Time
}

func NewService(
	repo Repository,
	jwt *JWTManager,
	users UserProvider,
	redisClient *redis.Client,
) *Service {
	return &Service{
		repo:  repo,
		jwt:   jwt,
		users: users,
		redis: redisClient,
		now:   time.Now,
	}
}

func (s *Service) WithGoogle(v IDTokenVerifier) *Service {
	s.google = v
	return s
}

func (s *Service) WithSignupHook(h SignupHook) *Service {
	s.signup = h
	return s
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
	userAgent, ipAddress string,
) (*AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.BurnPasswordCheck(req.Password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if user.PasswordHash == "" {
		core.BurnPasswordCheck(req.Password)
		return nil, ErrInvalidCredentials
	}

	ok, stale, err := core.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if stale {
		s.rehash(ctx, user.ID, req.Password)
	}

	return s.issue(ctx, user, userAgent, ipAddress, "")
}

func (s *Service) rehash(ctx context.Context, userID, password string) {
	hash, err := core.HashPassword(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, userID, hash)
	}
	if err != nil {
		slog.WarnContext(ctx, "password rehash failed", "user_id", userID, "error", err)
	}
}

func (s *Service) Register(
	ctx context.Context,
	req RegisterRequest,
	userAgent, ipAddress string,
) (*AuthResponse, error) {
	passwordHash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, req.Email, passwordHash, strings.TrimSpace(req.Name))
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	user = s.afterSignup(ctx, user, req.ReferralCode)

	return s.issue(ctx, user, userAgent, ipAddress, "")
}

// GoogleLogin signs in with a Google ID token, creating the account on first
// use.
func (s *Service) GoogleLogin(
	ctx context.Context,
	req GoogleLoginRequest,
	userAgent, ipAddress string,
) (*AuthResponse, error) {
	if s.google == nil {
		return nil, core.NotConfiguredError(
			"google sign-in is not configured",
			"set GOOGLE_CLIENT_ID",
		)
	}

	ext, err := s.google.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, ext.Email)
	switch {
	case err == nil:
		return s.issue(ctx, user, userAgent, ipAddress, "")
	case !errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("get user: %w", err)
	}

	user, err = s.users.Create(ctx, ext.Email, "", ext.Name)
	if errors.Is(err, core.ErrDuplicateKey) {
		user, err = s.users.GetByEmail(ctx, ext.Email)
	} else if err == nil {
		user = s.afterSignup(ctx, user, req.ReferralCode)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issue(ctx, user, userAgent, ipAddress, "")
}

// afterSignup runs the signup hook and reloads the account, since a redeemed
// referral changes the starting balance.
func (s *Service) afterSignup(
	ctx context.Context,
	user *UserInfo,
	referralCode string,
) *UserInfo {
	if s.signup == nil || strings.TrimSpace(referralCode) == "" {
		return user
	}

	s.signup.AfterSignup(ctx, user.Email, referralCode)

	fresh, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return user
	}
	return fresh
}

func (s *Service) Refresh(
	ctx context.Context,
	refreshToken, userAgent, ipAddress string,
) (*AuthResponse, error) {
	stored, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("refresh: %w", core.ErrTokenInvalid)
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	switch stored.state(s.now()) {
	case refreshReused:
		s.revokeFamily(ctx, stored)
		return nil, ErrTokenReuse
	case refreshRevoked:
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
	case refreshExpired:
		return nil, fmt.Errorf("refresh: %w", core.ErrTokenExpired)
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	nextID := uuid.New().String()
	if err := s.repo.Rotate(ctx, stored.ID, nextID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.revokeFamily(ctx, stored)
			return nil, ErrTokenReuse
		}
		return nil, fmt.Errorf("rotate token: %w", err)
	}

	return s.issueWithID(ctx, user, userAgent, ipAddress, stored.FamilyID, nextID)
}

func (s *Service) revokeFamily(ctx context.Context, token *RefreshToken) {
	slog.WarnContext(ctx, "refresh token reuse detected",
		"user_id", token.UserID,
		"family_id", token.FamilyID,
	)
	if _, err := s.repo.Revoke(ctx, RevokeFamily, token.FamilyID); err != nil {
		slog.ErrorContext(ctx, "revoke token family failed",
			"family_id", token.FamilyID,
			"error", err,
		)
	}
}

// Logout revokes the refresh token (when given) and denylists the access
// token that made the request for the rest of its lifetime.
func (s *Service) Logout(
	ctx context.Context,
	refreshToken string,
	identity *middleware.Identity,
) error {
	if refreshToken != "" {
		stored, err := s.repo.FindByHash(ctx, core.HashToken(refreshToken))
		switch {
		case errors.Is(err, core.ErrNotFound):
		case err != nil:
			return fmt.Errorf("find token: %w", err)
		case stored.UserID != identity.UserID:
			return fmt.Errorf("logout: %w", core.ErrForbidden)
		default:
			if _, err := s.repo.Revoke(ctx, RevokeToken, stored.ID); err != nil {
				return fmt.Errorf("revoke token: %w", err)
			}
		}
	}

	return s.denyAccessToken(ctx, identity.TokenID, identity.TokenExpiresAt)
}

func (s *Service) LogoutAll(ctx context.Context, identity *middleware.Identity) error {
	n, err := s.repo.Revoke(ctx, RevokeUser, identity.UserID)
	if err != nil {
		return fmt.Errorf("revoke all tokens: %w", err)
	}
	slog.InfoContext(ctx, "signed out everywhere",
		"user_id", identity.UserID,
		"refresh_tokens_revoked", n,
	)

	return s.denyAccessToken(ctx, identity.TokenID, identity.TokenExpiresAt)
}

func (s *Service) denyAccessToken(
	ctx context.Context,
	jti string,
	expiresAt time.Time,
) error {
	if s.redis == nil || jti == "" {
		return nil
	}

	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}

	if err := s.redis.Set(ctx, denylistPrefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("denylist token: %w", err)
	}

	return nil
}

func (s *Service) IsAccessTokenDenied(ctx context.Context, jti string) (bool, error) {
	if s.redis == nil || jti == "" {
		return false, nil
	}

	n, err := s.redis.Exists(ctx, denylistPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check denylist: %w", err)
	}

	return n > 0, nil
}

// SweepExpired removes refresh tokens that expired more than a day ago.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().Add(-expiredTokenGrace))
}

func (s *Service) issue(
	ctx context.Context,
	user *UserInfo,
	userAgent, ipAddress, familyID string,
) (*AuthResponse, error) {
	return s.issueWithID(ctx, user, userAgent, ipAddress, familyID, uuid.New().String())
}

func (s *Service) issueWithID(
	ctx context.Context,
	user *UserInfo,
	userAgent, ipAddress, familyID, tokenID string,
) (*AuthResponse, error) {
	accessToken, expiresAt, err := s.jwt.CreateAccessToken(AccessTokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	refresh, err := s.jwt.CreateRefreshToken(familyID)
	if err != nil {
		return nil, fmt.Errorf("create refresh token: %w", err)
	}

	if err := s.repo.Create(ctx, &RefreshToken{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: refresh.Hash,
		FamilyID:  refresh.FamilyID,
		ExpiresAt: refresh.ExpiresAt,
		UserAgent: userAgent,
		IPAddress: ipAddress,
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthResponse{
		User: toUserResponse(user),
		Tokens: TokenResponse{
			AccessToken:  accessToken,
			RefreshToken: refresh.Token,
			TokenType:    "Bearer",
			ExpiresIn:    int(s.jwt.AccessTokenTTL() / time.Second),
			ExpiresAt:    expiresAt,
		},
	}, nil
}
