// AngelaMos | 2026
// gate.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/middleware"
)

const roleAdmin = "admin"

type tokenVerifier interface {
	VerifyAccessToken(token string) (*AccessTokenClaims, error)
}

type denylist interface {
	IsAccessTokenDenied(ctx context.Context, jti string) (bool, error)
}

// Gate turns a bearer token into the caller's identity. The role always
// comes from storage, never from the token, so role changes apply on the
// next request.
type Gate struct {
	tokens         tokenVerifier
	users          UserProvider
	denied         denylist
	bootstrapEmail string
}

func NewGate(
	tokens tokenVerifier,
	users UserProvider,
	denied denylist,
	bootstrapEmail string,
) *Gate {
	return &Gate{
		tokens:         tokens,
		users:          users,
		denied:         denied,
		bootstrapEmail: strings.ToLower(strings.TrimSpace(bootstrapEmail)),
	}
}

func (g *Gate) Authorize(
	ctx context.Context,
	bearer string,
) (*middleware.Identity, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return nil, fmt.Errorf("authorize: %w", core.ErrUnauthorized)
	}

	claims, err := g.tokens.VerifyAccessToken(bearer)
	if err != nil {
		return nil, err
	}

	if g.denied != nil {
		denied, err := g.denied.IsAccessTokenDenied(ctx, claims.JTI)
		if err != nil {
			slog.WarnContext(ctx, "token denylist unavailable", "error", err)
		}
		if denied {
			return nil, core.TokenRevokedError()
		}
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))

	user, err := g.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("authorize: unknown account: %w", core.ErrUnauthorized)
		}
		return nil, fmt.Errorf("authorize: %w", err)
	}

	role := user.Role
	if g.isBootstrapAdmin(email) && role != roleAdmin {
		role = roleAdmin
		if err := g.users.SetRole(ctx, user.ID, roleAdmin); err != nil {
			slog.WarnContext(ctx, "persist bootstrap admin role failed",
				"user_id", user.ID,
				"error", err,
			)
		}
	}

	return &middleware.Identity{
		UserID:         user.ID,
		Email:          email,
		Role:           role,
		TokenID:        claims.JTI,
		TokenExpiresAt: claims.ExpiresAt,
	}, nil
}

// SeedBootstrapAdmin promotes the configured bootstrap account if it already
// exists. An account created later is promoted by Authorize instead.
func (g *Gate) SeedBootstrapAdmin(ctx context.Context) error {
	if g.bootstrapEmail == "" {
		return nil
	}

	user, err := g.users.GetByEmail(ctx, g.bootstrapEmail)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed bootstrap admin: %w", err)
	}

	if user.Role == roleAdmin {
		return nil
	}

	if err := g.users.SetRole(ctx, user.ID, roleAdmin); err != nil {
		return fmt.Errorf("seed bootstrap admin: %w", err)
	}

	slog.InfoContext(ctx, "bootstrap admin promoted", "user_id", user.ID)

	return nil
}

func (g *Gate) isBootstrapAdmin(email string) bool {
	return g.bootstrapEmail != "" && email == g.bootstrapEmail
}

var _ middleware.IdentityResolver = (*Gate)(nil)
