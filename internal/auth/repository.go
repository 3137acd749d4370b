// AngelaMos | 2026
// repository.go

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/studybuddy/internal/core"
)

// RevokeScope selects which refresh tokens a Revoke call touches.
type RevokeScope string

const (
	RevokeToken  RevokeScope = "id"
	RevokeFamily RevokeScope = "family_id"
	RevokeUser   RevokeScope = "user_id"
)

type Repository interface {
	Create(ctx context.Context, token *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Rotate(ctx context.Context, id, replacedByID string) error
	Revoke(ctx context.Context, scope RevokeScope, key string) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const refreshTokenColumns = `id, user_id, token_hash, family_id, expires_at, created_at,
	is_used, used_at, revoked_at, replaced_by_id, user_agent, ip_address`

func (r *repository) Create(ctx context.Context, t *RefreshToken) error {
	err := r.db.GetContext(ctx, &t.CreatedAt, `
		INSERT INTO refresh_tokens
			(id, user_id, token_hash, family_id, expires_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		t.ID, t.UserID, t.TokenHash, t.FamilyID, t.ExpiresAt, t.UserAgent, t.IPAddress,
	)
	if err != nil {
		return core.StorageError("insert refresh token", err)
	}
	return nil
}

func (r *repository) FindByHash(
	ctx context.Context,
	tokenHash string,
) (*RefreshToken, error) {
	var t RefreshToken
	err := r.db.GetContext(ctx, &t,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = $1`,
		tokenHash,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("refresh token lookup: %w", core.ErrNotFound)
	case err != nil:
		return nil, core.StorageError("refresh token lookup", err)
	}
	return &t, nil
}

// Rotate spends the token exactly once, recording its successor. ErrNotFound
// means a concurrent refresh won the race or the token was revoked.
func (r *repository) Rotate(ctx context.Context, id, replacedByID string) error {
	n, err := r.exec(ctx, "rotate refresh token", `
		UPDATE refresh_tokens
		SET is_used = true, used_at = NOW(), replaced_by_id = $2
		WHERE id = $1 AND NOT is_used AND revoked_at IS NULL`,
		id, replacedByID,
	)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rotate refresh token: %w", core.ErrNotFound)
	}
	return nil
}

// Revoke marks every live token matching scope = key as revoked and reports
// how many were affected.
func (r *repository) Revoke(
	ctx context.Context,
	scope RevokeScope,
	key string,
) (int64, error) {
	switch scope {
	case RevokeToken, RevokeFamily, RevokeUser:
	default:
		return 0, fmt.Errorf("revoke by %q: %w", scope, core.ErrInvalidInput)
	}

	return r.exec(ctx, "revoke refresh tokens by "+string(scope),
		`UPDATE refresh_tokens SET revoked_at = NOW()
		WHERE `+string(scope)+` = $1 AND revoked_at IS NULL`,
		key,
	)
}

func (r *repository) DeleteExpired(
	ctx context.Context,
	before time.Time,
) (int64, error) {
	return r.exec(ctx, "purge expired refresh tokens",
		`DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
}

func (r *repository) exec(
	ctx context.Context,
	op, query string,
	args ...any,
) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, core.StorageError(op, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, core.StorageError(op, err)
	}
	return n, nil
}
