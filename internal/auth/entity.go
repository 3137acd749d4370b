// AngelaMos | 2026
// entity.go

package auth

import (
	"context"
	"time"
)

// UserInfo is the slice of an account that sign-in and the gate need.
type UserInfo struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Credits      int
	CreatedAt    time.Time
}

type UserProvider interface {
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	Create(
		ctx context.Context,
		email, passwordHash, name string,
	) (*UserInfo, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetRole(ctx context.Context, userID, role string) error
}

// SignupHook runs after a new account exists. Implementations must not fail
// the signup; problems are theirs to log.
type SignupHook interface {
	AfterSignup(ctx context.Context, email, referralCode string)
}

type RefreshToken struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	TokenHash    string     `db:"token_hash"`
	FamilyID     string     `db:"family_id"`
	ExpiresAt    time.Time  `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
	IsUsed       bool       `db:"is_used"`
	UsedAt       *time.Time `db:"used_at"`
	RevokedAt    *time.Time `db:"revoked_at"`
	ReplacedByID *string    `db:"replaced_by_id"`
	UserAgent    string     `db:"user_agent"`
	IPAddress    string     `db:"ip_address"`
}

type refreshState int

const (
	refreshUsable refreshState = iota
	refreshReused
	refreshRevoked
	refreshExpired
)

// state orders the checks so a replayed token is always reported as reuse,
// even after it has expired or been revoked.
func (t *RefreshToken) state(now time.Time) refreshState {
	switch {
	case t.IsUsed:
		return refreshReused
	case t.RevokedAt != nil:
		return refreshRevoked
	case !now.Before(t.ExpiresAt):
		return refreshExpired
	}
	return refreshUsable
}
