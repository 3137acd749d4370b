// AngelaMos | 2026
// repository.go

package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/carterperez-dev/studybuddy/internal/core"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByReferralCode(ctx context.Context, code string) (*User, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	AssignReferralCode(ctx context.Context, id, code string) (bool, error)
	SetReferredBy(ctx context.Context, id, referrerID string) (bool, error)
	AdjustCredits(
		ctx context.Context,
		id string,
		delta int,
		requireNonNegative bool,
	) (int, error)
	GetCredits(ctx context.Context, id string) (int, error)
	UpdateRole(ctx context.Context, id, role string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	List(ctx context.Context, params ListUsersParams) ([]User, int, error)
	CountByRole(ctx context.Context) (RoleCounts, error)
}

const userColumns = `id, email, password_hash, name, role, credits,
	referral_code, referred_by, xp, daily_streak, best_daily_streak,
	last_daily_challenge_date, created_at, updated_at`

type repository struct {
	db core.DBTX
}

// NewRepository binds the repository to db, which may be the pool or an
// open transaction.
func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, password_hash, name, role, credits)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Name,
		user.Role,
		user.Credits,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		return core.StorageError("create user", err)
	}

	return nil
}

func (r *repository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getOne(ctx, "get user", "id = $1", id)
}

func (r *repository) GetByEmail(
	ctx context.Context,
	email string,
) (*User, error) {
	return r.getOne(ctx, "get user by email", "email = $1", normalizeEmail(email))
}

func (r *repository) GetByReferralCode(
	ctx context.Context,
	code string,
) (*User, error) {
	return r.getOne(ctx, "get user by referral code", "referral_code = $1", code)
}

func (r *repository) getOne(
	ctx context.Context,
	op, where string,
	arg any,
) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE " + where

	var user User
	err := r.db.GetContext(ctx, &user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, core.ErrNotFound)
	}
	if err != nil {
		return nil, core.StorageError(op, err)
	}

	return &user, nil
}

func (r *repository) ReferralCodeExists(
	ctx context.Context,
	code string,
) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE referral_code = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		return false, core.StorageError("check referral code", err)
	}

	return exists, nil
}

// AssignReferralCode sets the code only while the user has none. It reports
// false when another writer got there first, and ErrDuplicateKey when the
// code itself is taken.
func (r *repository) AssignReferralCode(
	ctx context.Context,
	id, code string,
) (bool, error) {
	query := `
		UPDATE users
		SET referral_code = $2, updated_at = NOW()
		WHERE id = $1 AND referral_code IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, code)
	if err != nil {
		if core.IsUniqueViolation(err) {
			return false, fmt.Errorf("assign referral code: %w", core.ErrDuplicateKey)
		}
		return false, core.StorageError("assign referral code", err)
	}

	return affected(result, "assign referral code")
}

// SetReferredBy links id to referrerID once. False means the link already
// existed or the ids are the same.
func (r *repository) SetReferredBy(
	ctx context.Context,
	id, referrerID string,
) (bool, error) {
	query := `
		UPDATE users
		SET referred_by = $2, updated_at = NOW()
		WHERE id = $1 AND referred_by IS NULL AND id <> $2`

	result, err := r.db.ExecContext(ctx, query, id, referrerID)
	if err != nil {
		return false, core.StorageError("set referred by", err)
	}

	return affected(result, "set referred by")
}

// AdjustCredits applies delta in a single statement. With requireNonNegative
// the update only matches when the balance stays at or above zero, so
// concurrent debits can never overdraw.
func (r *repository) AdjustCredits(
	ctx context.Context,
	id string,
	delta int,
	requireNonNegative bool,
) (int, error) {
	query := `
		UPDATE users
		SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1 AND (NOT $3 OR credits + $2 >= 0)
		RETURNING credits`

	var balance int
	err := r.db.GetContext(ctx, &balance, query, id, delta, requireNonNegative)
	switch {
	case err == nil:
		return balance, nil
	case core.IsCheckViolation(err):
		return 0, fmt.Errorf("adjust credits: %w", core.ErrInsufficientCredits)
	case !errors.Is(err, sql.ErrNoRows):
		return 0, core.StorageError("adjust credits", err)
	}

	var exists bool
	existsQuery := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`
	if err := r.db.GetContext(ctx, &exists, existsQuery, id); err != nil {
		return 0, core.StorageError("adjust credits", err)
	}
	if !exists {
		return 0, fmt.Errorf("adjust credits: %w", core.ErrNotFound)
	}

	return 0, fmt.Errorf("adjust credits: %w", core.ErrInsufficientCredits)
}

func (r *repository) GetCredits(ctx context.Context, id string) (int, error) {
	var credits int
	err := r.db.GetContext(ctx, &credits, `SELECT credits FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("get credits: %w", core.ErrNotFound)
	}
	if err != nil {
		return 0, core.StorageError("get credits", err)
	}

	return credits, nil
}

func (r *repository) UpdateRole(
	ctx context.Context,
	id, role string,
) (*User, error) {
	query := `
		UPDATE users
		SET role = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	var user User
	err := r.db.GetContext(ctx, &user, query, id, role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update role: %w", core.ErrNotFound)
	}
	if err != nil {
		return nil, core.StorageError("update role", err)
	}

	return &user, nil
}

func (r *repository) UpdatePassword(
	ctx context.Context,
	id, passwordHash string,
) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return core.StorageError("update password", err)
	}

	ok, err := affected(result, "update password")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update password: %w", core.ErrNotFound)
	}

	return nil
}

func (r *repository) List(
	ctx context.Context,
	params ListUsersParams,
) ([]User, int, error) {
	params.Normalize()

	where := "TRUE"
	var args []any

	if params.Query != "" {
		where = "email ILIKE $1"
		args = append(args, "%"+escapeLike(params.Query)+"%")
	}

	countQuery := "SELECT COUNT(*) FROM users WHERE " + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, core.StorageError("count users", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)+1, len(args)+2)

	args = append(args, params.Limit, params.Offset)

	users := []User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, core.StorageError("list users", err)
	}

	return users, total, nil
}

func (r *repository) CountByRole(ctx context.Context) (RoleCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE role = 'free')  AS free,
			COUNT(*) FILTER (WHERE role = 'pro')   AS pro,
			COUNT(*) FILTER (WHERE role = 'admin') AS admin
		FROM users`

	var counts RoleCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return RoleCounts{}, core.StorageError("count users by role", err)
	}

	return counts, nil
}

func affected(result sql.Result, op string) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, core.StorageError(op, err)
	}
	return rows > 0, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
