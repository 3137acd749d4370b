// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenRevoked = errors.New("token revoked")

	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrInvalidSubmission    = errors.New("invalid submission")
	ErrNotConfigured        = errors.New("feature not configured")
	ErrGenerationFailed     = errors.New("content generation failed")
	ErrCodeGenerationFailed = errors.New("referral code generation failed")
	ErrDatabase             = errors.New("database error")
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
)

type AppError struct {
	Err        error  `json:"-"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Details    any    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message string, status int, code string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: status,
		Code:       code,
	}
}

func (e *AppError) WithDetails(details any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func UnauthorizedError(message string) *AppError {
	if message == "" {
		message = "Unauthorized"
	}
	return NewAppError(ErrUnauthorized, message, http.StatusUnauthorized, "UNAUTHORIZED")
}

func ForbiddenError(message string) *AppError {
	if message == "" {
		message = "Forbidden"
	}
	return NewAppError(ErrForbidden, message, http.StatusForbidden, "FORBIDDEN")
}

func TokenExpiredError() *AppError {
	return NewAppError(ErrTokenExpired, "token has expired", http.StatusUnauthorized, "TOKEN_EXPIRED")
}

func TokenInvalidError() *AppError {
	return NewAppError(ErrTokenInvalid, "token is invalid", http.StatusUnauthorized, "TOKEN_INVALID")
}

func TokenRevokedError() *AppError {
	return NewAppError(ErrTokenRevoked, "token has been revoked", http.StatusUnauthorized, "TOKEN_REVOKED")
}

func DuplicateError(field string) *AppError {
	return NewAppError(
		ErrDuplicateKey,
		fmt.Sprintf("%s already exists", field),
		http.StatusConflict,
		"DUPLICATE",
	)
}

func OutOfCreditsError() *AppError {
	return NewAppError(
		ErrInsufficientCredits,
		"Out of credits. Upgrade to Pro or redeem a referral code.",
		http.StatusPaymentRequired,
		"OUT_OF_CREDITS",
	)
}

func InvalidSubmissionError(message string) *AppError {
	return NewAppError(ErrInvalidSubmission, message, http.StatusBadRequest, "INVALID_SUBMISSION")
}

func NotConfiguredError(message, hint string) *AppError {
	appErr := NewAppError(ErrNotConfigured, message, http.StatusNotImplemented, "NOT_CONFIGURED")
	if hint != "" {
		appErr.Details = map[string]string{"hint": hint}
	}
	return appErr
}

func GenerationFailedError(message string) *AppError {
	return NewAppError(ErrGenerationFailed, message, http.StatusServiceUnavailable, "GENERATION_FAILED")
}

func CodeGenerationFailedError() *AppError {
	return NewAppError(
		ErrCodeGenerationFailed,
		"could not allocate a referral code, try again later",
		http.StatusServiceUnavailable,
		"CODE_GENERATION_FAILED",
	)
}

// IsUniqueViolation reports whether err carries a postgres unique_violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == pgUniqueViolation
}

func IsCheckViolation(err error) bool {
	return pgCode(err) == pgCheckViolation
}

// IsSchemaMissing reports whether err was caused by a table or column that
// has not been provisioned yet.
func IsSchemaMissing(err error) bool {
	code := pgCode(err)
	return code == pgUndefinedTable || code == pgUndefinedColumn
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// StorageError classifies a raw driver error for the layers above the
// repositories: schema gaps become ErrNotConfigured, everything else ErrDatabase.
func StorageError(op string, err error) error {
	if IsSchemaMissing(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotConfigured, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDatabase, err)
}
