// AngelaMos | 2026
// engine.go

package referral

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/studybuddy/internal/config"
	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/credit"
	"github.com/carterperez-dev/studybuddy/internal/user"
)

const (
	MaxCodeAttempts = 10
	codeBytes       = 4
)

var codePattern = regexp.MustCompile(`^[0-9A-F]{8}$`)

type Reason string

const (
	ReasonMissingCode     Reason = "missing_code"
	ReasonInvalidCode     Reason = "invalid_code"
	ReasonUserNotFound    Reason = "user_not_found"
	ReasonAlreadyReferred Reason = "already_referred"
	ReasonSelfReferral    Reason = "self_referral"
	ReasonCodeNotFound    Reason = "code_not_found"
)

type Result struct {
	Applied    bool   `json:"applied"`
	Reason     Reason `json:"reason,omitempty"`
	ReferrerID string `json:"-"`
}

// Store is the slice of the account store the engine needs. It must be safe
// to bind to a transaction through StoreFactory.
type Store interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
	GetByReferralCode(ctx context.Context, code string) (*user.User, error)
	ReferralCodeExists(ctx context.Context, code string) (bool, error)
	AssignReferralCode(ctx context.Context, id, code string) (bool, error)
	SetReferredBy(ctx context.Context, id, referrerID string) (bool, error)
	credit.Store
}

type StoreFactory func(db core.DBTX) Store

type Engine struct {
	db       core.DBTX
	stores   StoreFactory
	bonusNew int
	bonusRef int
	random   io.Reader
}

func NewEngine(db core.DBTX, stores StoreFactory, cfg config.CreditsConfig) *Engine {
	return &Engine{
		db:       db,
		stores:   stores,
		bonusNew: cfg.ReferralBonusNewUser,
		bonusRef: cfg.ReferralBonusReferrer,
		random:   rand.Reader,
	}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

func (e *Engine) newCode() (string, error) {
	buf := make([]byte, codeBytes)
	if _, err := io.ReadFull(e.random, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// GenerateUniqueCode returns a code no account holds right now. The unique
// index on referral_code still decides any race with a concurrent writer.
func (e *Engine) GenerateUniqueCode(ctx context.Context) (string, error) {
	store := e.stores(e.db)

	for range MaxCodeAttempts {
		code, err := e.newCode()
		if err != nil {
			return "", err
		}

		exists, err := store.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	return "", core.CodeGenerationFailedError()
}

// EnsureCodeForUser returns the user's code, assigning one on first use.
// Concurrent callers for the same user all end up with the same code.
func (e *Engine) EnsureCodeForUser(ctx context.Context, userID string) (string, error) {
	store := e.stores(e.db)

	u, err := store.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.ReferralCode != nil && *u.ReferralCode != "" {
		return *u.ReferralCode, nil
	}

	for range MaxCodeAttempts {
		code, err := e.GenerateUniqueCode(ctx)
		if err != nil {
			return "", err
		}

		assigned, err := store.AssignReferralCode(ctx, userID, code)
		if errors.Is(err, core.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return "", err
		}
		if assigned {
			return code, nil
		}

		winner, err := store.GetByID(ctx, userID)
		if err != nil {
			return "", err
		}
		if winner.ReferralCode != nil && *winner.ReferralCode != "" {
			return *winner.ReferralCode, nil
		}
	}

	return "", core.CodeGenerationFailedError()
}

// ApplyReferral links the account at newUserEmail to the owner of code and
// grants both bonuses. Rejections come back as a Result reason; only storage
// failures are errors. The link and both grants commit together or not at
// all, and a lost race on the link grants nothing.
func (e *Engine) ApplyReferral(
	ctx context.Context,
	newUserEmail, code string,
) (*Result, error) {
	ctx, span := core.StartSpan(ctx, "referral.apply")
	result, err := e.applyReferral(ctx, newUserEmail, code)
	if result != nil {
		span.SetAttributes(
			attribute.Bool("referral.applied", result.Applied),
			attribute.String("referral.reason", string(result.Reason)),
		)
	}
	core.EndSpan(span, err)

	return result, err
}

func (e *Engine) applyReferral(
	ctx context.Context,
	newUserEmail, code string,
) (*Result, error) {
	code = NormalizeCode(code)
	if code == "" {
		return rejected(ReasonMissingCode), nil
	}
	if !ValidCode(code) {
		return rejected(ReasonInvalidCode), nil
	}

	store := e.stores(e.db)

	newUser, err := store.GetByEmail(ctx, newUserEmail)
	if errors.Is(err, core.ErrNotFound) {
		return rejected(ReasonUserNotFound), nil
	}
	if err != nil {
		return nil, err
	}

	if newUser.ReferredBy != nil {
		return rejected(ReasonAlreadyReferred), nil
	}

	referrer, err := store.GetByReferralCode(ctx, code)
	if errors.Is(err, core.ErrNotFound) {
		return rejected(ReasonCodeNotFound), nil
	}
	if err != nil {
		return nil, err
	}

	if referrer.ID == newUser.ID {
		return rejected(ReasonSelfReferral), nil
	}

	var linked bool
	err = core.InTx(ctx, e.db, func(tx core.DBTX) error {
		txStore := e.stores(tx)

		var err error
		linked, err = txStore.SetReferredBy(ctx, newUser.ID, referrer.ID)
		if err != nil || !linked {
			return err
		}

		ledger := credit.NewLedger(txStore)
		if e.bonusNew > 0 {
			if _, err := ledger.Adjust(ctx, newUser.ID, e.bonusNew); err != nil {
				return err
			}
		}
		if e.bonusRef > 0 {
			if _, err := ledger.Adjust(ctx, referrer.ID, e.bonusRef); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply referral: %w", err)
	}

	if !linked {
		return rejected(ReasonAlreadyReferred), nil
	}

	slog.InfoContext(ctx, "referral applied",
		"user_id", newUser.ID,
		"referrer_id", referrer.ID,
	)

	return &Result{Applied: true, ReferrerID: referrer.ID}, nil
}

// AfterSignup applies a code given at registration. Rejections and failures
// are logged; the signup itself always stands.
func (e *Engine) AfterSignup(ctx context.Context, email, code string) {
	result, err := e.ApplyReferral(ctx, email, code)
	if err != nil {
		slog.ErrorContext(ctx, "referral on signup failed", "error", err)
		return
	}
	if !result.Applied {
		slog.InfoContext(ctx, "referral on signup not applied", "reason", result.Reason)
	}
}

func rejected(reason Reason) *Result {
	return &Result{Reason: reason}
}
