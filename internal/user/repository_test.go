// AngelaMos | 2026
// repository_test.go

package user

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/carterperez-dev/studybuddy/internal/config"
	"github.com/carterperez-dev/studybuddy/internal/core"
)

var (
	sharedDB     *core.Database
	sharedDBErr  error
	sharedDBOnce sync.Once
)

// testDB connects to TEST_DATABASE_URL once per package run and applies the
// migrations. Tests skip when the variable is unset.
func testDB(t *testing.T) *core.Database {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	sharedDBOnce.Do(func() {
		sharedDB, sharedDBErr = core.NewDatabase(context.Background(), config.DatabaseConfig{
			URL:          url,
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		})
		if sharedDBErr == nil {
			_, sharedDBErr = sharedDB.Migrate()
		}
	})
	if sharedDBErr != nil {
		t.Fatalf("test database: %v", sharedDBErr)
	}

	return sharedDB
}

func createUser(t *testing.T, repo Repository, credits int) *User {
	t.Helper()

	id := uuid.New().String()
	u := &User{
		ID:      id,
		Email:   id + "@example.com",
		Role:    RoleFree,
		Credits: credits,
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}

	db := testDB(t)
	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		_, _ = db.DB.Exec(`UPDATE users SET referred_by = NULL WHERE referred_by = $1`, id)
		//nolint:errcheck // test cleanup
		_, _ = db.DB.Exec(`DELETE FROM users WHERE id = $1`, id)
	})

	return u
}

func TestAdjustCreditsNeverOverdraws(t *testing.T) {
	repo := NewRepository(testDB(t).DB)
	u := createUser(t, repo, 3)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		debited  int
		rejected int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AdjustCredits(ctx, u.ID, -1, true)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				debited++
			case errors.Is(err, core.ErrInsufficientCredits):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if debited != 3 || rejected != 7 {
		t.Fatalf("debited %d rejected %d, want 3 and 7", debited, rejected)
	}

	balance, err := repo.GetCredits(ctx, u.ID)
	if err != nil || balance != 0 {
		t.Fatalf("balance = %d %v", balance, err)
	}
}

func TestAdjustCreditsUnknownUser(t *testing.T) {
	repo := NewRepository(testDB(t).DB)

	_, err := repo.AdjustCredits(context.Background(), uuid.New().String(), 1, false)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAssignReferralCodeOnce(t *testing.T) {
	repo := NewRepository(testDB(t).DB)
	ctx := context.Background()
	a := createUser(t, repo, 0)
	b := createUser(t, repo, 0)

	code := uuid.New().String()[:8]

	ok, err := repo.AssignReferralCode(ctx, a.ID, code)
	if err != nil || !ok {
		t.Fatalf("first assign = %v %v", ok, err)
	}

	ok, err = repo.AssignReferralCode(ctx, a.ID, "FFFFFFFF")
	if err != nil || ok {
		t.Fatalf("second assign = %v %v, want false", ok, err)
	}

	if _, err := repo.AssignReferralCode(ctx, b.ID, code); !errors.Is(err, core.ErrDuplicateKey) {
		t.Fatalf("duplicate code err = %v", err)
	}
}

func TestSetReferredByOnceAndNeverSelf(t *testing.T) {
	repo := NewRepository(testDB(t).DB)
	ctx := context.Background()
	referrer := createUser(t, repo, 0)
	invitee := createUser(t, repo, 0)

	if ok, err := repo.SetReferredBy(ctx, invitee.ID, invitee.ID); err != nil || ok {
		t.Fatalf("self referral = %v %v", ok, err)
	}
	if ok, err := repo.SetReferredBy(ctx, invitee.ID, referrer.ID); err != nil || !ok {
		t.Fatalf("first link = %v %v", ok, err)
	}
	if ok, err := repo.SetReferredBy(ctx, invitee.ID, referrer.ID); err != nil || ok {
		t.Fatalf("second link = %v %v", ok, err)
	}
}
