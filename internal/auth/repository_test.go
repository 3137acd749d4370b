// AngelaMos | 2026
// repository_test.go

package auth

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/studybuddy/internal/config"
	"github.com/carterperez-dev/studybuddy/internal/core"
)

var (
	tokenDB     *core.Database
	tokenDBErr  error
	tokenDBOnce sync.Once
)

func openTokenDB(t *testing.T) *core.Database {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	tokenDBOnce.Do(func() {
		tokenDB, tokenDBErr = core.NewDatabase(context.Background(), config.DatabaseConfig{
			URL:          url,
			MaxOpenConns: 5,
			MaxIdleConns: 1,
		})
		if tokenDBErr == nil {
			_, tokenDBErr = tokenDB.Migrate()
		}
	})
	if tokenDBErr != nil {
		t.Fatalf("test database: %v", tokenDBErr)
	}
	return tokenDB
}

func seedUser(t *testing.T, db *core.Database) string {
	t.Helper()

	id := uuid.New().String()
	if _, err := db.DB.Exec(`INSERT INTO users (id, email) VALUES ($1, $2)`, id, id+"@example.com"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		_, _ = db.DB.Exec(`DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func seedToken(t *testing.T, repo Repository, userID, familyID string) *RefreshToken {
	t.Helper()

	tok := &RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: uuid.New().String(),
		FamilyID:  familyID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := repo.Create(context.Background(), tok); err != nil {
		t.Fatalf("create token: %v", err)
	}
	return tok
}

func TestRotateSpendsTokenOnce(t *testing.T) {
	db := openTokenDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	tok := seedToken(t, repo, seedUser(t, db), uuid.New().String())

	if err := repo.Rotate(ctx, tok.ID, uuid.New().String()); err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if err := repo.Rotate(ctx, tok.ID, uuid.New().String()); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second rotate err = %v, want ErrNotFound", err)
	}

	stored, err := repo.FindByHash(ctx, tok.TokenHash)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !stored.IsUsed || stored.ReplacedByID == nil {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestRevokeScopes(t *testing.T) {
	db := openTokenDB(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	userID := seedUser(t, db)
	family := uuid.New().String()
	seedToken(t, repo, userID, family)
	seedToken(t, repo, userID, family)
	seedToken(t, repo, userID, uuid.New().String())

	n, err := repo.Revoke(ctx, RevokeFamily, family)
	if err != nil || n != 2 {
		t.Fatalf("revoke family = %d %v, want 2", n, err)
	}

	n, err = repo.Revoke(ctx, RevokeUser, userID)
	if err != nil || n != 1 {
		t.Fatalf("revoke user = %d %v, want the 1 remaining token", n, err)
	}

	if _, err := repo.Revoke(ctx, RevokeScope("email"), userID); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("unknown scope err = %v", err)
	}
}
