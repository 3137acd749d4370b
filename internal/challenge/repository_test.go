// AngelaMos | 2026
// repository_test.go

package challenge

import (
	"context"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/studybuddy/internal/config"
	"github.com/carterperez-dev/studybuddy/internal/core"
)

var (
	pgDB     *core.Database
	pgDBErr  error
	pgDBOnce sync.Once
)

func openPostgres(t *testing.T) *core.Database {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pgDBOnce.Do(func() {
		pgDB, pgDBErr = core.NewDatabase(context.Background(), config.DatabaseConfig{
			URL:          url,
			MaxOpenConns: 20,
			MaxIdleConns: 2,
		})
		if pgDBErr == nil {
			_, pgDBErr = pgDB.Migrate()
		}
	})
	if pgDBErr != nil {
		t.Fatalf("test database: %v", pgDBErr)
	}
	return pgDB
}

// freeDate picks a far-future calendar day no real challenge will use and
// removes its challenge when the test ends.
func freeDate(t *testing.T, db *core.Database) string {
	t.Helper()

	date := time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, rand.IntN(300_000)).
		Format(DateLayout)
	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		_, _ = db.DB.Exec(`DELETE FROM daily_challenges WHERE challenge_date = $1::date`, date)
	})
	return date
}

func insertUser(t *testing.T, db *core.Database) string {
	t.Helper()

	id := uuid.New().String()
	if _, err := db.DB.Exec(`INSERT INTO users (id, email) VALUES ($1, $2)`, id, id+"@example.com"); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // test cleanup
		_, _ = db.DB.Exec(`DELETE FROM daily_challenge_attempts WHERE user_id = $1`, id)
		//nolint:errcheck // test cleanup
		_, _ = db.DB.Exec(`DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func fixedQuestions() []Question {
	out := make([]Question, QuestionCount)
	for i := range out {
		out[i] = Question{
			Idx:        i,
			Question:   "Which option is first?",
			Options:    StringArray{"a", "b", "c", "d"},
			Answer:     "a",
			Difficulty: DifficultyEasy,
		}
	}
	return out
}

func TestCreateChallengeConvergesOnOneRow(t *testing.T) {
	db := openPostgres(t)
	repo := NewRepository(db.DB)
	date := freeDate(t, db)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := repo.CreateChallenge(context.Background(), date)
			errs[i] = err
			if err == nil {
				ids[i] = ch.ID
			}
		}()
	}
	wg.Wait()

	for i := range workers {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got challenge %s, worker 0 got %s", i, ids[i], ids[0])
		}
	}
}

func TestInsertAttemptOncePerUser(t *testing.T) {
	db := openPostgres(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()

	ch, err := repo.CreateChallenge(ctx, freeDate(t, db))
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	userID := insertUser(t, db)

	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
		failed   atomic.Int32
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.InsertAttempt(ctx, &Attempt{
				ChallengeID:    ch.ID,
				UserID:         userID,
				Answers:        StringArray{"a", "a", "a", "a", "a"},
				Score:          QuestionCount,
				TotalQuestions: QuestionCount,
				XPEarned:       25,
			})
			switch {
			case err != nil:
				failed.Add(1)
				t.Errorf("InsertAttempt: %v", err)
			case ok:
				inserted.Add(1)
			}
		}()
	}
	wg.Wait()

	if inserted.Load() != 1 || failed.Load() != 0 {
		t.Fatalf("inserted %d failed %d, want exactly one insert", inserted.Load(), failed.Load())
	}

	stored, err := repo.GetAttempt(ctx, ch.ID, userID)
	if err != nil || stored.Score != QuestionCount {
		t.Fatalf("stored attempt = %+v %v", stored, err)
	}
}

func TestSubmitAgainstPostgresGrantsXPOnce(t *testing.T) {
	db := openPostgres(t)
	repo := NewRepository(db.DB)
	ctx := context.Background()
	date := freeDate(t, db)

	ch, err := repo.CreateChallenge(ctx, date)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	if err := repo.InsertQuestions(ctx, ch.ID, fixedQuestions()); err != nil {
		t.Fatalf("insert questions: %v", err)
	}
	userID := insertUser(t, db)

	svc := NewService(db.DB, NewRepository, nil, 1)
	svc.now = func() time.Time { return day(date).Add(9 * time.Hour) }

	answers := []string{"a", "a", "a", "a", "a"}

	var (
		wg    sync.WaitGroup
		fresh atomic.Int32
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.SubmitToday(ctx, userID, answers)
			if err != nil {
				t.Errorf("SubmitToday: %v", err)
				return
			}
			if !res.AlreadySubmitted {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	if fresh.Load() != 1 {
		t.Fatalf("%d first-time submissions, want 1", fresh.Load())
	}

	stats, err := repo.GetStats(ctx, userID)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.XP != XPFor(QuestionCount, QuestionCount) || stats.DailyStreak != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
