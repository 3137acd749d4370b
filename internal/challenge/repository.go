// AngelaMos | 2026
// repository.go

package challenge

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/carterperez-dev/studybuddy/internal/core"
)

type Repository interface {
	CreateChallenge(ctx context.Context, date string) (*Challenge, error)
	GetChallengeByDate(ctx context.Context, date string) (*Challenge, error)
	GetChallengeByID(ctx context.Context, id string) (*Challenge, error)
	ListQuestions(ctx context.Context, challengeID string) ([]Question, error)
	InsertQuestions(ctx context.Context, challengeID string, questions []Question) error
	InsertAttempt(ctx context.Context, attempt *Attempt) (bool, error)
	GetAttempt(ctx context.Context, challengeID, userID string) (*Attempt, error)
	LockStats(ctx context.Context, userID string) (*Stats, error)
	GetStats(ctx context.Context, userID string) (*Stats, error)
	UpdateStats(ctx context.Context, userID string, stats Stats, date string) error
	CountAttemptsOn(ctx context.Context, date string) (int, error)
	TopScores(ctx context.Context, limit int) ([]UserScore, error)
}

// StoreFactory binds a Repository to the pool or to a transaction.
type StoreFactory func(db core.DBTX) Repository

type repository struct {
	db core.DBTX
}

func NewRepository(db core.DBTX) Repository {
	return &repository{db: db}
}

const challengeColumns = `id, challenge_date, created_at`

// CreateChallenge converges concurrent creators on the single row for date.
func (r *repository) CreateChallenge(ctx context.Context, date string) (*Challenge, error) {
	query := `
		INSERT INTO daily_challenges (id, challenge_date)
		VALUES ($1, $2::date)
		ON CONFLICT (challenge_date) DO NOTHING`

	if _, err := r.db.ExecContext(ctx, query, uuid.New().String(), date); err != nil {
		return nil, core.StorageError("create daily challenge", err)
	}

	return r.GetChallengeByDate(ctx, date)
}

func (r *repository) GetChallengeByDate(ctx context.Context, date string) (*Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM daily_challenges WHERE challenge_date = $1::date`

	var c Challenge
	if err := r.db.GetContext(ctx, &c, query, date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, core.StorageError("get daily challenge by date", err)
	}

	return &c, nil
}

func (r *repository) GetChallengeByID(ctx context.Context, id string) (*Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM daily_challenges WHERE id = $1`

	var c Challenge
	if err := r.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, core.StorageError("get daily challenge", err)
	}

	return &c, nil
}

func (r *repository) ListQuestions(ctx context.Context, challengeID string) ([]Question, error) {
	query := `
		SELECT challenge_id, idx, question, options, answer, explanation, difficulty, topic
		FROM daily_challenge_questions
		WHERE challenge_id = $1
		ORDER BY idx ASC`

	var questions []Question
	if err := r.db.SelectContext(ctx, &questions, query, challengeID); err != nil {
		return nil, core.StorageError("list daily challenge questions", err)
	}

	return questions, nil
}

// InsertQuestions tolerates rows a concurrent generator already wrote. Run it
// inside a transaction so a partial set is never visible.
func (r *repository) InsertQuestions(
	ctx context.Context,
	challengeID string,
	questions []Question,
) error {
	query := `
		INSERT INTO daily_challenge_questions
			(challenge_id, idx, question, options, answer, explanation, difficulty, topic)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8)
		ON CONFLICT (challenge_id, idx) DO NOTHING`

	for _, q := range questions {
		_, err := r.db.ExecContext(ctx, query,
			challengeID,
			q.Idx,
			q.Question,
			q.Options,
			q.Answer,
			q.Explanation,
			q.Difficulty,
			q.Topic,
		)
		if err != nil {
			return core.StorageError("insert daily challenge question", err)
		}
	}

	return nil
}

// InsertAttempt reports false when the user already has an attempt for the
// challenge. The conflict is absorbed so an enclosing transaction stays usable.
func (r *repository) InsertAttempt(ctx context.Context, a *Attempt) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	query := `
		INSERT INTO daily_challenge_attempts
			(id, challenge_id, user_id, answers, score, total_questions, xp_earned)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
		ON CONFLICT (challenge_id, user_id) DO NOTHING
		RETURNING completed_at`

	err := r.db.GetContext(ctx, &a.CompletedAt, query,
		a.ID,
		a.ChallengeID,
		a.UserID,
		a.Answers,
		a.Score,
		a.TotalQuestions,
		a.XPEarned,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if core.IsUniqueViolation(err) {
			return false, nil
		}
		return false, core.StorageError("insert daily challenge attempt", err)
	}

	return true, nil
}

func (r *repository) GetAttempt(ctx context.Context, challengeID, userID string) (*Attempt, error) {
	query := `
		SELECT id, challenge_id, user_id, answers, score, total_questions, xp_earned, completed_at
		FROM daily_challenge_attempts
		WHERE challenge_id = $1 AND user_id = $2`

	var a Attempt
	if err := r.db.GetContext(ctx, &a, query, challengeID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, core.StorageError("get daily challenge attempt", err)
	}

	return &a, nil
}

// LockStats must run inside a transaction; the row stays locked until commit.
func (r *repository) LockStats(ctx context.Context, userID string) (*Stats, error) {
	query := `
		SELECT xp, daily_streak, best_daily_streak, last_daily_challenge_date
		FROM users
		WHERE id = $1
		FOR UPDATE`

	var s Stats
	if err := r.db.GetContext(ctx, &s, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, core.StorageError("lock user stats", err)
	}

	return &s, nil
}

func (r *repository) GetStats(ctx context.Context, userID string) (*Stats, error) {
	query := `
		SELECT xp, daily_streak, best_daily_streak, last_daily_challenge_date
		FROM users
		WHERE id = $1`

	var s Stats
	if err := r.db.GetContext(ctx, &s, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, core.StorageError("get user stats", err)
	}

	return &s, nil
}

func (r *repository) UpdateStats(ctx context.Context, userID string, s Stats, date string) error {
	query := `
		UPDATE users
		SET xp = $2,
		    daily_streak = $3,
		    best_daily_streak = $4,
		    last_daily_challenge_date = $5::date,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, userID, s.XP, s.DailyStreak, s.BestDailyStreak, date)
	if err != nil {
		return core.StorageError("update user stats", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return core.StorageError("update user stats", err)
	}
	if rows == 0 {
		return core.ErrNotFound
	}

	return nil
}

func (r *repository) CountAttemptsOn(ctx context.Context, date string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM daily_challenge_attempts a
		JOIN daily_challenges c ON c.id = a.challenge_id
		WHERE c.challenge_date = $1::date`

	var n int
	if err := r.db.GetContext(ctx, &n, query, date); err != nil {
		return 0, core.StorageError("count daily challenge attempts", err)
	}

	return n, nil
}

// TopScores lists the highest XP totals, used to rebuild the leaderboards.
func (r *repository) TopScores(ctx context.Context, limit int) ([]UserScore, error) {
	query := `
		SELECT id, xp, best_daily_streak
		FROM users
		WHERE xp > 0 OR best_daily_streak > 0
		ORDER BY xp DESC
		LIMIT $1`

	var scores []UserScore
	if err := r.db.SelectContext(ctx, &scores, query, limit); err != nil {
		return nil, core.StorageError("list top scores", err)
	}

	return scores, nil
}
