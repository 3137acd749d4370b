// AngelaMos | 2026
// service.go

package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/llm"
)

var errAlreadySubmitted = errors.New("attempt already recorded")

// ScoreBoard receives a user's totals after a first-time submission.
type ScoreBoard interface {
	Record(ctx context.Context, userID string, xp, bestStreak int) error
}

type Service struct {
	db        core.DBTX
	stores    StoreFactory
	generator Generator
	attempts  int
	board     ScoreBoard
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(
	db core.DBTX,
	stores StoreFactory,
	generator Generator,
	generationAttempts int,
) *Service {
	return &Service{
		db:        db,
		stores:    stores,
		generator: generator,
		attempts:  max(generationAttempts, 1),
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    slog.Default().With("component", "daily_challenge"),
		now:       time.Now,
	}
}

func (s *Service) WithScoreBoard(board ScoreBoard) *Service {
	s.board = board
	return s
}

func (s *Service) todayDate() string {
	return s.now().UTC().Format(DateLayout)
}

// CurrentDate is the UTC calendar date challenges are keyed by.
func (s *Service) CurrentDate() string {
	return s.todayDate()
}

func (s *Service) GetOrCreateChallenge(ctx context.Context, date string) (*Challenge, error) {
	repo := s.stores(s.db)

	existing, err := repo.GetChallengeByDate(ctx, date)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	ch, err := repo.CreateChallenge(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("get or create challenge %s: %w", date, err)
	}

	return ch, nil
}

// EnsureQuestions returns the challenge's question set, generating it first
// when fewer than QuestionCount rows exist.
func (s *Service) EnsureQuestions(ctx context.Context, ch *Challenge) ([]Question, error) {
	repo := s.stores(s.db)

	existing, err := repo.ListQuestions(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) >= QuestionCount {
		return existing, nil
	}

	ctx, span := core.StartSpan(ctx, "challenge.generate",
		attribute.String("challenge.date", ch.DateString()),
	)
	questions, err := s.generate(ctx, ch.DateString())
	core.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	err = core.InTx(ctx, s.db, func(tx core.DBTX) error {
		return s.stores(tx).InsertQuestions(ctx, ch.ID, questions)
	})
	if err != nil {
		return nil, fmt.Errorf("store generated questions: %w", err)
	}

	return repo.ListQuestions(ctx, ch.ID)
}

func (s *Service) generate(ctx context.Context, date string) ([]Question, error) {
	if s.generator == nil {
		return nil, generatorNotConfigured()
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		raw, err := s.generator.Generate(ctx, date)
		if errors.Is(err, llm.ErrNoCredential) {
			return nil, generatorNotConfigured()
		}
		if err != nil {
			s.logger.WarnContext(ctx, "challenge generation failed",
				"date", date,
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		items, err := ParseReply(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "challenge reply unparseable",
				"date", date,
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		questions := SelectQuestions(s.validator, items)
		if len(questions) == QuestionCount {
			core.AddSpanEvent(ctx, "challenge.generated", attribute.Int("attempt", attempt))
			return questions, nil
		}

		s.logger.WarnContext(ctx, "challenge reply had too few valid questions",
			"date", date,
			"attempt", attempt,
			"candidates", len(items),
			"valid", len(questions),
		)
	}

	return nil, core.GenerationFailedError("Could not generate today's challenge, try again shortly")
}

func generatorNotConfigured() error {
	return core.NotConfiguredError(
		"Daily Challenge generation is not configured",
		"set GROQ_API_KEY or enable LLM_DRY_RUN",
	)
}

// Prewarm creates the current day's challenge and its questions ahead of the
// first request.
func (s *Service) Prewarm(ctx context.Context) error {
	ch, err := s.GetOrCreateChallenge(ctx, s.todayDate())
	if err != nil {
		return err
	}
	_, err = s.EnsureQuestions(ctx, ch)
	return err
}

func (s *Service) Today(ctx context.Context, userID string) (*TodayView, error) {
	ch, err := s.GetOrCreateChallenge(ctx, s.todayDate())
	if err != nil {
		return nil, err
	}

	questions, err := s.EnsureQuestions(ctx, ch)
	if err != nil {
		return nil, err
	}

	view := &TodayView{
		ChallengeID:    ch.ID,
		Date:           ch.DateString(),
		TotalQuestions: len(questions),
		Questions:      toPublicQuestions(questions),
	}

	attempt, err := s.stores(s.db).GetAttempt(ctx, ch.ID, userID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return view, nil
	case err != nil:
		return nil, err
	}

	view.Completed = true
	view.Attempt = toAttemptView(attempt)
	view.Solutions = toSolutions(questions)

	return view, nil
}

// SubmitToday grades answers against the current UTC day's challenge. Submit
// does the same for an explicit challenge ID, which must still be today's.
func (s *Service) SubmitToday(ctx context.Context, userID string, answers []string) (*SubmitResult, error) {
	ch, err := s.stores(s.db).GetChallengeByDate(ctx, s.todayDate())
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.InvalidSubmissionError("Daily Challenge not ready yet. Open today's challenge first.")
	}
	if err != nil {
		return nil, err
	}

	return s.submit(ctx, userID, ch, answers)
}

func (s *Service) Submit(
	ctx context.Context,
	userID, challengeID string,
	answers []string,
) (*SubmitResult, error) {
	ch, err := s.stores(s.db).GetChallengeByID(ctx, challengeID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.InvalidSubmissionError("Daily Challenge not found.")
	}
	if err != nil {
		return nil, err
	}
	if ch.DateString() != s.todayDate() {
		return nil, core.InvalidSubmissionError("This Daily Challenge is closed. Only today's challenge can be submitted.").
			WithDetails(map[string]string{"date": ch.DateString(), "today": s.todayDate()})
	}

	return s.submit(ctx, userID, ch, answers)
}

func (s *Service) submit(
	ctx context.Context,
	userID string,
	ch *Challenge,
	answers []string,
) (*SubmitResult, error) {
	questions, err := s.stores(s.db).ListQuestions(ctx, ch.ID)
	if err != nil {
		return nil, err
	}
	if len(questions) < QuestionCount {
		return nil, core.InvalidSubmissionError("Daily Challenge not ready yet. Try again in a moment.")
	}

	if err := checkAnswers(questions, answers); err != nil {
		return nil, err
	}

	score, correctness := ScoreAnswers(questions, answers)
	total := len(questions)
	xp := XPFor(score, total)
	today := s.now()
	date := ch.DateString()

	ctx, span := core.StartSpan(ctx, "challenge.submit",
		attribute.String("challenge.id", ch.ID),
		attribute.Int("challenge.score", score),
	)

	attempt := &Attempt{
		ChallengeID:    ch.ID,
		UserID:         userID,
		Answers:        StringArray(answers),
		Score:          score,
		TotalQuestions: total,
		XPEarned:       xp,
	}

	var stats Stats
	var streak StreakUpdate

	err = core.InTx(ctx, s.db, func(tx core.DBTX) error {
		store := s.stores(tx)

		inserted, err := store.InsertAttempt(ctx, attempt)
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadySubmitted
		}

		current, err := store.LockStats(ctx, userID)
		if err != nil {
			return err
		}

		streak = NextStreak(*current, today)
		stats = Stats{
			XP:              current.XP + xp,
			DailyStreak:     streak.DailyStreak,
			BestDailyStreak: streak.BestDailyStreak,
		}

		return store.UpdateStats(ctx, userID, stats, date)
	})

	if errors.Is(err, errAlreadySubmitted) {
		core.EndSpan(span, nil)
		return s.replay(ctx, userID, ch, questions)
	}
	core.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("record daily challenge attempt: %w", err)
	}

	s.recordScore(ctx, userID, stats)

	return &SubmitResult{
		Date:             date,
		Completed:        true,
		AlreadySubmitted: false,
		Answers:          answerList(attempt.Answers),
		Score:            score,
		TotalQuestions:   total,
		XPEarned:         xp,
		CompletedAt:      &attempt.CompletedAt,
		Streak:           stats.DailyStreak,
		BestStreak:       stats.BestDailyStreak,
		XPTotal:          stats.XP,
		StreakBroken:     streak.StreakBroken,
		PreviousStreak:   streak.PreviousStreak,
		Solutions:        toSolutions(questions),
		Correctness:      correctness,
	}, nil
}

// replay rebuilds the first response from the stored attempt. The stored
// answers are graded again so a retry never reflects the new answers; stats
// are read, not touched.
func (s *Service) replay(
	ctx context.Context,
	userID string,
	ch *Challenge,
	questions []Question,
) (*SubmitResult, error) {
	store := s.stores(s.db)

	existing, err := store.GetAttempt(ctx, ch.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("reload daily challenge attempt: %w", err)
	}

	stats, err := store.GetStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload user stats: %w", err)
	}

	_, correctness := ScoreAnswers(questions, existing.Answers)
	completedAt := existing.CompletedAt

	return &SubmitResult{
		Date:             ch.DateString(),
		Completed:        true,
		AlreadySubmitted: true,
		Answers:          answerList(existing.Answers),
		Score:            existing.Score,
		TotalQuestions:   existing.TotalQuestions,
		XPEarned:         existing.XPEarned,
		CompletedAt:      &completedAt,
		Streak:           stats.DailyStreak,
		BestStreak:       stats.BestDailyStreak,
		XPTotal:          stats.XP,
		Solutions:        toSolutions(questions),
		Correctness:      correctness,
	}, nil
}

func (s *Service) recordScore(ctx context.Context, userID string, stats Stats) {
	if s.board == nil {
		return
	}

	if err := s.board.Record(ctx, userID, stats.XP, stats.BestDailyStreak); err != nil {
		s.logger.WarnContext(ctx, "leaderboard update failed",
			"user_id", userID,
			"error", err,
		)
	}
}

// AttemptsOn counts submissions for a UTC date.
func (s *Service) AttemptsOn(ctx context.Context, date string) (int, error) {
	return s.stores(s.db).CountAttemptsOn(ctx, date)
}

func (s *Service) TopScores(ctx context.Context, limit int) ([]UserScore, error) {
	return s.stores(s.db).TopScores(ctx, limit)
}

func checkAnswers(questions []Question, answers []string) error {
	if len(answers) != len(questions) {
		return core.InvalidSubmissionError(
			fmt.Sprintf("Please answer all %d questions.", len(questions)),
		)
	}

	for i, q := range questions {
		if !slices.Contains(visibleOptions(q.Options), answers[i]) {
			return core.InvalidSubmissionError(
				fmt.Sprintf("Invalid answer for question %d.", i+1),
			).WithDetails(map[string]int{"index": i})
		}
	}

	return nil
}

func visibleOptions(options []string) []string {
	out := make([]string, 0, OptionCount)
	for _, o := range options {
		if strings.TrimSpace(o) == "" {
			continue
		}
		out = append(out, o)
		if len(out) == OptionCount {
			break
		}
	}
	return out
}
