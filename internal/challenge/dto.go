// AngelaMos | 2026
// dto.go

package challenge

import (
	"slices"
	"time"
)

type SubmitRequest struct {
	ChallengeID string   `json:"challenge_id" validate:"omitempty,uuid"`
	Answers     []string `json:"answers"`
}

type PublicQuestion struct {
	Idx        int      `json:"idx"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	Difficulty string   `json:"difficulty"`
	Topic      *string  `json:"topic"`
}

type Solution struct {
	Idx         int     `json:"idx"`
	Answer      string  `json:"answer"`
	Explanation *string `json:"explanation"`
}

type AttemptView struct {
	Answers        []string  `json:"answers"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	XPEarned       int       `json:"xp_earned"`
	CompletedAt    time.Time `json:"completed_at"`
}

type TodayView struct {
	ChallengeID    string           `json:"challenge_id"`
	Date           string           `json:"date"`
	TotalQuestions int              `json:"total_questions"`
	Completed      bool             `json:"completed"`
	Questions      []PublicQuestion `json:"questions"`
	Attempt        *AttemptView     `json:"attempt,omitempty"`
	Solutions      []Solution       `json:"solutions,omitempty"`
}

type SubmitResult struct {
	Date             string     `json:"date"`
	Completed        bool       `json:"completed"`
	AlreadySubmitted bool       `json:"already_submitted"`
	Answers          []string   `json:"answers"`
	Score            int        `json:"score"`
	TotalQuestions   int        `json:"total_questions"`
	XPEarned         int        `json:"xp_earned"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Streak           int        `json:"streak,omitempty"`
	BestStreak       int        `json:"best_streak,omitempty"`
	XPTotal          int        `json:"xp_total,omitempty"`
	StreakBroken     bool       `json:"streak_broken"`
	PreviousStreak   int        `json:"previous_streak"`
	Solutions        []Solution `json:"solutions"`
	Correctness      []bool     `json:"correctness,omitempty"`
}

func toPublicQuestions(questions []Question) []PublicQuestion {
	out := make([]PublicQuestion, len(questions))
	for i, q := range questions {
		out[i] = PublicQuestion{
			Idx:        q.Idx,
			Question:   q.Question,
			Options:    visibleOptions(q.Options),
			Difficulty: q.Difficulty,
			Topic:      q.Topic,
		}
	}
	return out
}

func toSolutions(questions []Question) []Solution {
	out := make([]Solution, len(questions))
	for i, q := range questions {
		out[i] = Solution{Idx: q.Idx, Answer: q.Answer, Explanation: q.Explanation}
	}
	return out
}

func answerList(a StringArray) []string {
	if a == nil {
		return []string{}
	}
	return slices.Clone([]string(a))
}

func toAttemptView(a *Attempt) *AttemptView {
	return &AttemptView{
		Answers:        answerList(a.Answers),
		Score:          a.Score,
		TotalQuestions: a.TotalQuestions,
		XPEarned:       a.XPEarned,
		CompletedAt:    a.CompletedAt,
	}
}
