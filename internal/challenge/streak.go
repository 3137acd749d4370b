// AngelaMos | 2026
// streak.go

package challenge

import (
	"time"
)

type StreakUpdate struct {
	DailyStreak     int
	BestDailyStreak int
	StreakBroken    bool
	PreviousStreak  int
}

// NextStreak applies one completed day to stats. Dates compare as UTC
// calendar days.
func NextStreak(stats Stats, today time.Time) StreakUpdate {
	today = utcDay(today)
	yesterday := today.AddDate(0, 0, -1)

	next := 1
	broken := false

	if stats.LastDate != nil {
		last := utcDay(*stats.LastDate)
		switch {
		case last.Equal(today):
			next = stats.DailyStreak
		case last.Equal(yesterday):
			next = stats.DailyStreak + 1
		default:
			broken = stats.DailyStreak > 0
		}
	}

	update := StreakUpdate{
		DailyStreak:     next,
		BestDailyStreak: max(stats.BestDailyStreak, next),
		StreakBroken:    broken,
	}
	if broken {
		update.PreviousStreak = stats.DailyStreak
	}

	return update
}

// ScoreAnswers counts positional matches. answers must already be validated
// to the same length as questions.
func ScoreAnswers(questions []Question, answers []string) (int, []bool) {
	score := 0
	correctness := make([]bool, len(questions))

	for i, q := range questions {
		if i < len(answers) && answers[i] == q.Answer {
			correctness[i] = true
			score++
		}
	}

	return score, correctness
}

func XPFor(score, total int) int {
	xp := BaseXP + score*PerCorrectXP
	if total > 0 && score == total {
		xp += PerfectBonus
	}
	return xp
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
