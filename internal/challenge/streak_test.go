// AngelaMos | 2026
// streak_test.go

package challenge

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func TestNextStreak(t *testing.T) {
	tests := []struct {
		name  string
		stats Stats
		today string
		want  StreakUpdate
	}{
		{
			name:  "first ever",
			stats: Stats{},
			today: "2024-01-01",
			want:  StreakUpdate{DailyStreak: 1, BestDailyStreak: 1},
		},
		{
			name:  "consecutive day",
			stats: Stats{DailyStreak: 1, BestDailyStreak: 1, LastDate: dayPtr("2024-01-01")},
			today: "2024-01-02",
			want:  StreakUpdate{DailyStreak: 2, BestDailyStreak: 2},
		},
		{
			name:  "gap resets and reports",
			stats: Stats{DailyStreak: 2, BestDailyStreak: 2, LastDate: dayPtr("2024-01-02")},
			today: "2024-01-04",
			want:  StreakUpdate{DailyStreak: 1, BestDailyStreak: 2, StreakBroken: true, PreviousStreak: 2},
		},
		{
			name:  "same day keeps streak",
			stats: Stats{DailyStreak: 3, BestDailyStreak: 5, LastDate: dayPtr("2024-01-04")},
			today: "2024-01-04",
			want:  StreakUpdate{DailyStreak: 3, BestDailyStreak: 5},
		},
		{
			name:  "gap with zero streak is not broken",
			stats: Stats{DailyStreak: 0, BestDailyStreak: 4, LastDate: dayPtr("2023-12-01")},
			today: "2024-01-04",
			want:  StreakUpdate{DailyStreak: 1, BestDailyStreak: 4},
		},
		{
			name:  "month boundary",
			stats: Stats{DailyStreak: 9, BestDailyStreak: 9, LastDate: dayPtr("2024-02-29")},
			today: "2024-03-01",
			want:  StreakUpdate{DailyStreak: 10, BestDailyStreak: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextStreak(tt.stats, day(tt.today))
			if got != tt.want {
				t.Fatalf("NextStreak = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNextStreakUsesUTCDates(t *testing.T) {
	tz := time.FixedZone("UTC-8", -8*60*60)
	// 2024-01-01 23:30 in UTC-8 is already 2024-01-02 in UTC.
	local := time.Date(2024, 1, 1, 23, 30, 0, 0, tz)

	got := NextStreak(Stats{DailyStreak: 1, BestDailyStreak: 1, LastDate: dayPtr("2024-01-01")}, local)
	if got.DailyStreak != 2 {
		t.Fatalf("streak = %d, want 2", got.DailyStreak)
	}
}

func TestXPFor(t *testing.T) {
	tests := []struct {
		score, total, want int
	}{
		{0, 5, 10},
		{3, 5, 16},
		{4, 5, 18},
		{5, 5, 25},
	}

	for _, tt := range tests {
		if got := XPFor(tt.score, tt.total); got != tt.want {
			t.Errorf("XPFor(%d, %d) = %d, want %d", tt.score, tt.total, got, tt.want)
		}
	}
}

func TestScoreAnswers(t *testing.T) {
	questions := []Question{{Answer: "a"}, {Answer: "b"}, {Answer: "c"}}

	score, correctness := ScoreAnswers(questions, []string{"a", "x", "c"})
	if score != 2 {
		t.Fatalf("score = %d, want 2", score)
	}
	if !correctness[0] || correctness[1] || !correctness[2] {
		t.Fatalf("correctness = %v", correctness)
	}
}
