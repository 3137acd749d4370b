// AngelaMos | 2026
// entity.go

package challenge

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	QuestionCount = 5
	OptionCount   = 4

	BaseXP       = 10
	PerCorrectXP = 2
	PerfectBonus = 5

	DateLayout = "2006-01-02"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

type Challenge struct {
	ID        string    `db:"id"`
	Date      time.Time `db:"challenge_date"`
	CreatedAt time.Time `db:"created_at"`
}

func (c *Challenge) DateString() string {
	return c.Date.UTC().Format(DateLayout)
}

type Question struct {
	ChallengeID string      `db:"challenge_id"`
	Idx         int         `db:"idx"`
	Question    string      `db:"question"`
	Options     StringArray `db:"options"`
	Answer      string      `db:"answer"`
	Explanation *string     `db:"explanation"`
	Difficulty  string      `db:"difficulty"`
	Topic       *string     `db:"topic"`
}

type Attempt struct {
	ID             string      `db:"id"`
	ChallengeID    string      `db:"challenge_id"`
	UserID         string      `db:"user_id"`
	Answers        StringArray `db:"answers"`
	Score          int         `db:"score"`
	TotalQuestions int         `db:"total_questions"`
	XPEarned       int         `db:"xp_earned"`
	CompletedAt    time.Time   `db:"completed_at"`
}

// Stats is the gamification slice of a user row.
type Stats struct {
	XP              int        `db:"xp"`
	DailyStreak     int        `db:"daily_streak"`
	BestDailyStreak int        `db:"best_daily_streak"`
	LastDate        *time.Time `db:"last_daily_challenge_date"`
}

type UserScore struct {
	UserID          string `db:"id"`
	XP              int    `db:"xp"`
	BestDailyStreak int    `db:"best_daily_streak"`
}

// StringArray is a JSONB array of strings. Non-string elements are
// stringified on read.
type StringArray []string

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *StringArray) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan string array: unsupported type %T", src)
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("scan string array: %w", err)
	}

	out := make(StringArray, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
			continue
		}
		out = append(out, fmt.Sprint(item))
	}
	*a = out
	return nil
}
