// AngelaMos | 2026
// parse.go

package challenge

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrMalformedReply = errors.New("generator reply is not a challenge document")

// Candidate is one generated question after normalization.
type Candidate struct {
	Question    string   `validate:"required"`
	Options     []string `validate:"len=4,dive,required"`
	Answer      string   `validate:"required"`
	Explanation *string
	Difficulty  string `validate:"oneof=easy medium hard"`
	Topic       *string
}

// ParseReply extracts the question objects from a generator reply. It copes
// with markdown fences, line comments and prose around the JSON body.
func ParseReply(raw string) ([]map[string]any, error) {
	cleaned := strings.TrimSpace(raw)

	if strings.HasPrefix(cleaned, "```") {
		cleaned = outermostObject(cleaned)
	}

	cleaned = outermostObject(stripLineComments(cleaned))

	var doc struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}

	items := make([]map[string]any, 0, len(doc.Questions))
	for _, rawItem := range doc.Questions {
		var item map[string]any
		if err := json.Unmarshal(rawItem, &item); err != nil {
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

func outermostObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// stripLineComments removes // comments that start outside string literals.
func stripLineComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}

		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		}

		b.WriteByte(c)
	}

	return b.String()
}

// Normalize turns a raw question object into a Candidate: fields are trimmed,
// blank options dropped, the first four options kept, and an unknown
// difficulty becomes medium.
func Normalize(item map[string]any) Candidate {
	c := Candidate{
		Question:   trimmedString(item["question"]),
		Answer:     trimmedString(item["answer"]),
		Difficulty: DifficultyMedium,
	}

	if opts, ok := item["options"].([]any); ok {
		for _, o := range opts {
			s := strings.TrimSpace(stringify(o))
			if s == "" {
				continue
			}
			c.Options = append(c.Options, s)
			if len(c.Options) == OptionCount {
				break
			}
		}
	}

	switch d, _ := item["difficulty"].(string); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		c.Difficulty = d
	}

	if s, ok := item["explanation"].(string); ok {
		c.Explanation = &s
	}
	if s, ok := item["topic"].(string); ok {
		c.Topic = &s
	}

	return c
}

// SelectQuestions validates candidates and keeps the first QuestionCount that
// pass, indexed from zero in the order they were kept.
func SelectQuestions(v *validator.Validate, items []map[string]any) []Question {
	out := make([]Question, 0, QuestionCount)

	for _, item := range items {
		c := Normalize(item)
		if err := v.Struct(c); err != nil {
			continue
		}
		if !slices.Contains(c.Options, c.Answer) {
			continue
		}

		out = append(out, Question{
			Idx:         len(out),
			Question:    c.Question,
			Options:     StringArray(c.Options),
			Answer:      c.Answer,
			Explanation: c.Explanation,
			Difficulty:  c.Difficulty,
			Topic:       c.Topic,
		})
		if len(out) == QuestionCount {
			break
		}
	}

	return out
}

func trimmedString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
