// AngelaMos | 2026
// parse_test.go

package challenge

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestParseReplyHandlesFencesAndComments(t *testing.T) {
	raw := "```json\n" +
		"{\n" +
		"  // generated set\n" +
		`  "questions": [` + "\n" +
		`    {"question": "See https://example.com?", "options": ["a","b","c","d"], "answer": "a"} // first` + "\n" +
		"  ]\n" +
		"}\n```"

	items, err := ParseReply(raw)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if got := items[0]["question"]; got != "See https://example.com?" {
		t.Fatalf("question = %q, comment stripping ate the string", got)
	}
}

func TestParseReplyWithSurroundingProse(t *testing.T) {
	raw := `Sure! Here is the challenge: {"questions": [{"question": "q"}]} Good luck.`

	items, err := ParseReply(raw)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestParseReplyRejectsGarbage(t *testing.T) {
	_, err := ParseReply("no json here")
	if !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("err = %v, want ErrMalformedReply", err)
	}
}

func TestParseReplySkipsNonObjectItems(t *testing.T) {
	items, err := ParseReply(`{"questions": ["oops", {"question": "ok"}, 3]}`)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestNormalize(t *testing.T) {
	c := Normalize(map[string]any{
		"question":   "  What?  ",
		"options":    []any{" a ", "", "b", 3.0, "d", "e"},
		"answer":     " b ",
		"difficulty": "impossible",
		"topic":      "math",
	})

	if c.Question != "What?" || c.Answer != "b" {
		t.Fatalf("trim failed: %+v", c)
	}
	if strings.Join(c.Options, ",") != "a,b,3,d" {
		t.Fatalf("options = %v", c.Options)
	}
	if c.Difficulty != DifficultyMedium {
		t.Fatalf("difficulty = %q, want medium", c.Difficulty)
	}
	if c.Topic == nil || *c.Topic != "math" || c.Explanation != nil {
		t.Fatalf("optional fields = %v, %v", c.Topic, c.Explanation)
	}
}

func validItem(q string) map[string]any {
	return map[string]any{
		"question": q,
		"options":  []any{"a", "b", "c", "d"},
		"answer":   "a",
	}
}

func TestSelectQuestions(t *testing.T) {
	v := validator.New(validator.WithRequiredStructEnabled())

	items := []map[string]any{
		validItem("q1"),
		{"question": "", "options": []any{"a", "b", "c", "d"}, "answer": "a"},
		{"question": "three options", "options": []any{"a", "b", "c"}, "answer": "a"},
		{"question": "answer missing", "options": []any{"a", "b", "c", "d"}, "answer": "z"},
		{"question": "answer is fifth", "options": []any{"a", "b", "c", "d", "e"}, "answer": "e"},
		validItem("q2"),
		validItem("q3"),
		validItem("q4"),
		validItem("q5"),
		validItem("q6"),
	}

	got := SelectQuestions(v, items)
	if len(got) != QuestionCount {
		t.Fatalf("selected %d, want %d", len(got), QuestionCount)
	}
	for i, q := range got {
		if q.Idx != i {
			t.Fatalf("question %d has idx %d", i, q.Idx)
		}
	}
	if got[0].Question != "q1" || got[4].Question != "q5" {
		t.Fatalf("kept %q..%q, want q1..q5", got[0].Question, got[4].Question)
	}
}

func TestSampleChallengeIsValid(t *testing.T) {
	items, err := ParseReply(sampleChallenge)
	if err != nil {
		t.Fatalf("ParseReply: %v", err)
	}

	got := SelectQuestions(validator.New(validator.WithRequiredStructEnabled()), items)
	if len(got) != QuestionCount {
		t.Fatalf("sample yields %d valid questions", len(got))
	}
}
