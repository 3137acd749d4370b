// AngelaMos | 2026
// generator.go

package challenge

import (
	"context"

	"github.com/carterperez-dev/studybuddy/internal/llm"
)

// Generator produces the raw text of a day's question set.
type Generator interface {
	Generate(ctx context.Context, date string) (string, error)
}

const systemPrompt = "You generate a daily study challenge with 5 multiple-choice questions. " +
	"Respond with STRICT JSON only (no markdown). JSON schema: { questions: Array<{ question: string, " +
	"options: string[4], answer: string, explanation: string, difficulty: 'easy'|'medium'|'hard', " +
	"topic: string }> }. Mixed difficulty: include 2 easy, 2 medium, 1 hard. Mix topics across common " +
	"school subjects (math, science, english, history, basic programming). Keep questions concise, " +
	"student-friendly, and unambiguous."

type LLMGenerator struct {
	client      llm.Client
	temperature float64
}

func NewLLMGenerator(client llm.Client, temperature float64) *LLMGenerator {
	return &LLMGenerator{client: client, temperature: temperature}
}

func (g *LLMGenerator) Generate(ctx context.Context, date string) (string, error) {
	return g.client.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: "Create today's daily challenge for date " + date + "."},
	}, llm.Options{
		Temperature: g.temperature,
		JSONMode:    true,
		DryRunReply: sampleChallenge,
	})
}

const sampleChallenge = `{
  "questions": [
    {
      "question": "What is 7 x 8?",
      "options": ["54", "56", "58", "64"],
      "answer": "56",
      "explanation": "7 times 8 is 56.",
      "difficulty": "easy",
      "topic": "math"
    },
    {
      "question": "Which planet is known as the Red Planet?",
      "options": ["Venus", "Jupiter", "Mars", "Mercury"],
      "answer": "Mars",
      "explanation": "Iron oxide on its surface gives Mars a red colour.",
      "difficulty": "easy",
      "topic": "science"
    },
    {
      "question": "Which word is a synonym of 'rapid'?",
      "options": ["Slow", "Quick", "Heavy", "Quiet"],
      "answer": "Quick",
      "explanation": "Rapid and quick both mean fast.",
      "difficulty": "medium",
      "topic": "english"
    },
    {
      "question": "In which year did World War II end?",
      "options": ["1939", "1942", "1945", "1950"],
      "answer": "1945",
      "explanation": "The war ended in 1945.",
      "difficulty": "medium",
      "topic": "history"
    },
    {
      "question": "What does len([1, 2, 3]) return in Python?",
      "options": ["2", "3", "4", "An error"],
      "answer": "3",
      "explanation": "len returns the number of elements in the list.",
      "difficulty": "hard",
      "topic": "programming"
    }
  ]
}`
