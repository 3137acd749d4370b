// AngelaMos | 2026
// service.go

package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/carterperez-dev/studybuddy/internal/core"
	"github.com/carterperez-dev/studybuddy/internal/credit"
	"github.com/carterperez-dev/studybuddy/internal/llm"
)

const (
	maxContextRunes = 7000
	maxHistory      = 20

	chatTemperature      = 0.5
	summarizeTemperature = 0.3
)

const chatSystemPrompt = "You are AI Study Buddy, a friendly study assistant. Answer clearly and " +
	"concisely, focusing on helping the student understand and remember concepts. Keep answers " +
	"focused and avoid very long essays."

const contextPreamble = "\n\nHere is syllabus or study context from the student's latest summary. " +
	"Use it only when it is relevant to the question, and do not repeat it verbatim.\n"

const summarizeSystemPrompt = "Summarize clearly for a student."

type Service struct {
	client     llm.Client
	audio      llm.Transcriber
	ledger     *credit.Ledger
	cost       int
	configured bool
	logger     *slog.Logger
}

func NewService(client llm.Client, ledger *credit.Ledger, cost int, configured bool) *Service {
	return &Service{
		client:     client,
		ledger:     ledger,
		cost:       cost,
		configured: configured,
		logger:     slog.Default().With("component", "assist"),
	}
}

// WithTranscriber enables Transcribe. Without one, audio calls report the
// assistant as not configured.
func (s *Service) WithTranscriber(t llm.Transcriber) *Service {
	s.audio = t
	return s
}

// Chat answers the conversation's last turn. A free account pays cost
// credits, refunded when no usable reply comes back.
func (s *Service) Chat(ctx context.Context, acct credit.Account, req ChatRequest) (string, error) {
	if !s.configured {
		return "", notConfigured()
	}

	system := chatSystemPrompt
	if studyContext := compactContext(req.Context); studyContext != "" {
		system += contextPreamble + studyContext
	}

	history := req.Messages
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range history {
		messages = append(messages, llm.Message{Role: clientRole(m.Role), Content: m.Content})
	}

	return s.complete(ctx, acct, "chat", messages, chatTemperature)
}

func (s *Service) Summarize(ctx context.Context, acct credit.Account, text string) (string, error) {
	if !s.configured {
		return "", notConfigured()
	}

	return s.complete(ctx, acct, "summarize", []llm.Message{
		{Role: llm.RoleSystem, Content: summarizeSystemPrompt},
		{Role: llm.RoleUser, Content: text},
	}, summarizeTemperature)
}

// Transcribe converts one recording to text under the same metering as the
// chat routes. A blank transcript is refunded.
func (s *Service) Transcribe(ctx context.Context, acct credit.Account, audio llm.Audio) (string, error) {
	if !s.configured || s.audio == nil {
		return "", notConfigured()
	}

	text, err := credit.Metered(ctx, s.ledger, acct, s.cost,
		func(ctx context.Context) (string, error) {
			out, err := s.audio.Transcribe(ctx, audio)
			return strings.TrimSpace(out), err
		},
		func(out string) bool { return out == "" },
	)
	if errors.Is(err, credit.ErrEmptyResult) || errors.Is(err, llm.ErrEmptyReply) {
		return "", core.GenerationFailedError("Could not transcribe audio file")
	}

	return text, s.meterError(ctx, "transcribe", acct, err)
}

func (s *Service) complete(
	ctx context.Context,
	acct credit.Account,
	action string,
	messages []llm.Message,
	temperature float64,
) (string, error) {
	reply, err := credit.Metered(ctx, s.ledger, acct, s.cost,
		func(ctx context.Context) (string, error) {
			out, err := s.client.Complete(ctx, messages, llm.Options{
				Temperature: temperature,
				DryRunReply: "This is a dry-run reply from AI Study Buddy.",
			})
			return strings.TrimSpace(out), err
		},
		func(out string) bool { return out == "" },
	)
	if err != nil {
		return "", s.meterError(ctx, action, acct, err)
	}

	return reply, nil
}

func (s *Service) meterError(ctx context.Context, action string, acct credit.Account, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, llm.ErrNoCredential):
		return notConfigured()
	case errors.Is(err, core.ErrInsufficientCredits):
		return err
	case errors.Is(err, core.ErrGenerationFailed):
		return err
	default:
		s.logger.WarnContext(ctx, "assistant call failed",
			"action", action,
			"user_id", acct.UserID,
			"retryable", llm.IsRetryable(err),
			"error", err,
		)
		return fmt.Errorf("%s: %w: %w", action, core.ErrGenerationFailed, err)
	}
}

// clientRole keeps callers from injecting system instructions.
func clientRole(role string) string {
	if role == llm.RoleAssistant {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}

func compactContext(raw string) string {
	compact := strings.Join(strings.Fields(raw), " ")
	runes := []rune(compact)
	if len(runes) > maxContextRunes {
		return string(runes[:maxContextRunes])
	}
	return compact
}

func notConfigured() error {
	return core.NotConfiguredError(
		"AI assistant is not configured",
		"set GROQ_API_KEY or enable LLM_DRY_RUN",
	)
}
