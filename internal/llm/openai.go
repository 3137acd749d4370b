// AngelaMos | 2026
// openai.go

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/studybuddy/internal/config"
	"github.com/carterperez-dev/studybuddy/internal/core"
)

const maxResponseBytes = 1 << 20

// OpenAI talks to any OpenAI-compatible chat completions endpoint. The
// default base URL points at Groq.
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	audioModel string
	maxRetries int
	dryRun     bool
	http       *http.Client
	logger     *slog.Logger
}

func NewOpenAI(cfg config.GeneratorConfig, logger *slog.Logger) *OpenAI {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &OpenAI{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		audioModel: cfg.AudioModel,
		maxRetries: max(cfg.MaxRetries, 0),
		dryRun:     cfg.DryRun,
		http:       &http.Client{Timeout: timeout},
		logger:     logger.With("provider", "openai-compatible", "model", cfg.Model),
	}
}

func (c *OpenAI) Name() string { return "openai-compatible:" + c.model }

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm http %d: %s", e.status, e.body)
}

func (c *OpenAI) Complete(
	ctx context.Context,
	messages []Message,
	opts Options,
) (string, error) {
	if c.dryRun {
		c.logger.InfoContext(ctx, "llm dry run", "messages", len(messages))
		return opts.DryRunReply, nil
	}

	if c.apiKey == "" {
		return "", ErrNoCredential
	}

	ctx, span := core.StartSpan(ctx, "llm.complete",
		attribute.String("llm.model", c.model),
		attribute.Int("llm.messages", len(messages)),
	)

	body := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		core.EndSpan(span, err)
		return "", fmt.Errorf("encode llm request: %w", err)
	}

	var text string
	err = c.retry(ctx, func() error {
		raw, err := c.post(ctx, "/chat/completions", "application/json", payload)
		if err != nil {
			return err
		}
		text, err = decodeChat(ctx, c.logger, raw)
		return err
	})
	core.EndSpan(span, err)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}

	return text, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe sends one audio file to the transcriptions endpoint and returns
// the recognised text. A blank transcript is ErrEmptyReply.
func (c *OpenAI) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if c.dryRun {
		c.logger.InfoContext(ctx, "llm dry run transcription", "bytes", len(audio.Data))
		return "This is a dry-run transcript from AI Study Buddy.", nil
	}

	if c.apiKey == "" {
		return "", ErrNoCredential
	}

	ctx, span := core.StartSpan(ctx, "llm.transcribe",
		attribute.String("llm.model", c.audioModel),
		attribute.Int("audio.bytes", len(audio.Data)),
	)

	payload, contentType, err := transcriptionForm(c.audioModel, audio)
	if err != nil {
		core.EndSpan(span, err)
		return "", err
	}

	var text string
	err = c.retry(ctx, func() error {
		raw, err := c.post(ctx, "/audio/transcriptions", contentType, payload)
		if err != nil {
			return err
		}

		var parsed transcriptionResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode transcription response: %w", err))
		}
		text = strings.TrimSpace(parsed.Text)
		return nil
	})
	core.EndSpan(span, err)
	if err != nil {
		return "", err
	}

	if text == "" {
		return "", ErrEmptyReply
	}

	return text, nil
}

func transcriptionForm(model string, audio Audio) ([]byte, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	name := audio.Filename
	if name == "" {
		name = "audio.webm"
	}

	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("build transcription form: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("build transcription form: %w", err)
	}
	if err := form.WriteField("model", model); err != nil {
		return nil, "", fmt.Errorf("build transcription form: %w", err)
	}
	if err := form.WriteField("response_format", "json"); err != nil {
		return nil, "", fmt.Errorf("build transcription form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("build transcription form: %w", err)
	}

	return buf.Bytes(), form.FormDataContentType(), nil
}

func (c *OpenAI) retry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		return op()
	}, policy, func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "llm call failed, retrying",
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
}

// post performs one request and returns the raw body of a 2xx response.
// Only throttling and server errors are retried.
func (c *OpenAI) post(
	ctx context.Context,
	path, contentType string,
	payload []byte,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build llm request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body is fully read below

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &statusError{status: resp.StatusCode, body: truncate(string(raw), 512)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	c.logger.DebugContext(ctx, "llm call complete",
		"path", path,
		"latency_ms", time.Since(started).Milliseconds(),
	)

	return raw, nil
}

func decodeChat(ctx context.Context, logger *slog.Logger, raw []byte) (string, error) {
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode llm response: %w", err))
	}

	if len(parsed.Choices) == 0 {
		return "", backoff.Permanent(ErrEmptyReply)
	}

	logger.DebugContext(ctx, "llm usage", "usage", parsed.Usage)

	return parsed.Choices[0].Message.Content, nil
}

// IsRetryable reports whether err came from a throttled or failing upstream.
func IsRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= 500
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var (
	_ Client      = (*OpenAI)(nil)
	_ Transcriber = (*OpenAI)(nil)
)
