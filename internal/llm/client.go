// AngelaMos | 2026
// client.go

package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrNoCredential = errors.New("llm credential not configured")
	ErrEmptyReply   = errors.New("llm returned an empty reply")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Options struct {
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a bare JSON object where supported.
	JSONMode bool
	// DryRunReply is what a dry-run client answers instead of calling out.
	DryRunReply string
}

// Client is a chat-completion backend.
type Client interface {
	Name() string
	Complete(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Audio is one uploaded recording.
type Audio struct {
	Filename string
	Data     []byte
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}
