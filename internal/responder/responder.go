// Package responder produces automated replies for messages whose recipient is unavailable.
package responder

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/awayrelay/internal/config"
)

// ErrEmptyReply is returned when the backend answered without any text.
var ErrEmptyReply = errors.New("empty reply")

// Responder turns a prompt into reply text. Calls are single-turn; no history is kept.
type Responder interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to Responder.
type Func func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// New builds the backend selected by cfg.Provider.
func New(cfg config.Responder) (Responder, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model)
	case "canned", "":
		return Canned(cfg.CannedReply), nil
	default:
		return nil, fmt.Errorf("unknown responder provider %q", cfg.Provider)
	}
}

// Canned always answers with the same text. Used when no completion backend is configured.
type Canned string

// Generate returns the canned text.
func (c Canned) Generate(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c == "" {
		return "", ErrEmptyReply
	}
	return string(c), nil
}
