package responder

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama answers through a local model served by Ollama.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama builds a client for baseURL (default http://localhost:11434).
func NewOllama(baseURL, model string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	if model == "" {
		model = "llama3"
	}
	return &Ollama{client: api.NewClient(base, http.DefaultClient), model: model}, nil
}

// Generate runs a non-streaming completion.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	var reply strings.Builder

	err := o.client.Generate(ctx, &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
	}, func(resp api.GenerateResponse) error {
		reply.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	text := strings.TrimSpace(reply.String())
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
