// Package provider abstracts the chat completion backend used for answer
// generation.
package provider

import (
	"context"

	"github.com/substratehq/docbot/internal/models"
)

// Params control a single generation request.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Provider generates an answer from a system prompt and a conversation.
// The final turn is the prompt the model should respond to.
type Provider interface {
	Generate(ctx context.Context, systemPrompt string, turns []models.Turn, params Params) (string, error)
}
