package provider

import (
	"context"

	"github.com/substratehq/docbot/internal/models"
)

// StaticProvider returns a fixed reply. Used when no generation backend is
// configured and in tests.
type StaticProvider struct {
	Reply string
	// Err, when set, is returned instead of Reply.
	Err error

	// LastSystemPrompt and LastTurns record the most recent call.
	LastSystemPrompt string
	LastTurns        []models.Turn
	LastParams       Params
}

func (p *StaticProvider) Generate(_ context.Context, systemPrompt string, turns []models.Turn, params Params) (string, error) {
	p.LastSystemPrompt = systemPrompt
	p.LastTurns = turns
	p.LastParams = params
	if p.Err != nil {
		return "", p.Err
	}
	return p.Reply, nil
}
