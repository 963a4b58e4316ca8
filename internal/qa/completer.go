package qa

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GenkitCompleter implements Completer on a Genkit model, addressed by its
// fully qualified name (e.g. "openai/gpt-4o-mini").
type GenkitCompleter struct {
	g           *genkit.Genkit
	modelName   string
	temperature float64
}

// NewGenkitCompleter creates a Completer for the named model.
func NewGenkitCompleter(g *genkit.Genkit, modelName string, temperature float64) *GenkitCompleter {
	return &GenkitCompleter{
		g:           g,
		modelName:   modelName,
		temperature: temperature,
	}
}

// Complete sends one prompt to the model and returns its text response.
func (c *GenkitCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: c.temperature}),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return resp.Text(), nil
}
