package port

import "context"

// Generator represents a language model for answer generation.
type Generator interface {
	// Generate produces a completion for the assembled prompt. Streaming
	// implementations concatenate their chunks before returning.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
