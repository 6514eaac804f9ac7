// Package embedder wraps external embedding providers behind a narrow
// interface. Providers report approximate token usage so the dispatch
// layer can settle rate-limiter accounting with actual costs.
package embedder

import "context"

// Usage is the token cost a provider reports for one Embed call.
type Usage struct {
	PromptTokens int
	TotalTokens  int
}

// Embedder generates text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts and reports the
	// token cost of the call.
	Embed(ctx context.Context, texts []string) ([][]float32, Usage, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}
