package model

import (
	"context"
	"log/slog"
	"os"
)

// Embedder turns text into a fixed-length vector. The same embedder
// must serve both indexed chunks and queries, otherwise similarity
// scores are meaningless.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds the embedding client from the environment.
func NewEmbedder() Embedder {
	url := os.Getenv("OLLAMA_EMBEDDING_URL")
	mdl := os.Getenv("OLLAMA_EMBEDDING_MODEL")
	slog.Default().Info("using ollama embeddings", "model", mdl)
	return NewOllamaEmbedder(url, mdl)
}
