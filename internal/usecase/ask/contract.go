package ask

import (
	"context"

	"github.com/annai-dev/annai/internal/domain"
)

// Searcher runs nearest-neighbor search over the indexed corpus.
type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]domain.Hit, error)
	Size() int
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Completer generates an answer from a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
