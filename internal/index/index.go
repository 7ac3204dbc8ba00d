package index

import (
	"context"

	"github.com/annai-dev/annai/internal/domain"
)

// Searcher is the nearest-neighbor search contract the serving process
// consumes. Implementations are immutable after construction and safe for
// concurrent use.
type Searcher interface {
	// Search returns the k hits nearest to vector, best first.
	Search(ctx context.Context, vector []float32, k int) ([]domain.Hit, error)
	// Size returns the number of indexed chunks.
	Size() int
	// Dimensions returns the vector dimensionality.
	Dimensions() int
}
