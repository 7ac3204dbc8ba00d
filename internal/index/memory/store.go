// Package memory implements nearest-neighbor search as a brute-force scan
// over an artifact loaded into process memory. Suitable for the corpus sizes
// this service targets; the redis backend exists for anything larger.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/annai-dev/annai/internal/domain"
	"github.com/annai-dev/annai/internal/index"
)

// Metric selects how the store scores hits.
type Metric string

const (
	// MetricL2 reports euclidean distance (lower is better), the hit carries
	// ScoreDistance.
	MetricL2 Metric = "l2"
	// MetricCosine reports a relevance score in [0,1] derived from cosine
	// similarity, the hit carries ScoreRelevance.
	MetricCosine Metric = "cosine"
)

// Store is an immutable in-memory vector index.
type Store struct {
	chunks  []domain.Chunk
	vectors [][]float32
	dim     int
	metric  Metric
}

var _ index.Searcher = (*Store)(nil)

// NewStore builds a Store from a validated artifact.
func NewStore(a *index.Artifact, metric Metric) (*Store, error) {
	switch metric {
	case MetricL2, MetricCosine:
	default:
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	chunks := make([]domain.Chunk, len(a.Chunks))
	for i := range a.Chunks {
		chunks[i] = a.Chunk(i)
	}

	return &Store{
		chunks:  chunks,
		vectors: a.Vectors,
		dim:     a.Dimensions,
		metric:  metric,
	}, nil
}

// Search scans all vectors and returns the k nearest, best first.
func (s *Store) Search(_ context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if len(vector) != s.dim {
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d: %w",
			len(vector), s.dim, domain.ErrDimMismatch)
	}
	if k <= 0 || len(s.vectors) == 0 {
		return nil, nil
	}

	hits := make([]domain.Hit, len(s.vectors))
	for i, v := range s.vectors {
		hits[i] = domain.Hit{Chunk: s.chunks[i]}
		switch s.metric {
		case MetricCosine:
			hits[i].Score = relevance(cosine(v, vector))
			hits[i].Kind = domain.ScoreRelevance
		default:
			hits[i].Score = euclidean(v, vector)
			hits[i].Kind = domain.ScoreDistance
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if s.metric == MetricCosine {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Score < hits[j].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Size returns the number of indexed chunks.
func (s *Store) Size() int { return len(s.chunks) }

// Dimensions returns the vector dimensionality.
func (s *Store) Dimensions() int { return s.dim }

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// relevance maps cosine similarity in [-1,1] to [0,1].
func relevance(cos float64) float64 {
	r := (1 + cos) / 2
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}
