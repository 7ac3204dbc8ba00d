package domain

// ScoreKind tells how a search backend scored a hit. Backends differ:
// some report a bounded relevance score, some an unbounded distance,
// some nothing at all.
type ScoreKind int

const (
	// ScoreNone means the backend attached no score to the hit.
	ScoreNone ScoreKind = iota
	// ScoreRelevance is a bounded score in [0,1], higher is better.
	ScoreRelevance
	// ScoreDistance is an unbounded distance, lower is better.
	ScoreDistance
)

// Hit is one nearest-neighbor search result with its raw backend score.
type Hit struct {
	Chunk Chunk
	Score float64
	Kind  ScoreKind
}

// Similarity normalizes the raw score into a single comparable value in (0,1]:
// relevance scores pass through unchanged, distances map via 1/(1+d), and a
// missing score counts as maximal confidence so that unscored backends degrade
// gracefully instead of failing every query.
func (h Hit) Similarity() float64 {
	switch h.Kind {
	case ScoreRelevance:
		return h.Score
	case ScoreDistance:
		return 1.0 / (1.0 + h.Score)
	default:
		return 1.0
	}
}
