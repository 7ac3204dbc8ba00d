package domain

import (
	"math"
	"testing"
)

func TestSimilarity_RelevancePassthrough(t *testing.T) {
	for _, score := range []float64{0, 0.25, 0.5, 0.74, 0.75, 1} {
		h := Hit{Score: score, Kind: ScoreRelevance}
		if got := h.Similarity(); got != score {
			t.Errorf("relevance %v: got %v, want passthrough", score, got)
		}
	}
}

func TestSimilarity_DistanceMapping(t *testing.T) {
	zero := Hit{Score: 0, Kind: ScoreDistance}
	if got := zero.Similarity(); got != 1.0 {
		t.Errorf("distance 0: got %v, want 1.0", got)
	}

	// Strictly decreasing in d.
	prev := zero.Similarity()
	for _, d := range []float64{0.1, 0.5, 1, 2, 10, 100, 1e6} {
		got := Hit{Score: d, Kind: ScoreDistance}.Similarity()
		if got >= prev {
			t.Errorf("distance %v: similarity %v not strictly below %v", d, got, prev)
		}
		if got <= 0 || got > 1 {
			t.Errorf("distance %v: similarity %v outside (0,1]", d, got)
		}
		prev = got
	}

	// Asymptotically approaches 0.
	far := Hit{Score: 1e12, Kind: ScoreDistance}.Similarity()
	if far > 1e-11 {
		t.Errorf("similarity at d=1e12 should approach 0, got %v", far)
	}

	one := Hit{Score: 1, Kind: ScoreDistance}.Similarity()
	if math.Abs(one-0.5) > 1e-12 {
		t.Errorf("distance 1: got %v, want 0.5", one)
	}
}

func TestSimilarity_NoScoreIsMaxConfidence(t *testing.T) {
	h := Hit{Kind: ScoreNone}
	if got := h.Similarity(); got != 1.0 {
		t.Errorf("unscored hit: got %v, want 1.0", got)
	}
}
