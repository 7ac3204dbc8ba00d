package domain

// SourceDocument is one unit of extracted source text: a whole text file,
// or a single page of a paginated format such as PDF.
// Immutable once loaded.
type SourceDocument struct {
	Text   string
	Source string // origin file path
	Page   int    // 1-based page number for paginated formats, 0 otherwise
}

// Chunk is the unit of retrieval: a bounded, overlapping segment of a
// SourceDocument. Chunks are produced once per index build and never
// mutated; a rebuild replaces the entire set.
type Chunk struct {
	Text   string
	Source string
	Page   int
}
