// Package chunker splits source documents into bounded, overlapping text
// segments by recursively trying a prioritized separator list, coarsest first.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/annai-dev/annai/internal/domain"
)

// DefaultSeparators, coarsest to finest: paragraph break, line break,
// sentence-ending punctuation (Japanese and Latin), clause punctuation,
// whitespace. The trailing empty string stands for the hard character cut.
var DefaultSeparators = []string{"\n\n", "\n", "。", ". ", "、", " ", ""}

// Splitter produces chunks of at most chunkSize characters, with adjacent
// chunks overlapping by approximately chunkOverlap characters. Sizes are
// measured in runes, not bytes, so multibyte text is cut on character
// boundaries.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// New creates a Splitter. chunkOverlap must be smaller than chunkSize.
func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size), got %d", chunkOverlap)
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}, nil
}

// Split chunks every document in order, carrying provenance through.
func (s *Splitter) Split(docs []domain.SourceDocument) []domain.Chunk {
	var chunks []domain.Chunk
	for _, doc := range docs {
		for _, text := range s.SplitText(doc.Text) {
			chunks = append(chunks, domain.Chunk{
				Text:   text,
				Source: doc.Source,
				Page:   doc.Page,
			})
		}
	}
	return chunks
}

// SplitText splits a single text into chunks of at most chunkSize runes.
func (s *Splitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.separators)
}

// split picks the coarsest separator actually present in text, cuts on it,
// and recurses with the finer separators on any piece still over chunkSize.
func (s *Splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, cand := range separators {
		if cand == "" || strings.Contains(text, cand) {
			sep = cand
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		// No separator yields small-enough pieces: hard character cut.
		return s.hardCut(text)
	}

	pieces := splitAfterNonEmpty(text, sep)

	var out []string
	var small []string
	for _, p := range pieces {
		if utf8.RuneCountInString(p) <= s.chunkSize {
			small = append(small, p)
			continue
		}
		if len(small) > 0 {
			out = append(out, s.merge(small)...)
			small = nil
		}
		out = append(out, s.split(p, rest)...)
	}
	if len(small) > 0 {
		out = append(out, s.merge(small)...)
	}
	return out
}

// merge greedily packs adjacent pieces into chunks of at most chunkSize
// runes, sliding pieces from the window front so that consecutive chunks
// share at most chunkOverlap runes. Overlap boundaries shift to respect
// piece boundaries, so the exact overlap is approximate.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, p := range pieces {
		plen := utf8.RuneCountInString(p)
		if total+plen > s.chunkSize && len(window) > 0 {
			if c := joinTrim(window); c != "" {
				chunks = append(chunks, c)
			}
			for len(window) > 0 && (total > s.chunkOverlap || total+plen > s.chunkSize) {
				total -= utf8.RuneCountInString(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += plen
	}

	if c := joinTrim(window); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

// hardCut slices text into fixed windows of chunkSize runes, stepping by
// chunkSize-chunkOverlap.
func (s *Splitter) hardCut(text string) []string {
	runes := []rune(text)
	step := s.chunkSize - s.chunkOverlap

	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			out = append(out, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}

// splitAfterNonEmpty splits text keeping the separator attached to the
// preceding piece, dropping empty pieces.
func splitAfterNonEmpty(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinTrim(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}
