package chunker

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/annai-dev/annai/internal/domain"
)

func mustSplitter(t *testing.T, size, overlap int) *Splitter {
	t.Helper()
	s, err := New(size, overlap)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", size, overlap, err)
	}
	return s
}

func TestNew_RejectsInvalidBounds(t *testing.T) {
	tests := []struct {
		size, overlap int
	}{
		{0, 0},
		{-1, 0},
		{100, 100},
		{100, 150},
		{100, -1},
	}
	for _, tt := range tests {
		if _, err := New(tt.size, tt.overlap); err == nil {
			t.Errorf("New(%d, %d): expected error", tt.size, tt.overlap)
		}
	}
}

func TestSplitText_EveryChunkWithinSize(t *testing.T) {
	long := strings.Repeat("word boundary test text with several tokens. ", 40)
	japanese := strings.Repeat("これは日本語の文章です。次の文に続きます。", 30)
	noSeparators := strings.Repeat("x", 500)

	tests := []struct {
		name          string
		text          string
		size, overlap int
	}{
		{"latin text", long, 100, 20},
		{"japanese text", japanese, 80, 20},
		{"no separators", noSeparators, 64, 16},
		{"tiny chunks", long, 10, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustSplitter(t, tt.size, tt.overlap)
			chunks := s.SplitText(tt.text)
			if len(chunks) == 0 {
				t.Fatal("expected chunks, got none")
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n > tt.size {
					t.Errorf("chunk %d has %d runes, exceeds %d: %q", i, n, tt.size, c)
				}
				if strings.TrimSpace(c) == "" {
					t.Errorf("chunk %d is blank", i)
				}
			}
		})
	}
}

func TestSplitText_ConsecutiveChunksOverlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "tok%02d ", i)
	}

	s := mustSplitter(t, 30, 12)
	chunks := s.SplitText(b.String())
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	for i := 0; i < len(chunks)-1; i++ {
		shared := suffixPrefixOverlap(chunks[i], chunks[i+1])
		if shared == 0 {
			t.Errorf("chunks %d and %d share no overlap:\n%q\n%q", i, i+1, chunks[i], chunks[i+1])
		}
		if shared > 12 {
			t.Errorf("chunks %d and %d overlap by %d runes, exceeds chunk_overlap", i, i+1, shared)
		}
	}
}

func TestSplitText_PrefersCoarseSeparators(t *testing.T) {
	text := "First paragraph stays whole.\n\nSecond paragraph also stays whole."

	s := mustSplitter(t, 40, 10)
	chunks := s.SplitText(text)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 paragraph-aligned chunks, got %d: %v", len(chunks), chunks)
	}
	if strings.Contains(chunks[0], "Second") || strings.Contains(chunks[1], "First") {
		t.Errorf("chunks cross the paragraph boundary: %v", chunks)
	}
}

func TestSplitText_JapaneseSentenceBoundary(t *testing.T) {
	text := "これは最初の文です。これは二番目の文です。これは三番目の文です。"

	s := mustSplitter(t, 12, 0)
	chunks := s.SplitText(text)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 sentence-aligned chunks, got %d: %v", len(chunks), chunks)
	}
	for i, c := range chunks {
		if !strings.HasSuffix(c, "。") {
			t.Errorf("chunk %d does not end at a sentence boundary: %q", i, c)
		}
	}
}

func TestSplitText_HardCutFallback(t *testing.T) {
	text := strings.Repeat("a", 100)

	s := mustSplitter(t, 10, 3)
	chunks := s.SplitText(text)

	// Step is size-overlap = 7; windows of 10 over 100 runes.
	if len(chunks) < 13 {
		t.Fatalf("expected at least 13 hard-cut chunks, got %d", len(chunks))
	}
	for i := 0; i < len(chunks)-1; i++ {
		if utf8.RuneCountInString(chunks[i]) != 10 {
			t.Errorf("hard-cut chunk %d should be exactly 10 runes, got %d", i, utf8.RuneCountInString(chunks[i]))
		}
	}
}

func TestSplitText_EmptyAndBlank(t *testing.T) {
	s := mustSplitter(t, 100, 10)
	for _, text := range []string{"", "   ", "\n\n\n", "\t \n"} {
		if got := s.SplitText(text); got != nil {
			t.Errorf("SplitText(%q) = %v, want nil", text, got)
		}
	}
}

func TestSplitText_Deterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta.\n\nepsilon zeta eta theta. ", 25)
	s := mustSplitter(t, 64, 16)

	first := s.SplitText(text)
	second := s.SplitText(text)
	if !reflect.DeepEqual(first, second) {
		t.Error("identical input produced different chunk boundaries")
	}
}

func TestSplit_CarriesProvenance(t *testing.T) {
	docs := []domain.SourceDocument{
		{Text: "short text", Source: "a.txt"},
		{Text: "", Source: "empty.txt"},
		{Text: "page content here", Source: "b.pdf", Page: 3},
	}

	s := mustSplitter(t, 100, 10)
	chunks := s.Split(docs)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Source != "a.txt" || chunks[0].Page != 0 {
		t.Errorf("chunk 0 provenance: %+v", chunks[0])
	}
	if chunks[1].Source != "b.pdf" || chunks[1].Page != 3 {
		t.Errorf("chunk 1 provenance: %+v", chunks[1])
	}
}

// suffixPrefixOverlap returns the length in runes of the longest suffix of a
// that is also a prefix of b.
func suffixPrefixOverlap(a, b string) int {
	ar, br := []rune(a), []rune(b)
	maxLen := len(ar)
	if len(br) < maxLen {
		maxLen = len(br)
	}
	for n := maxLen; n > 0; n-- {
		if string(ar[len(ar)-n:]) == string(br[:n]) {
			return n
		}
	}
	return 0
}
