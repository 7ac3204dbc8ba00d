package ask

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/annai-dev/annai/internal/domain"
	"github.com/annai-dev/annai/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterServiceMetrics()
	m.Run()
}

// --- Mocks ---

type mockSearcher struct {
	hits   []domain.Hit
	err    error
	size   int
	called bool
	lastK  int
}

func (m *mockSearcher) Search(_ context.Context, _ []float32, k int) ([]domain.Hit, error) {
	m.called = true
	m.lastK = k
	return m.hits, m.err
}

func (m *mockSearcher) Size() int { return m.size }

type mockEmbedder struct {
	vec    []float32
	err    error
	called bool
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.called = true
	return domain.EmbeddingResult{Embedding: m.vec}, m.err
}

type mockCompleter struct {
	answer     string
	err        error
	called     bool
	lastSystem string
	lastUser   string
}

func (m *mockCompleter) Complete(_ context.Context, system, user string) (string, error) {
	m.called = true
	m.lastSystem = system
	m.lastUser = user
	return m.answer, m.err
}

func defaultOptions() Options {
	return Options{
		Threshold:       0.75,
		TopK:            5,
		ContactURL:      "https://example.com/form",
		FallbackMessage: "該当情報が見つかりません。こちらからお問い合わせください: %s",
		NotReadyMessage: "システムは現在準備中です。お急ぎの場合はこちらからお問い合わせください: %s",
		MaxContextChars: 4000,
	}
}

func distanceHit(text string, d float64) domain.Hit {
	return domain.Hit{Chunk: domain.Chunk{Text: text}, Score: d, Kind: domain.ScoreDistance}
}

func relevanceHit(text string, score float64) domain.Hit {
	return domain.Hit{Chunk: domain.Chunk{Text: text}, Score: score, Kind: domain.ScoreRelevance}
}

// --- Tests ---

func TestAsk_EmptyQuestion(t *testing.T) {
	search := &mockSearcher{size: 1}
	embed := &mockEmbedder{}
	svc := New(search, embed, &mockCompleter{}, defaultOptions())

	for _, q := range []string{"", "   ", "\n\t "} {
		_, err := svc.Ask(context.Background(), q)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("question %q: expected ErrInvalidInput, got %v", q, err)
		}
	}
	if embed.called || search.called {
		t.Error("blank question must be rejected before any retrieval work")
	}
}

func TestAsk_NotReadyFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		search Searcher
		embed  Embedder
		chat   Completer
	}{
		{"nil index", nil, &mockEmbedder{}, &mockCompleter{}},
		{"empty index", &mockSearcher{size: 0}, &mockEmbedder{}, &mockCompleter{}},
		{"nil embedder", &mockSearcher{size: 3}, nil, &mockCompleter{}},
		{"nil completer", &mockSearcher{size: 3}, &mockEmbedder{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := New(tt.search, tt.embed, tt.chat, defaultOptions())

			ans, err := svc.Ask(context.Background(), "営業時間は？")
			if err != nil {
				t.Fatalf("not-ready must not be an error: %v", err)
			}
			if !ans.Fallback {
				t.Error("expected fallback response")
			}
			if !strings.Contains(ans.Text, "https://example.com/form") {
				t.Errorf("fallback must carry the contact URL: %q", ans.Text)
			}
			if !strings.Contains(ans.Text, "準備中") {
				t.Errorf("expected the not-ready message, got %q", ans.Text)
			}
		})
	}
}

func TestAsk_ZeroHitsFallsBack(t *testing.T) {
	chat := &mockCompleter{answer: "should not be used"}
	svc := New(&mockSearcher{size: 3}, &mockEmbedder{vec: []float32{0.1}}, chat, defaultOptions())

	ans, err := svc.Ask(context.Background(), "全く関係ない質問")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !ans.Fallback {
		t.Error("expected fallback on zero hits")
	}
	if chat.called {
		t.Error("completer must not run on zero hits")
	}
}

func TestAsk_ThresholdGate(t *testing.T) {
	// With 1/(1+d) normalization a distance of 1/3 lands exactly on 0.75.
	tests := []struct {
		name         string
		hit          domain.Hit
		wantFallback bool
	}{
		{"below threshold", relevanceHit("text", 0.74), true},
		{"at threshold", relevanceHit("text", 0.75), false},
		{"above threshold", relevanceHit("text", 0.93), false},
		{"distance at threshold", distanceHit("text", 1.0/3.0), false},
		{"distance below threshold", distanceHit("text", 0.5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &mockCompleter{answer: "9時から18時です。"}
			search := &mockSearcher{size: 3, hits: []domain.Hit{tt.hit}}
			svc := New(search, &mockEmbedder{vec: []float32{0.1}}, chat, defaultOptions())

			ans, err := svc.Ask(context.Background(), "営業時間は？")
			if err != nil {
				t.Fatalf("Ask failed: %v", err)
			}
			if ans.Fallback != tt.wantFallback {
				t.Errorf("fallback = %v, expected %v", ans.Fallback, tt.wantFallback)
			}
			if chat.called == tt.wantFallback {
				t.Errorf("completer called = %v with fallback = %v", chat.called, ans.Fallback)
			}
		})
	}
}

func TestAsk_DecisionUsesOnlyBestHit(t *testing.T) {
	// Weak trailing hits must not drag an admitted question into fallback.
	hits := []domain.Hit{
		relevanceHit("strong", 0.9),
		relevanceHit("weak", 0.1),
		relevanceHit("weaker", 0.05),
	}
	chat := &mockCompleter{answer: "answer"}
	svc := New(&mockSearcher{size: 3, hits: hits}, &mockEmbedder{vec: []float32{0.1}}, chat, defaultOptions())

	ans, err := svc.Ask(context.Background(), "q")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if ans.Fallback {
		t.Error("strong best hit must answer regardless of weak trailing hits")
	}
	// All hits still contribute context.
	for _, want := range []string{"strong", "weak", "weaker"} {
		if !strings.Contains(chat.lastUser, want) {
			t.Errorf("user prompt missing hit text %q", want)
		}
	}
}

func TestAsk_PromptShape(t *testing.T) {
	chat := &mockCompleter{answer: "answer"}
	hits := []domain.Hit{relevanceHit("第一段落", 0.9), relevanceHit("第二段落", 0.8)}
	svc := New(&mockSearcher{size: 2, hits: hits}, &mockEmbedder{vec: []float32{0.1}}, chat, defaultOptions())

	if _, err := svc.Ask(context.Background(), "  営業時間は？  "); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if chat.lastSystem != DefaultSystemPrompt {
		t.Errorf("unexpected system prompt: %q", chat.lastSystem)
	}
	if !strings.Contains(chat.lastUser, "質問:\n営業時間は？") {
		t.Errorf("user prompt must carry the trimmed question: %q", chat.lastUser)
	}
	if !strings.Contains(chat.lastUser, "第一段落\n\n第二段落") {
		t.Errorf("context must join hit texts with a blank line: %q", chat.lastUser)
	}
}

func TestAsk_ContextTruncation(t *testing.T) {
	opts := defaultOptions()
	opts.MaxContextChars = 10

	long := strings.Repeat("あ", 30)
	chat := &mockCompleter{answer: "answer"}
	svc := New(&mockSearcher{size: 1, hits: []domain.Hit{relevanceHit(long, 0.9)}},
		&mockEmbedder{vec: []float32{0.1}}, chat, opts)

	if _, err := svc.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	want := fmt.Sprintf("コンテキスト:\n%s\n", strings.Repeat("あ", 10))
	if !strings.HasSuffix(chat.lastUser, want) {
		t.Errorf("context not truncated to 10 runes: %q", chat.lastUser)
	}
}

func TestAsk_BackendErrors(t *testing.T) {
	backendErr := fmt.Errorf("%w: connection refused", domain.ErrBackendUnavailable)

	t.Run("embed failure", func(t *testing.T) {
		svc := New(&mockSearcher{size: 1}, &mockEmbedder{err: backendErr}, &mockCompleter{}, defaultOptions())
		_, err := svc.Ask(context.Background(), "q")
		if !errors.Is(err, domain.ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
	})

	t.Run("search failure", func(t *testing.T) {
		search := &mockSearcher{size: 1, err: errors.New("index corrupt")}
		svc := New(search, &mockEmbedder{vec: []float32{0.1}}, &mockCompleter{}, defaultOptions())
		if _, err := svc.Ask(context.Background(), "q"); err == nil {
			t.Fatal("expected search error to surface")
		}
	})

	t.Run("completion failure", func(t *testing.T) {
		search := &mockSearcher{size: 1, hits: []domain.Hit{relevanceHit("text", 0.9)}}
		svc := New(search, &mockEmbedder{vec: []float32{0.1}}, &mockCompleter{err: backendErr}, defaultOptions())
		_, err := svc.Ask(context.Background(), "q")
		if !errors.Is(err, domain.ErrBackendUnavailable) {
			t.Fatalf("expected ErrBackendUnavailable, got %v", err)
		}
	})
}

func TestAsk_TopKPassedThrough(t *testing.T) {
	opts := defaultOptions()
	opts.TopK = 7
	search := &mockSearcher{size: 1}
	svc := New(search, &mockEmbedder{vec: []float32{0.1}}, &mockCompleter{}, opts)

	if _, err := svc.Ask(context.Background(), "q"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if search.lastK != 7 {
		t.Errorf("search k = %d, expected 7", search.lastK)
	}
}
