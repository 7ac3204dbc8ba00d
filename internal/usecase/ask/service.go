package ask

import (
	"context"
	"fmt"
	"strings"

	"github.com/annai-dev/annai/internal/domain"
	"github.com/annai-dev/annai/internal/metrics"
)

// DefaultSystemPrompt instructs the model to answer briefly in Japanese and
// to stick to the supplied context instead of guessing.
const DefaultSystemPrompt = "あなたは日本語で簡潔に答えるアシスタントです。" +
	"与えられたコンテキストに基づいて、事実のみを短く回答してください。" +
	"不明確な場合は推測せず、フォーム誘導が適切な場合は誘導してください。"

// Options are the retrieval gate settings. Threshold compares against the
// normalized similarity of the single best hit.
type Options struct {
	Threshold       float64
	TopK            int
	ContactURL      string
	FallbackMessage string // template, %s receives ContactURL
	NotReadyMessage string // template, %s receives ContactURL
	MaxContextChars int
	SystemPrompt    string
}

// Answer is the outcome of one question. Fallback is an explicit signal,
// callers must not infer it from the text.
type Answer struct {
	Text     string
	Fallback bool
}

// Service gates questions through retrieval before letting a model answer.
// Any of the collaborators may be nil when the process starts degraded; in
// that case every question falls back to the contact guidance.
type Service struct {
	search Searcher
	embed  Embedder
	chat   Completer
	opts   Options
}

// New creates an ask service.
func New(search Searcher, embed Embedder, chat Completer, opts Options) *Service {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &Service{search: search, embed: embed, chat: chat, opts: opts}
}

// Ready reports whether the service can actually answer: an index with
// content plus embedding and chat capabilities.
func (s *Service) Ready() bool {
	return s.search != nil && s.embed != nil && s.chat != nil && s.search.Size() > 0
}

// Ask answers a question from the indexed corpus, or falls back to contact
// guidance when the system is not ready, nothing matches, or the best match
// is below the similarity threshold.
func (s *Service) Ask(ctx context.Context, question string) (Answer, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return Answer{}, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}

	if !s.Ready() {
		metrics.AskOutcomesTotal.WithLabelValues("fallback_not_ready").Inc()
		return Answer{Text: fmt.Sprintf(s.opts.NotReadyMessage, s.opts.ContactURL), Fallback: true}, nil
	}

	embResult, err := s.embed.Embed(ctx, q)
	if err != nil {
		return Answer{}, fmt.Errorf("vectorize question: %w", err)
	}

	hits, err := s.search.Search(ctx, embResult.Embedding, s.opts.TopK)
	if err != nil {
		return Answer{}, fmt.Errorf("search index: %w", err)
	}

	if len(hits) == 0 {
		metrics.AskOutcomesTotal.WithLabelValues("fallback_no_hits").Inc()
		return s.fallback(), nil
	}

	// The gate looks only at the best hit: one strong match is enough to
	// answer, and a weak best match means the rest are weaker still.
	if hits[0].Similarity() < s.opts.Threshold {
		metrics.AskOutcomesTotal.WithLabelValues("fallback_low_score").Inc()
		return s.fallback(), nil
	}

	answer, err := s.chat.Complete(ctx, s.opts.SystemPrompt, userPrompt(q, s.buildContext(hits)))
	if err != nil {
		return Answer{}, fmt.Errorf("compose answer: %w", err)
	}

	metrics.AskOutcomesTotal.WithLabelValues("answered").Inc()
	return Answer{Text: answer}, nil
}

func (s *Service) fallback() Answer {
	return Answer{Text: fmt.Sprintf(s.opts.FallbackMessage, s.opts.ContactURL), Fallback: true}
}

// buildContext joins hit texts best-first with blank lines and truncates to
// MaxContextChars runes so long corpora cannot blow up the prompt.
func (s *Service) buildContext(hits []domain.Hit) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}
	joined := strings.Join(texts, "\n\n")
	if runes := []rune(joined); len(runes) > s.opts.MaxContextChars {
		return string(runes[:s.opts.MaxContextChars])
	}
	return joined
}

func userPrompt(question, corpus string) string {
	return fmt.Sprintf("質問:\n%s\n\nコンテキスト:\n%s\n", question, corpus)
}
