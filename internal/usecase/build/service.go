package build

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/annai-dev/annai/internal/chunker"
	"github.com/annai-dev/annai/internal/domain"
	"github.com/annai-dev/annai/internal/index"
	"github.com/annai-dev/annai/internal/loader"
)

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Options configure one index build run.
type Options struct {
	InputPath      string
	OutputDir      string
	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
	Peek           int // when > 0, print chunks instead of embedding
}

// Report summarizes a build run. Documents and TotalChars are reported even
// when chunking yields nothing, so an operator can tell empty files apart
// from a missing corpus.
type Report struct {
	Documents  int
	Chunks     int
	Skipped    []loader.Skipped
	TotalChars int
	Written    bool
}

// Service builds the index artifact: load documents, chunk, embed, persist.
type Service struct {
	load  *loader.Loader
	embed Embedder
	log   *zap.Logger
}

// New creates an index build service.
func New(load *loader.Loader, embed Embedder, log *zap.Logger) *Service {
	return &Service{load: load, embed: embed, log: log}
}

// Run executes the build pipeline. Persistence is all-or-nothing: any embed
// failure aborts the run and the previous artifact, if any, stays intact.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	split, err := chunker.New(opts.ChunkSize, opts.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	result, err := s.load.Load(ctx, opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	report := &Report{
		Documents:  len(result.Documents),
		Skipped:    result.Skipped,
		TotalChars: result.TotalChars(),
	}

	if report.Documents == 0 {
		s.log.Info("no input documents found, nothing to build",
			zap.String("input", opts.InputPath),
			zap.Int("skipped", len(result.Skipped)))
		return report, nil
	}

	chunks := split.Split(result.Documents)
	report.Chunks = len(chunks)

	if len(chunks) == 0 {
		s.log.Warn("documents yielded no chunks",
			zap.Int("documents", report.Documents),
			zap.Int("total_chars", report.TotalChars),
			zap.Int("chunk_size", opts.ChunkSize),
			zap.Int("chunk_overlap", opts.ChunkOverlap))
		return report, nil
	}

	if opts.Peek > 0 {
		s.peek(chunks, opts.Peek)
		return report, nil
	}

	vectors, dims, err := s.embedAll(ctx, chunks)
	if err != nil {
		return report, err
	}

	artifact := &index.Artifact{
		Version:        index.ArtifactVersion,
		CreatedAt:      time.Now().UTC(),
		EmbeddingModel: opts.EmbeddingModel,
		Dimensions:     dims,
		ChunkSize:      opts.ChunkSize,
		ChunkOverlap:   opts.ChunkOverlap,
		Chunks:         make([]index.ChunkRecord, len(chunks)),
		Vectors:        vectors,
	}
	for i, c := range chunks {
		artifact.Chunks[i] = index.ChunkRecord{Text: c.Text, Source: c.Source, Page: c.Page}
	}

	if err := index.Save(opts.OutputDir, artifact); err != nil {
		return report, fmt.Errorf("%w: save artifact: %w", domain.ErrBuildFailure, err)
	}
	report.Written = true

	s.log.Info("index built",
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("dimensions", dims),
		zap.String("model", opts.EmbeddingModel),
		zap.String("out", index.Path(opts.OutputDir)))
	return report, nil
}

// embedAll vectorizes every chunk, enforcing that all vectors share the
// dimensionality of the first.
func (s *Service) embedAll(ctx context.Context, chunks []domain.Chunk) ([][]float32, int, error) {
	vectors := make([][]float32, len(chunks))
	dims := 0
	for i, c := range chunks {
		res, err := s.embed.Embed(ctx, c.Text)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: embed chunk %d/%d: %w",
				domain.ErrBuildFailure, i+1, len(chunks), err)
		}
		if i == 0 {
			dims = len(res.Embedding)
			if dims == 0 {
				return nil, 0, fmt.Errorf("%w: provider returned an empty vector", domain.ErrBuildFailure)
			}
		} else if len(res.Embedding) != dims {
			return nil, 0, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				domain.ErrDimMismatch, i, len(res.Embedding), dims)
		}
		vectors[i] = res.Embedding

		if (i+1)%50 == 0 {
			s.log.Info("embedding progress", zap.Int("done", i+1), zap.Int("total", len(chunks)))
		}
	}
	return vectors, dims, nil
}

func (s *Service) peek(chunks []domain.Chunk, n int) {
	if n > len(chunks) {
		n = len(chunks)
	}
	for i := 0; i < n; i++ {
		fmt.Printf("--- chunk %d (%s", i+1, chunks[i].Source)
		if chunks[i].Page > 0 {
			fmt.Printf(" p.%d", chunks[i].Page)
		}
		fmt.Printf(") ---\n%s\n\n", chunks[i].Text)
	}
}
