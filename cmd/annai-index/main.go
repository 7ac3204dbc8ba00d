package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/annai-dev/annai/internal/loader"
	logpkg "github.com/annai-dev/annai/internal/logger"
	"github.com/annai-dev/annai/internal/transport/openai"
	buildservice "github.com/annai-dev/annai/internal/usecase/build"
	"github.com/annai-dev/annai/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "annai-index",
		Usage:   "Build the vector index artifact from a document corpus",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "File or directory of documents (.txt, .md, .pdf)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Output directory for the index artifact",
				Value:   "artifacts",
			},
			&cli.IntFlag{
				Name:  "chunk-size",
				Usage: "Maximum chunk size in characters",
				Value: 800,
			},
			&cli.IntFlag{
				Name:  "chunk-overlap",
				Usage: "Characters shared between adjacent chunks",
				Value: 200,
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Embedding model name",
				Value: "text-embedding-3-small",
			},
			&cli.StringFlag{
				Name:  "base-url",
				Usage: "Embedding API base URL (OpenAI-compatible)",
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Embedding API key",
				EnvVars: []string{"OPENAI_API_KEY"},
			},
			&cli.IntFlag{
				Name:  "dimensions",
				Usage: "Requested embedding dimensions (0 = provider default)",
			},
			&cli.StringFlag{
				Name:  "pdf-backend",
				Usage: "PDF text extraction backend (langchain, ledongthuc)",
				Value: loader.DefaultPDFBackend,
			},
			&cli.IntFlag{
				Name:  "peek",
				Usage: "Print the first N chunks and exit without embedding",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Set logging level (debug, info, warn, error)",
				Value: "info",
			},
		},
		Action: buildCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildCommand(c *cli.Context) error {
	logger, err := logpkg.New("local", c.String("log-level"))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	peek := c.Int("peek")
	if peek == 0 && c.String("api-key") == "" {
		return fmt.Errorf("an API key is required (set --api-key or OPENAI_API_KEY)")
	}

	load, err := loader.New(c.String("pdf-backend"), logger)
	if err != nil {
		return err
	}

	var embedder buildservice.Embedder
	if peek == 0 {
		embedder = openai.NewEmbedder(openai.EmbedderConfig{
			APIKey:     c.String("api-key"),
			BaseURL:    c.String("base-url"),
			Model:      c.String("model"),
			Dimensions: c.Int("dimensions"),
		})
	}

	svc := buildservice.New(load, embedder, logger)
	report, err := svc.Run(c.Context, buildservice.Options{
		InputPath:      c.String("input"),
		OutputDir:      c.String("out"),
		ChunkSize:      c.Int("chunk-size"),
		ChunkOverlap:   c.Int("chunk-overlap"),
		EmbeddingModel: c.String("model"),
		Peek:           peek,
	})
	if err != nil {
		return err
	}

	for _, sk := range report.Skipped {
		logger.Warn("skipped input file", zap.String("path", sk.Path), zap.String("reason", sk.Reason))
	}

	fmt.Printf("Loaded %d documents (%d chars) -> %d chunks\n",
		report.Documents, report.TotalChars, report.Chunks)
	if report.Written {
		fmt.Printf("Wrote index artifact to %s\n", c.String("out"))
	}
	return nil
}
