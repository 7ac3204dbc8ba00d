// Package loader discovers source files and extracts their text into
// SourceDocuments. Parsing backends are pluggable per file extension, and a
// failure to parse one file never aborts the collection.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/annai-dev/annai/internal/domain"
)

// Reader extracts SourceDocuments from a single file.
type Reader interface {
	Read(ctx context.Context, path string) ([]domain.SourceDocument, error)
}

// Skipped records a file that failed to parse and was left out.
type Skipped struct {
	Path   string
	Reason string
}

// Result aggregates loaded documents with per-file failure diagnostics.
type Result struct {
	Documents []domain.SourceDocument
	Skipped   []Skipped
}

// TotalChars returns the total extracted character count across all
// documents. A non-empty document list with zero characters means the input
// files produced no extractable text.
func (r *Result) TotalChars() int {
	total := 0
	for _, d := range r.Documents {
		total += len([]rune(d.Text))
	}
	return total
}

// textExts are the lightweight formats parsed before binary ones: they are
// cheap and should fail fast independently.
var textExts = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// Loader reads a file or directory tree into a Result.
type Loader struct {
	readers map[string]Reader
	logger  *zap.Logger
}

// New creates a Loader with text, Markdown, and PDF readers registered.
// pdfBackend selects the PDF extraction backend ("" uses the default).
func New(pdfBackend string, logger *zap.Logger) (*Loader, error) {
	pdfReader, err := NewPDFReader(pdfBackend)
	if err != nil {
		return nil, err
	}

	l := &Loader{
		readers: map[string]Reader{
			".txt":      textReader{},
			".md":       textReader{},
			".markdown": textReader{},
			".pdf":      pdfReader,
		},
		logger: logger,
	}
	return l, nil
}

// Register adds or replaces the reader for a file extension. New formats
// plug in without touching discovery or dispatch.
func (l *Loader) Register(ext string, r Reader) {
	l.readers[strings.ToLower(ext)] = r
}

// Load reads a file or recursively discovers a directory. Files that fail to
// parse are logged, recorded in Result.Skipped, and skipped. A directory
// yielding zero documents is not an error.
func (l *Loader) Load(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat input path: %w", err)
	}

	var files []string
	if info.IsDir() {
		files, err = l.discover(root)
		if err != nil {
			return nil, err
		}
	} else {
		if _, ok := l.readers[ext(root)]; !ok {
			return nil, fmt.Errorf("no reader registered for %q", ext(root))
		}
		files = []string{root}
	}

	result := &Result{}
	for _, path := range files {
		docs, err := l.readers[ext(path)].Read(ctx, path)
		if err != nil {
			l.logger.Warn("skipping unparseable file",
				zap.String("path", path),
				zap.Error(err),
			)
			result.Skipped = append(result.Skipped, Skipped{Path: path, Reason: err.Error()})
			continue
		}
		result.Documents = append(result.Documents, docs...)
	}
	return result, nil
}

// discover walks root collecting files with registered readers, text formats
// before binary ones, each group in path order.
func (l *Loader) discover(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := l.readers[ext(path)]; ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk input directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool {
		ri, rj := rank(files[i]), rank(files[j])
		if ri != rj {
			return ri < rj
		}
		return files[i] < files[j]
	})
	return files, nil
}

func rank(path string) int {
	if textExts[ext(path)] {
		return 0
	}
	return 1
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// textReader loads a whole plain-text or Markdown file as one document.
type textReader struct{}

func (textReader) Read(_ context.Context, path string) ([]domain.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return []domain.SourceDocument{{
		Text:   string(data),
		Source: path,
	}}, nil
}
