package loader

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/documentloaders"

	"github.com/annai-dev/annai/internal/domain"
)

// DefaultPDFBackend is used when no backend is selected.
const DefaultPDFBackend = "langchain"

// pdfBackends maps a backend identifier to a reader constructor. Backends
// trade fidelity for robustness; new ones register without touching the
// loader's dispatch.
var pdfBackends = map[string]func() Reader{
	"langchain":  func() Reader { return langchainPDF{} },
	"ledongthuc": func() Reader { return ledongthucPDF{} },
}

// RegisterPDFBackend makes a PDF extraction backend selectable by name.
func RegisterPDFBackend(name string, ctor func() Reader) {
	pdfBackends[name] = ctor
}

// PDFBackends lists the registered backend names.
func PDFBackends() []string {
	names := make([]string, 0, len(pdfBackends))
	for name := range pdfBackends {
		names = append(names, name)
	}
	return names
}

// NewPDFReader returns the PDF reader for the named backend.
func NewPDFReader(backend string) (Reader, error) {
	if backend == "" {
		backend = DefaultPDFBackend
	}
	ctor, ok := pdfBackends[backend]
	if !ok {
		return nil, fmt.Errorf("unknown pdf backend %q (available: %s)",
			backend, strings.Join(PDFBackends(), ", "))
	}
	return ctor(), nil
}

// langchainPDF extracts one document per page via the langchaingo loader.
type langchainPDF struct{}

func (langchainPDF) Read(ctx context.Context, path string) ([]domain.SourceDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat pdf: %w", err)
	}

	pages, err := documentloaders.NewPDF(f, info.Size()).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	docs := make([]domain.SourceDocument, 0, len(pages))
	for i, p := range pages {
		docs = append(docs, domain.SourceDocument{
			Text:   p.PageContent,
			Source: path,
			Page:   metaInt(p.Metadata["page"], i+1),
		})
	}
	return docs, nil
}

// ledongthucPDF extracts plain text per page. Lighter than the langchain
// backend but handles fewer encodings.
type ledongthucPDF struct{}

func (ledongthucPDF) Read(_ context.Context, path string) ([]domain.SourceDocument, error) {
	f, r, err := ledongthuc.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var docs []domain.SourceDocument
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		docs = append(docs, domain.SourceDocument{
			Text:   text,
			Source: path,
			Page:   i,
		})
	}
	return docs, nil
}

// metaInt coerces loader metadata that may arrive as int or string.
func metaInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	return fallback
}
