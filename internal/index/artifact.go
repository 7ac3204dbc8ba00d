// Package index defines the persisted vector index artifact and the search
// contract its backends implement.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/annai-dev/annai/internal/domain"
)

// ArtifactVersion is the current artifact format version. Readers refuse
// artifacts with a different version rather than guessing.
const ArtifactVersion = 1

// ArtifactFile is the artifact file name inside the artifact directory.
const ArtifactFile = "index.json"

// ChunkRecord is one persisted chunk with its provenance.
type ChunkRecord struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"`
}

// Artifact is the versioned, self-describing bundle of all chunks and their
// embedding vectors. It is written once by the build pipeline and loaded
// read-only by the serving process.
type Artifact struct {
	Version        int           `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	EmbeddingModel string        `json:"embedding_model"`
	Dimensions     int           `json:"dimensions"`
	ChunkSize      int           `json:"chunk_size"`
	ChunkOverlap   int           `json:"chunk_overlap"`
	Chunks         []ChunkRecord `json:"chunks"`
	Vectors        [][]float32   `json:"vectors"`
}

// Validate checks internal consistency: format version, chunk/vector pairing,
// and uniform dimensionality.
func (a *Artifact) Validate() error {
	if a.Version != ArtifactVersion {
		return fmt.Errorf("unsupported artifact version %d (want %d)", a.Version, ArtifactVersion)
	}
	if len(a.Chunks) != len(a.Vectors) {
		return fmt.Errorf("artifact has %d chunks but %d vectors", len(a.Chunks), len(a.Vectors))
	}
	if a.Dimensions <= 0 {
		return fmt.Errorf("artifact dimensions must be positive, got %d", a.Dimensions)
	}
	for i, v := range a.Vectors {
		if len(v) != a.Dimensions {
			return fmt.Errorf("vector %d has %d dimensions, artifact declares %d: %w",
				i, len(v), a.Dimensions, domain.ErrDimMismatch)
		}
	}
	return nil
}

// Chunk reconstructs the domain chunk at position i.
func (a *Artifact) Chunk(i int) domain.Chunk {
	rec := a.Chunks[i]
	return domain.Chunk{Text: rec.Text, Source: rec.Source, Page: rec.Page}
}

// Path returns the artifact file path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, ArtifactFile)
}

// Exists reports whether an artifact is present in dir.
func Exists(dir string) bool {
	_, err := os.Stat(Path(dir))
	return err == nil
}

// Save writes the artifact atomically: a temp file in the same directory is
// renamed over the target, so a failed write never corrupts a previous
// artifact.
func Save(dir string, a *Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid artifact: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ArtifactFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close artifact: %w", err)
	}

	if err := os.Rename(tmpPath, Path(dir)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

// Load reads and validates the artifact in dir.
func Load(dir string) (*Artifact, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
