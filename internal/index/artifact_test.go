package index

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		Version:        ArtifactVersion,
		CreatedAt:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		EmbeddingModel: "text-embedding-3-small",
		Dimensions:     3,
		ChunkSize:      800,
		ChunkOverlap:   200,
		Chunks: []ChunkRecord{
			{Text: "営業時間は9時から18時です。", Source: "docs/hours.pdf", Page: 1},
			{Text: "お問い合わせはフォームから。", Source: "docs/contact.md"},
		},
		Vectors: [][]float32{
			{0.1, 0.2, 0.3},
			{0.4, 0.5, 0.6},
		},
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := sampleArtifact()

	if err := Save(dir, a); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists(dir) {
		t.Fatal("Exists should report true after Save")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(a, loaded) {
		t.Errorf("round trip mismatch:\ngot:  %+v\nwant: %+v", loaded, a)
	}
}

func TestLoad_MissingArtifact(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("expected error for missing artifact")
	}
}

func TestValidate_RejectsBadArtifacts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Artifact)
	}{
		{"wrong version", func(a *Artifact) { a.Version = 99 }},
		{"chunk/vector count mismatch", func(a *Artifact) { a.Vectors = a.Vectors[:1] }},
		{"dimension mismatch", func(a *Artifact) { a.Vectors[1] = []float32{1} }},
		{"zero dimensions", func(a *Artifact) { a.Dimensions = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := sampleArtifact()
			tt.mutate(a)
			if err := a.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSave_DoesNotCorruptPreviousArtifactOnFailure(t *testing.T) {
	dir := t.TempDir()
	good := sampleArtifact()
	if err := Save(dir, good); err != nil {
		t.Fatalf("Save: %v", err)
	}

	bad := sampleArtifact()
	bad.Vectors[0] = []float32{1} // inconsistent, must be rejected before any write
	if err := Save(dir, bad); err == nil {
		t.Fatal("expected Save of invalid artifact to fail")
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("previous artifact should still load: %v", err)
	}
	if !reflect.DeepEqual(good, loaded) {
		t.Error("previous artifact was corrupted by a failed save")
	}

	// No temp leftovers.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != ArtifactFile {
			t.Errorf("unexpected leftover file %s", e.Name())
		}
	}
}

func TestPath(t *testing.T) {
	if got := Path("artifacts"); got != filepath.Join("artifacts", "index.json") {
		t.Errorf("Path = %q", got)
	}
}
