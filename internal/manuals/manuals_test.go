package manuals

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleManual = `# Flight Operations

Intro paragraph before any subsection.

## Takeoff

Rotate at Vr. Climb at Vy until clear of obstacles.

### Short Field

Use full flaps and maximum braking performance numbers.

## Landing

Establish final approach speed per the handbook.
`

func TestChunkMarkdownSections(t *testing.T) {
	chunks := ChunkMarkdown([]byte(sampleManual))

	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4: %+v", len(chunks), chunks)
	}

	wantSections := []string{
		"Flight Operations",
		"Flight Operations > Takeoff",
		"Flight Operations > Takeoff > Short Field",
		"Flight Operations > Landing",
	}
	for i, want := range wantSections {
		if chunks[i].Section != want {
			t.Errorf("chunk %d section = %q, want %q", i, chunks[i].Section, want)
		}
		if chunks[i].Ordinal != i {
			t.Errorf("chunk %d ordinal = %d", i, chunks[i].Ordinal)
		}
	}

	if !strings.Contains(chunks[1].Content, "Rotate at Vr") {
		t.Errorf("takeoff chunk content = %q", chunks[1].Content)
	}
}

func TestChunkMarkdownCodeBlock(t *testing.T) {
	src := "# Checklists\n\n```\nBEFORE TAKEOFF\nFlaps - SET\n```\n"
	chunks := ChunkMarkdown([]byte(src))
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "Flaps - SET") {
		t.Errorf("code block content lost: %q", chunks[0].Content)
	}
}

func TestChunkMarkdownSplitsLongSections(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("# Big Section\n\n")
	for i := 0; i < 30; i++ {
		sb.WriteString(strings.Repeat("word ", 40))
		sb.WriteString("\n\n")
	}

	chunks := ChunkMarkdown([]byte(sb.String()))
	if len(chunks) < 2 {
		t.Fatalf("long section not split, got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c.Content)) > maxChunkRunes+200 {
			t.Errorf("chunk %d exceeds size bound: %d runes", i, len([]rune(c.Content)))
		}
		if c.Section != "Big Section" {
			t.Errorf("chunk %d section = %q", i, c.Section)
		}
	}
}

func TestParseManual(t *testing.T) {
	tests := []struct {
		in      string
		want    Manual
		wantErr bool
	}{
		{"phak", ManualPHAK, false},
		{"PHAK", ManualPHAK, false},
		{" far_aim ", ManualFARAIM, false},
		{"poh", ManualPOH, false},
		{"sectional", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseManual(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseManual(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseManual(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseManual(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeEmbedder returns a fixed vector per keyword so similarity
// ordering is deterministic.
type fakeEmbedder struct{}

func (fakeEmbedder) Generate(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "takeoff") || strings.Contains(lower, "rotate"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(lower, "landing") || strings.Contains(lower, "approach"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewLibrary(store, fakeEmbedder{}, nil)
}

func TestIngestAndSearch(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "afh.md")
	if err := os.WriteFile(path, []byte(sampleManual), 0o644); err != nil {
		t.Fatalf("write manual: %v", err)
	}

	n, err := lib.IngestFile(ctx, ManualAFH, path)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if n != 4 {
		t.Fatalf("ingested %d chunks, want 4", n)
	}

	results, err := lib.Search(ctx, ManualAFH, "takeoff procedure", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !strings.Contains(results[0].Content, "Rotate at Vr") {
		t.Errorf("top result = %q, want takeoff passage", results[0].Content)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not sorted by score: %v, %v", results[0].Score, results[1].Score)
	}
	if results[0].Manual != ManualAFH {
		t.Errorf("result manual = %q", results[0].Manual)
	}
}

func TestSearchScopedToManual(t *testing.T) {
	lib := newTestLibrary(t)
	ctx := context.Background()

	dir := t.TempDir()
	for _, m := range []Manual{ManualAFH, ManualPHAK} {
		path := filepath.Join(dir, string(m)+".md")
		if err := os.WriteFile(path, []byte(sampleManual), 0o644); err != nil {
			t.Fatalf("write manual: %v", err)
		}
	}

	total, err := lib.IngestDir(ctx, dir)
	if err != nil {
		t.Fatalf("IngestDir: %v", err)
	}
	if total != 8 {
		t.Fatalf("ingested %d chunks, want 8", total)
	}

	results, err := lib.Search(ctx, ManualPHAK, "landing", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Manual != ManualPHAK {
			t.Errorf("result from wrong manual: %q", r.Manual)
		}
	}
}

func TestReplaceManualReimport(t *testing.T) {
	store, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	first := []Chunk{
		{Section: "A", Ordinal: 0, Content: "old content", Embedding: []float32{1, 0}},
		{Section: "B", Ordinal: 1, Content: "old content 2", Embedding: []float32{0, 1}},
	}
	if err := store.ReplaceManual(ctx, ManualPOH, first); err != nil {
		t.Fatalf("first import: %v", err)
	}

	second := []Chunk{
		{Section: "A", Ordinal: 0, Content: "new content", Embedding: []float32{1, 0}},
	}
	if err := store.ReplaceManual(ctx, ManualPOH, second); err != nil {
		t.Fatalf("reimport: %v", err)
	}

	n, err := store.Count(ctx, ManualPOH)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count after reimport = %d, want 1", n)
	}

	chunks, err := store.EmbeddedChunks(ctx, ManualPOH)
	if err != nil {
		t.Fatalf("EmbeddedChunks: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "new content" {
		t.Errorf("unexpected chunks after reimport: %+v", chunks)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.14159, 0}
	out := decodeEmbedding(encodeEmbedding(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %v != %v", i, in[i], out[i])
		}
	}
	if encodeEmbedding(nil) != nil {
		t.Error("encode of empty embedding should be nil")
	}
}
