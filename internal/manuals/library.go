package manuals

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aviara/copilot/internal/embeddings"
)

// Embedder generates embedding vectors for text.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Library ties the chunk store and the embedder together for ingestion
// and similarity search.
type Library struct {
	store    *Store
	embedder Embedder
	logger   *slog.Logger
}

// NewLibrary creates a manual library.
func NewLibrary(store *Store, embedder Embedder, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	return &Library{
		store:    store,
		embedder: embedder,
		logger:   logger.With("component", "manuals"),
	}
}

// IngestFile chunks a markdown manual and stores the chunks with their
// embeddings, replacing any prior import of the same manual. Returns
// the number of chunks stored.
func (l *Library) IngestFile(ctx context.Context, manual Manual, path string) (int, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read manual: %w", err)
	}

	chunks := ChunkMarkdown(src)
	for i := range chunks {
		chunks[i].Manual = manual
		embText := chunks[i].Content
		if chunks[i].Section != "" {
			embText = chunks[i].Section + ": " + embText
		}
		emb, err := l.embedder.Generate(ctx, embText)
		if err != nil {
			// A chunk without an embedding is invisible to search,
			// but the rest of the manual still imports.
			l.logger.Warn("embed chunk failed",
				"manual", manual,
				"ordinal", chunks[i].Ordinal,
				"error", err)
			continue
		}
		chunks[i].Embedding = emb
	}

	if err := l.store.ReplaceManual(ctx, manual, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	l.logger.Info("manual ingested", "manual", manual, "chunks", len(chunks))
	return len(chunks), nil
}

// IngestDir imports every manual with a matching markdown file in dir
// (filename "<manual_id>.md"). Missing files are skipped.
func (l *Library) IngestDir(ctx context.Context, dir string) (int, error) {
	total := 0
	for _, m := range Manuals() {
		path := filepath.Join(dir, string(m)+".md")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		n, err := l.IngestFile(ctx, m, path)
		if err != nil {
			return total, fmt.Errorf("ingest %s: %w", m, err)
		}
		total += n
	}
	return total, nil
}

// Search returns the top passages of one manual ranked by cosine
// similarity to the query.
func (l *Library) Search(ctx context.Context, manual Manual, query string, limit int) ([]Excerpt, error) {
	if limit <= 0 {
		limit = 5
	}

	queryEmb, err := l.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := l.store.EmbeddedChunks(ctx, manual)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	type scored struct {
		chunk Chunk
		score float32
	}
	scores := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		sim := embeddings.CosineSimilarity(queryEmb, c.Embedding)
		scores = append(scores, scored{chunk: c, score: sim})
	}

	// Partial selection sort for top-k.
	for i := 0; i < limit && i < len(scores); i++ {
		maxIdx := i
		for j := i + 1; j < len(scores); j++ {
			if scores[j].score > scores[maxIdx].score {
				maxIdx = j
			}
		}
		scores[i], scores[maxIdx] = scores[maxIdx], scores[i]
	}

	results := make([]Excerpt, 0, limit)
	for i := 0; i < limit && i < len(scores); i++ {
		results = append(results, Excerpt{
			Manual:  scores[i].chunk.Manual,
			Section: scores[i].chunk.Section,
			Content: scores[i].chunk.Content,
			Score:   scores[i].score,
		})
	}
	return results, nil
}
