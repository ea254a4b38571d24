// Package ingest turns lecture material text into stored, embedded
// chunks ready for retrieval.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/adaptexam/internal/index"
	"github.com/pavelanni/adaptexam/internal/model"
	"github.com/pavelanni/adaptexam/internal/store"
)

const minChunkSize = 200

// Options control the sliding-window chunker.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// ChunkText splits text into fixed-size overlapping windows. The size
// floor keeps chunks meaningful for retrieval; overlap is clamped so
// every window advances.
func ChunkText(text string, opts Options) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	size := opts.ChunkSize
	if size < minChunkSize {
		size = minChunkSize
	}
	overlap := opts.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	var chunks []string
	for start := 0; start < len(text); {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// Ingester stores materials and embeds their chunks.
type Ingester struct {
	store *store.Store
	index *index.Index
	opts  Options
}

func New(s *store.Store, ix *index.Index, opts Options) *Ingester {
	return &Ingester{store: s, index: ix, opts: opts}
}

// IngestMaterial chunks the text, persists the material with its
// chunks, and embeds the new chunks. Returns the material ID and the
// number of chunks stored.
func (in *Ingester) IngestMaterial(ctx context.Context, m model.Material, text string) (int64, int, error) {
	chunks := ChunkText(text, in.opts)
	if len(chunks) == 0 {
		return 0, 0, fmt.Errorf("material %q has no text to ingest", m.Title)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	id, err := in.store.CreateMaterial(m, chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("store material: %w", err)
	}

	chunkIDs, err := in.store.ChunkIDsForMaterial(id)
	if err != nil {
		return 0, 0, fmt.Errorf("list chunks: %w", err)
	}
	if err := in.index.EnsureEmbeddings(ctx, chunkIDs, false); err != nil {
		return 0, 0, fmt.Errorf("embed chunks: %w", err)
	}

	slog.Info("material ingested", "material", id, "title", m.Title, "chunks", len(chunks))
	return id, len(chunks), nil
}
