// Package index maps free-text queries to the most similar lecture
// chunks within a (department, grade) scope.
package index

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/pavelanni/adaptexam/internal/embed"
	"github.com/pavelanni/adaptexam/internal/model"
	"github.com/pavelanni/adaptexam/internal/store"
)

// Metadata keys recording which provider the stored embeddings came from.
const (
	MetaProviderKey = "embedding_provider"
	MetaModelKey    = "embedding_model"
	MetaDimKey      = "embedding_dim"
)

// ErrDimensionMismatch reports a provider whose output dimension does
// not match the configured one. This is a configuration error, not a
// per-item failure.
var ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch")

// Index computes and queries chunk embeddings through an injected
// embedding provider.
type Index struct {
	store    *store.Store
	provider embed.Provider
	dim      int
}

// New creates an index over the store using the given provider.
func New(s *store.Store, p embed.Provider, dim int) *Index {
	return &Index{store: s, provider: p, dim: dim}
}

// EnsureEmbeddings embeds the chunks that lack a cached vector, or all
// of them when force is set.
func (ix *Index) EnsureEmbeddings(ctx context.Context, chunkIDs []int64, force bool) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	missing := chunkIDs
	if force {
		if err := ix.store.DeleteEmbeddings(chunkIDs); err != nil {
			return fmt.Errorf("drop embeddings: %w", err)
		}
	} else {
		embedded, err := ix.store.EmbeddedChunkIDs(chunkIDs)
		if err != nil {
			return fmt.Errorf("check embeddings: %w", err)
		}
		missing = missing[:0]
		for _, id := range chunkIDs {
			if !embedded[id] {
				missing = append(missing, id)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	chunks, err := ix.store.GetChunks(missing)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.provider.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	for i, c := range chunks {
		vec := vectors[i]
		if len(vec) != ix.dim {
			return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, ix.dim, len(vec))
		}
		if err := ix.store.PutEmbedding(model.ChunkEmbedding{
			ChunkID: c.ID,
			Dim:     ix.dim,
			Packed:  Pack(vec),
		}); err != nil {
			return fmt.Errorf("store embedding for chunk %d: %w", c.ID, err)
		}
	}

	slog.Info("embedded chunks", "count", len(chunks), "dim", ix.dim)
	return nil
}

// QuerySimilar returns the limit chunks most similar to the query text
// within the (department, grade) scope. All embeddings are normalized,
// so dot product stands in for cosine similarity. Ties keep scan order.
func (ix *Index) QuerySimilar(ctx context.Context, query string, departmentID int64, gradeLevel int, limit int) ([]model.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	vectors, err := ix.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := vectors[0]
	if len(queryVec) != ix.dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, ix.dim, len(queryVec))
	}

	rows, err := ix.store.EmbeddedChunksInScope(departmentID, gradeLevel)
	if err != nil {
		return nil, fmt.Errorf("scan scope: %w", err)
	}

	type scored struct {
		sim   float64
		chunk model.Chunk
	}
	results := make([]scored, 0, len(rows))
	for _, row := range rows {
		vec, err := Unpack(row.Packed)
		if err != nil {
			return nil, fmt.Errorf("unpack embedding for chunk %d: %w", row.Chunk.ID, err)
		}
		results = append(results, scored{sim: dot(queryVec, vec), chunk: row.Chunk})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].sim > results[j].sim })
	if len(results) > limit {
		results = results[:limit]
	}

	chunks := make([]model.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.chunk
	}
	return chunks, nil
}

// ReindexAll re-embeds every stored chunk and records the new
// configuration fingerprint.
func (ix *Index) ReindexAll(ctx context.Context, provider, modelName string) error {
	ids, err := ix.store.AllChunkIDs()
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	if err := ix.EnsureEmbeddings(ctx, ids, true); err != nil {
		return err
	}
	return ix.RecordFingerprint(provider, modelName)
}

// RecordFingerprint stores which provider/model/dim the index was built
// with so a configuration change can be detected at startup.
func (ix *Index) RecordFingerprint(provider, modelName string) error {
	if err := ix.store.SetIndexMetadata(MetaProviderKey, provider); err != nil {
		return err
	}
	if err := ix.store.SetIndexMetadata(MetaModelKey, modelName); err != nil {
		return err
	}
	return ix.store.SetIndexMetadata(MetaDimKey, fmt.Sprintf("%d", ix.dim))
}

// CheckFingerprint warns when the stored index was built with a
// different embedding configuration than the current one.
func (ix *Index) CheckFingerprint(provider, modelName string) error {
	stored, err := ix.store.GetIndexMetadata(MetaProviderKey)
	if err != nil {
		return err
	}
	storedModel, err := ix.store.GetIndexMetadata(MetaModelKey)
	if err != nil {
		return err
	}
	storedDim, err := ix.store.GetIndexMetadata(MetaDimKey)
	if err != nil {
		return err
	}
	if stored == "" {
		return nil
	}
	if stored != provider || storedModel != modelName || storedDim != fmt.Sprintf("%d", ix.dim) {
		slog.Warn("embedding configuration changed since the index was built; run `adaptexam reindex`",
			"indexed_provider", stored, "indexed_model", storedModel, "indexed_dim", storedDim,
			"provider", provider, "model", modelName, "dim", ix.dim)
	}
	return nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Pack serializes a vector as little-endian float32 bytes.
func Pack(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Unpack deserializes a packed vector.
func Unpack(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("packed embedding has %d bytes, not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}
