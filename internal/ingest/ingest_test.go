package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/pavelanni/adaptexam/internal/embed"
	"github.com/pavelanni/adaptexam/internal/index"
	"github.com/pavelanni/adaptexam/internal/model"
	"github.com/pavelanni/adaptexam/internal/store"
)

func TestChunkTextWindows(t *testing.T) {
	text := strings.Repeat("a", 500)

	chunks := ChunkText(text, Options{ChunkSize: 200, ChunkOverlap: 50})
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	// Windows: [0,200) [150,350) [300,500)
	if len(chunks[0]) != 200 || len(chunks[1]) != 200 || len(chunks[2]) != 200 {
		t.Errorf("chunk lengths = %d %d %d, want 200 each", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestChunkTextShortInput(t *testing.T) {
	chunks := ChunkText("short text", Options{ChunkSize: 1200, ChunkOverlap: 200})
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != "short text" {
		t.Errorf("chunk = %q", chunks[0])
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if got := ChunkText("   \n  ", Options{ChunkSize: 1200, ChunkOverlap: 200}); got != nil {
		t.Errorf("blank input produced %d chunks", len(got))
	}
}

func TestChunkTextClampsOptions(t *testing.T) {
	text := strings.Repeat("b", 450)

	// Size below the floor is raised to 200; overlap >= size is clamped
	// to size-1 so the window still advances.
	chunks := ChunkText(text, Options{ChunkSize: 50, ChunkOverlap: 500})
	if len(chunks) == 0 {
		t.Fatal("no chunks produced")
	}
	for i, c := range chunks {
		if len(c) > 200 {
			t.Errorf("chunk %d length %d exceeds size", i, len(c))
		}
	}
	// Overlap size-1 means each window advances by one character.
	if len(chunks) != 450-200+1 {
		t.Errorf("got %d chunks, want %d", len(chunks), 450-200+1)
	}
}

func TestChunkTextNormalizesLineEndings(t *testing.T) {
	text := "line one\r\nline two"
	chunks := ChunkText(text, Options{ChunkSize: 1200, ChunkOverlap: 0})
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if strings.Contains(chunks[0], "\r") {
		t.Error("carriage return survived normalization")
	}
}

func TestIngestMaterial(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ix := index.New(s, embed.NewHashProvider(32), 32)
	in := New(s, ix, Options{ChunkSize: 200, ChunkOverlap: 50})

	text := strings.Repeat("Lecture notes about classical mechanics and conservation laws. ", 12)
	id, chunks, err := in.IngestMaterial(context.Background(), model.Material{
		DepartmentID: 1,
		GradeLevel:   2,
		Title:        "Mechanics",
	}, text)
	if err != nil {
		t.Fatalf("IngestMaterial: %v", err)
	}
	if chunks < 2 {
		t.Errorf("chunks = %d, want >= 2", chunks)
	}

	ids, err := s.ChunkIDsForMaterial(id)
	if err != nil {
		t.Fatalf("ChunkIDsForMaterial: %v", err)
	}
	if len(ids) != chunks {
		t.Errorf("stored %d chunks, reported %d", len(ids), chunks)
	}

	embedded, err := s.EmbeddedChunkIDs(ids)
	if err != nil {
		t.Fatalf("EmbeddedChunkIDs: %v", err)
	}
	if len(embedded) != len(ids) {
		t.Errorf("embedded %d of %d chunks", len(embedded), len(ids))
	}
}

func TestIngestMaterialEmptyText(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ix := index.New(s, embed.NewHashProvider(32), 32)
	in := New(s, ix, Options{ChunkSize: 200, ChunkOverlap: 50})

	if _, _, err := in.IngestMaterial(context.Background(), model.Material{Title: "Empty"}, "  \n "); err == nil {
		t.Error("expected error for empty material")
	}
}
