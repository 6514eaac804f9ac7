package pipeline

import (
	"testing"
)

func TestCatalogRecordAndRemove(t *testing.T) {
	dir := t.TempDir()
	cat, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	start := cat.AllocateIDs(2)
	if start != 0 {
		t.Errorf("expected first allocation to start at 0, got %d", start)
	}
	cat.RecordFile("src/main.go", FileRecord{
		ContentHash: "abc",
		ChunkCount:  2,
		VectorIDs:   []uint64{0, 1},
	}, map[uint64]ChunkRecord{
		0: {FilePath: "src/main.go", Language: "go", DocID: "d0"},
		1: {FilePath: "src/main.go", Language: "go", DocID: "d1"},
	})

	if !cat.HasChunk(0) || !cat.HasChunk(1) {
		t.Error("expected both chunks to be registered")
	}
	if cat.FileCount() != 1 {
		t.Errorf("expected 1 file, got %d", cat.FileCount())
	}

	stale := cat.RemoveFile("src/main.go")
	if len(stale) != 2 {
		t.Errorf("expected 2 stale ids, got %v", stale)
	}
	if cat.HasChunk(0) {
		t.Error("expected chunk 0 to be gone after removal")
	}
}

func TestCatalogReRecordDropsOldChunks(t *testing.T) {
	cat, err := LoadCatalog(t.TempDir())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	cat.AllocateIDs(1)
	cat.RecordFile("a.py", FileRecord{VectorIDs: []uint64{0}}, map[uint64]ChunkRecord{
		0: {FilePath: "a.py", DocID: "old"},
	})
	start := cat.AllocateIDs(1)
	stale := cat.RecordFile("a.py", FileRecord{VectorIDs: []uint64{start}}, map[uint64]ChunkRecord{
		start: {FilePath: "a.py", DocID: "new"},
	})

	if len(stale) != 1 || stale[0] != 0 {
		t.Errorf("expected re-record to return stale id 0, got %v", stale)
	}
	if cat.HasChunk(0) {
		t.Error("expected old chunk to be dropped")
	}
	if rec, ok := cat.Chunk(start); !ok || rec.DocID != "new" {
		t.Errorf("expected new chunk record, got %+v ok=%v", rec, ok)
	}
}

func TestCatalogPersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cat, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	cat.AllocateIDs(3)
	cat.RecordFile("lib/util.go", FileRecord{
		BlobHash:   "deadbeef",
		ChunkCount: 3,
		VectorIDs:  []uint64{0, 1, 2},
	}, map[uint64]ChunkRecord{
		0: {FilePath: "lib/util.go", Language: "go", SemanticType: "function", DocID: "d0"},
		1: {FilePath: "lib/util.go", Language: "go", DocID: "d1"},
		2: {FilePath: "lib/util.go", Language: "go", DocID: "d2"},
	})
	if err := cat.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec, ok := loaded.File("lib/util.go")
	if !ok {
		t.Fatal("expected file record to survive reload")
	}
	if rec.BlobHash != "deadbeef" || rec.ChunkCount != 3 {
		t.Errorf("unexpected record after reload: %+v", rec)
	}
	ch, ok := loaded.Chunk(0)
	if !ok || ch.SemanticType != "function" {
		t.Errorf("unexpected chunk after reload: %+v ok=%v", ch, ok)
	}
	if next := loaded.AllocateIDs(1); next != 3 {
		t.Errorf("expected id allocation to continue at 3, got %d", next)
	}
}
