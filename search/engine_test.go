package search

import (
	"context"
	"errors"
	"testing"

	"github.com/viant/vecshard/engine"
	"github.com/viant/vecshard/shard"
	"github.com/viant/vecshard/vector"
)

func sr(id uint64, sim float32) vector.SearchResult {
	return vector.SearchResult{ID: id, Similarity: sim}
}

func newStore(t *testing.T, dim int) *shard.Store {
	t.Helper()
	s, err := shard.Create(context.Background(), ":memory:", dim, engine.DefaultOptions())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSearch_TopK(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 2)
	e := New()

	vectors := [][]float32{{1, 0}, {0, 1}, {0.9, 0.1}}
	ids, _, err := store.InsertBatch(ctx, vectors, nil)
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	got, err := e.Search(ctx, store, []float32{1, 0}, 2, 0, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ID != ids[0] {
		t.Fatalf("best match id = %d, want %d", got[0].ID, ids[0])
	}
	if got[1].ID != ids[2] {
		t.Fatalf("second match id = %d, want %d", got[1].ID, ids[2])
	}
	if got[0].Similarity < got[1].Similarity {
		t.Fatalf("results out of order: %v", got)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 2)
	e := New()

	// Identical vectors tie on similarity; ordering falls back to id.
	for i := 0; i < 4; i++ {
		if _, _, err := store.Insert(ctx, []float32{1, 1}, nil); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	first, err := e.Search(ctx, store, []float32{1, 1}, 3, 0, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for run := 0; run < 5; run++ {
		got, err := e.Search(ctx, store, []float32{1, 1}, 3, 0, Options{})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(got) != len(first) {
			t.Fatalf("run %d: %d results, want %d", run, len(got), len(first))
		}
		for i := range got {
			if got[i].ID != first[i].ID {
				t.Fatalf("run %d: ids %v differ from first run %v", run, got, first)
			}
		}
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].ID >= first[i].ID {
			t.Fatalf("tied results not ordered by id: %v", first)
		}
	}
}

func TestSearch_Validation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 2)
	e := New()

	if _, err := e.Search(ctx, store, []float32{1, 0}, 0, 0, Options{}); !errors.Is(err, ErrInvalidK) {
		t.Fatalf("k=0 err = %v, want ErrInvalidK", err)
	}
	if _, err := e.Search(ctx, store, []float32{1, 0}, 1, 1.5, Options{}); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("threshold=1.5 err = %v, want ErrInvalidThreshold", err)
	}
	if _, err := e.Search(ctx, store, []float32{1, 0}, 1, -1.5, Options{}); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("threshold=-1.5 err = %v, want ErrInvalidThreshold", err)
	}
	var dimErr *shard.DimensionError
	if _, err := e.Search(ctx, store, []float32{1, 0, 0}, 1, 0, Options{}); !errors.As(err, &dimErr) {
		t.Fatalf("wrong dimension err = %v, want DimensionError", err)
	}
}

func TestSearch_ZeroQueryNorm(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 2)
	e := New()

	if _, _, err := store.Insert(ctx, []float32{1, 0}, nil); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err := e.Search(ctx, store, []float32{0, 0}, 3, 0, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("zero-norm query returned %d results, want 0", len(got))
	}
}

func TestSearch_Threshold(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 2)
	e := New()

	if _, _, err := store.InsertBatch(ctx, [][]float32{{1, 0}, {1, 1}}, nil); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	// cos([1,0],[1,1]) ~ 0.707, below 0.9.
	got, err := e.Search(ctx, store, []float32{1, 0}, 5, 0.9, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].Similarity < 0.99 {
		t.Fatalf("similarity = %v, want ~1", got[0].Similarity)
	}
}

func TestSearch_NegativeThreshold(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 2)
	e := New()

	if _, _, err := store.InsertBatch(ctx, [][]float32{{1, 0}, {-1, 0}}, nil); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	// The default threshold of zero hides anti-correlated vectors; the
	// full cosine range is reachable by asking for it.
	got, err := e.Search(ctx, store, []float32{1, 0}, 5, 0, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("threshold 0 returned %d results, want 1", len(got))
	}

	got, err = e.Search(ctx, store, []float32{1, 0}, 5, -1, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("threshold -1 returned %d results, want 2", len(got))
	}
	if got[1].Similarity > -0.99 {
		t.Fatalf("anti-correlated similarity = %v, want ~-1", got[1].Similarity)
	}
}

func TestSearch_MetadataCopied(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 2)
	e := New()

	if _, _, err := store.Insert(ctx, []float32{1, 0}, []byte("payload")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := e.Search(ctx, store, []float32{1, 0}, 1, 0, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}

	// Scribbling on a result must not leak into the warm index serving
	// the next search.
	for i := range got[0].Metadata {
		got[0].Metadata[i] = 'x'
	}
	again, err := e.Search(ctx, store, []float32{1, 0}, 1, 0, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if string(again[0].Metadata) != "payload" {
		t.Fatalf("metadata = %q after caller mutation, want %q", again[0].Metadata, "payload")
	}
}

func TestSearch_NormWindowPrunes(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 2)
	e := New()

	// Same direction, wildly different magnitude. Cosine similarity is 1
	// for both, but the big vector's norm falls outside the window and is
	// never scored. Fewer than k results come back; the window does not
	// widen to fill the count.
	if _, _, err := store.InsertBatch(ctx, [][]float32{{1, 0}, {100, 0}}, nil); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	got, err := e.Search(ctx, store, []float32{1, 0}, 2, 0, Options{NormSensitivity: 0.3, FullScanFraction: 0.99})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1 (pruned)", len(got))
	}
	if got[0].ID != 1 {
		t.Fatalf("result id = %d, want 1", got[0].ID)
	}

	// A full scan sees both.
	got, err = e.Search(ctx, store, []float32{1, 0}, 2, 0, Options{FullScan: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("full scan got %d results, want 2", len(got))
	}
}

func TestSearch_IndexInvalidation(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, 2)
	e := New()

	id1, _, err := store.Insert(ctx, []float32{1, 0}, nil)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	got, err := e.Search(ctx, store, []float32{1, 0}, 5, 0, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}

	// A delete moves the version stamp; the stale index must be rebuilt.
	if _, err := store.Delete(ctx, id1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	got, err = e.Search(ctx, store, []float32{1, 0}, 5, 0, Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d results after delete, want 0", len(got))
	}
}

func TestTopK_Ordering(t *testing.T) {
	top := newTopK(2)
	top.offer(sr(3, 0.5))
	top.offer(sr(1, 0.9))
	top.offer(sr(2, 0.9))
	top.offer(sr(4, 0.1))

	got := top.results()
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("ids = [%d %d], want [1 2]", got[0].ID, got[1].ID)
	}
}
