package vecshard

import (
	"context"
	"errors"
	"testing"

	"github.com/viant/vecshard/config"
	"github.com/viant/vecshard/vecsync"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

func TestEngine_InsertSearchDelete(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	shardID, err := e.CreateShard(ctx, 2)
	if err != nil {
		t.Fatalf("CreateShard failed: %v", err)
	}

	ids, _, err := e.InsertBatch(ctx, shardID, [][]float32{{1, 0}, {0, 1}, {0.9, 0.1}}, nil)
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	got, err := e.Search(ctx, shardID, []float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[0] || got[1].ID != ids[2] {
		t.Fatalf("search results = %+v, want ids [%d %d]", got, ids[0], ids[2])
	}

	if _, err := e.Delete(ctx, shardID, ids[0]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := e.Get(ctx, shardID, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete = %v, want ErrNotFound", err)
	}
	got, err = e.Search(ctx, shardID, []float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) == 0 || got[0].ID == ids[0] {
		t.Fatalf("deleted record still surfaces in search: %+v", got)
	}
}

func TestEngine_Metadata(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	shardID, err := e.CreateShard(ctx, 2)
	if err != nil {
		t.Fatalf("CreateShard failed: %v", err)
	}
	id, _, err := e.Insert(ctx, shardID, []float32{1, 1}, []byte(`{"doc":"a"}`))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	rec, err := e.Get(ctx, shardID, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(rec.Metadata) != `{"doc":"a"}` {
		t.Fatalf("metadata = %q", rec.Metadata)
	}
	got, err := e.Search(ctx, shardID, []float32{1, 1}, 1, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 1 || string(got[0].Metadata) != `{"doc":"a"}` {
		t.Fatalf("search metadata = %+v", got)
	}
}

func TestEngine_SyncBetweenEngines(t *testing.T) {
	ctx := context.Background()
	a := newEngine(t)
	b := newEngine(t)

	srcShard, err := a.CreateShard(ctx, 2)
	if err != nil {
		t.Fatalf("CreateShard failed: %v", err)
	}
	dstShard, err := b.CreateShard(ctx, 2)
	if err != nil {
		t.Fatalf("CreateShard failed: %v", err)
	}
	if _, _, err := a.InsertBatch(ctx, srcShard, [][]float32{{1, 0}, {0, 1}}, nil); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	peer, release, err := b.Replica(ctx, dstShard)
	if err != nil {
		t.Fatalf("Replica failed: %v", err)
	}
	defer release()

	stats, err := a.Sync(ctx, srcShard, peer, vecsync.Push)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if stats.Applied != 2 {
		t.Fatalf("applied = %d, want 2", stats.Applied)
	}

	got, err := b.Search(ctx, dstShard, []float32{1, 0}, 1, 0)
	if err != nil {
		t.Fatalf("Search on destination failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("destination search returned %d results, want 1", len(got))
	}

	st, err := b.Stats(ctx, dstShard)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Live != 2 {
		t.Fatalf("destination live = %d, want 2", st.Live)
	}
}

func TestEngine_DropShard(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	shardID, err := e.CreateShard(ctx, 2)
	if err != nil {
		t.Fatalf("CreateShard failed: %v", err)
	}
	if err := e.DropShard(ctx, shardID); err != nil {
		t.Fatalf("DropShard failed: %v", err)
	}
	if _, _, err := e.Insert(ctx, shardID, []float32{1, 0}, nil); !errors.Is(err, ErrShardNotFound) {
		t.Fatalf("Insert after drop = %v, want ErrShardNotFound", err)
	}
}
