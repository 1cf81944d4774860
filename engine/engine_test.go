package engine

import (
	"strings"
	"testing"
)

func TestDurabilityModeValid(t *testing.T) {
	for _, m := range []DurabilityMode{DurabilityFast, DurabilityBalanced, DurabilityDurable} {
		if !m.Valid() {
			t.Fatalf("%q.Valid() = false, want true", m)
		}
	}
	if DurabilityMode("paranoid").Valid() {
		t.Fatalf("unknown mode reported valid")
	}
}

func TestDSN_FileDatabase(t *testing.T) {
	got := dsn("./shard.db", DefaultOptions(), false)

	for _, want := range []string{
		"journal_mode%28WAL%29",
		"synchronous%28NORMAL%29",
		"busy_timeout%285000%29",
		"cache_size%28-2000%29",
		"temp_store%28MEMORY%29",
		"mmap_size%28",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("dsn = %q, missing %q", got, want)
		}
	}
}

func TestDSN_Memory(t *testing.T) {
	got := dsn(":memory:", DefaultOptions(), true)
	if strings.Contains(got, "journal_mode") {
		t.Fatalf("dsn = %q, WAL has no effect on in-memory databases", got)
	}
	if strings.Contains(got, "mmap_size") {
		t.Fatalf("dsn = %q, mmap has no effect on in-memory databases", got)
	}
}

func TestDSN_Synchronous(t *testing.T) {
	cases := []struct {
		mode DurabilityMode
		want string
	}{
		{DurabilityFast, "synchronous%28OFF%29"},
		{DurabilityBalanced, "synchronous%28NORMAL%29"},
		{DurabilityDurable, "synchronous%28FULL%29"},
	}
	for _, tc := range cases {
		opts := DefaultOptions()
		opts.Durability = tc.mode
		if got := dsn("x.db", opts, false); !strings.Contains(got, tc.want) {
			t.Fatalf("mode %s: dsn = %q, missing %q", tc.mode, got, tc.want)
		}
	}
}

func TestOpen_Validation(t *testing.T) {
	if _, err := Open("", DefaultOptions()); err == nil {
		t.Fatalf("expected error for empty path")
	}
	opts := DefaultOptions()
	opts.Durability = "bogus"
	if _, err := Open("x.db", opts); err == nil {
		t.Fatalf("expected error for unknown durability mode")
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(":memory:", DefaultOptions())
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE t(x INTEGER)"); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT count(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}
