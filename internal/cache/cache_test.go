package cache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acqgw/ag/internal/stats"
)

func newTestCache(t *testing.T, soft, hard int64) *Cache {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := stats.NewCacheMetrics(reg)
	return New(NewRAMStore(), soft, hard, m)
}

func TestGetMissOnEmptyCache(t *testing.T) {
	c := newTestCache(t, 1<<20, 1<<21)
	if _, ok := c.Get(Key{FileID: 1, FileVersion: 1, BlockID: 0}); ok {
		t.Fatalf("expected a miss on an empty cache")
	}
}

func TestPutAsyncThenGetHits(t *testing.T) {
	c := newTestCache(t, 1<<20, 1<<21)
	k := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}
	if err := c.PutAsync(k, []byte("payload")); err != nil {
		t.Fatalf("PutAsync: %v", err)
	}
	waitUntil(t, func() bool {
		data, ok := c.Get(k)
		return ok && string(data) == "payload"
	})
}

func TestPutAsyncReturnsEEXISTForConcurrentWriteOfSameKey(t *testing.T) {
	c := newTestCache(t, 1<<20, 1<<21)
	k := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}

	// The first call claims the in-flight slot synchronously, before its
	// goroutine even runs, so a second call racing it must observe EEXIST
	// rather than block.
	if err := c.PutAsync(k, []byte("first")); err != nil {
		t.Fatalf("first PutAsync: %v", err)
	}
	err := c.PutAsync(k, []byte("second"))
	if err == nil {
		t.Fatalf("expected an EEXIST-style error for a concurrent write of the same key")
	}
}

func TestEvictRemovesEntryAndMarksAbsent(t *testing.T) {
	c := newTestCache(t, 1<<20, 1<<21)
	k := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}
	if err := c.PutAsync(k, []byte("x")); err != nil {
		t.Fatalf("PutAsync: %v", err)
	}
	waitUntil(t, func() bool { _, ok := c.Get(k); return ok })

	c.Evict(k)
	if _, ok := c.Get(k); ok {
		t.Fatalf("expected a miss after Evict")
	}
}

func TestEvictFileRemovesOnlyMatchingFileVersion(t *testing.T) {
	c := newTestCache(t, 1<<20, 1<<21)
	k1 := Key{FileID: 1, FileVersion: 1, BlockID: 0, BlockVersion: 1}
	k2 := Key{FileID: 1, FileVersion: 2, BlockID: 0, BlockVersion: 1}
	if err := c.PutAsync(k1, []byte("x")); err != nil {
		t.Fatalf("PutAsync k1: %v", err)
	}
	if err := c.PutAsync(k2, []byte("y")); err != nil {
		t.Fatalf("PutAsync k2: %v", err)
	}
	waitUntil(t, func() bool {
		_, ok1 := c.Get(k1)
		_, ok2 := c.Get(k2)
		return ok1 && ok2
	})

	c.EvictFile(1, 1)
	if _, ok := c.Get(k1); ok {
		t.Fatalf("expected k1 (file version 1) evicted")
	}
	if _, ok := c.Get(k2); !ok {
		t.Fatalf("expected k2 (file version 2) to remain")
	}
}

func TestManifestKeyPacksMtime(t *testing.T) {
	k := ManifestKey(1, 1, 1234, 5678)
	if k.BlockID != ManifestBlockID {
		t.Fatalf("expected sentinel manifest block id, got %d", k.BlockID)
	}
	if k.BlockVersion != PackMtime(1234, 5678) {
		t.Fatalf("expected packed mtime as BlockVersion")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition never became true")
}
