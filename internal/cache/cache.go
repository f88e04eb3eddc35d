package cache

import (
	"sync"
	"time"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"golang.org/x/sync/singleflight"

	lru "github.com/golang/groupcache/lru"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/hk"
	"github.com/acqgw/ag/internal/stats"
)

const (
	evictCheckInterval = 5 * time.Second
)

// Cache is the read-through block/manifest cache.
type Cache struct {
	store Store
	soft  int64
	hard  int64
	// maxEntry, if nonzero, is the largest entry a read will trust: a
	// larger entry found in the backing store is evicted rather than
	// served, a defense against a block-sized cache root being fed a
	// corrupted or truncated neighbor. Zero means unbounded, used for
	// the manifest cache whose entries legitimately vary in size.
	maxEntry int64

	mtx       sync.Mutex
	lru       *lru.Cache // Key -> int64 size, ordered for eviction
	usedBytes int64

	absent *cuckoo.Filter // fast-path NOENT pre-check, avoids touching Store on likely misses

	flightMtx sync.Mutex
	inFlight  map[Key]struct{}
	sf        singleflight.Group

	metrics *stats.CacheMetrics
}

func New(store Store, softLimit, hardLimit int64, m *stats.CacheMetrics) *Cache {
	return NewBounded(store, softLimit, hardLimit, 0, m)
}

// NewBounded is New plus a per-entry size cap; maxEntry of 0 means
// unbounded.
func NewBounded(store Store, softLimit, hardLimit, maxEntry int64, m *stats.CacheMetrics) *Cache {
	c := &Cache{
		store:    store,
		soft:     softLimit,
		hard:     hardLimit,
		maxEntry: maxEntry,
		lru:      lru.New(0), // unbounded entry count; eviction is byte-budget driven
		absent:   cuckoo.NewDefaultCuckooFilter(),
		inFlight: map[Key]struct{}{},
		metrics:  m,
	}
	c.rebuildIndex()
	hk.Reg("cache.evict", c.housekeep, evictCheckInterval)
	return c
}

func (c *Cache) rebuildIndex() {
	for _, k := range c.store.Keys() {
		if data, ok := c.store.Read(k); ok {
			c.noteWrite(k, int64(len(data)))
		}
	}
}

// Get implements the cache's read path: a hit returns the
// serialized bytes and touches LRU; a miss returns ok=false.
func (c *Cache) Get(k Key) (data []byte, ok bool) {
	c.mtx.Lock()
	if _, present := c.lru.Get(k); !present {
		c.mtx.Unlock()
		c.metrics.Miss()
		return nil, false
	}
	c.mtx.Unlock()

	data, ok = c.store.Read(k)
	if !ok {
		c.Evict(k) // index said present, store disagrees: stale index entry
		c.metrics.Miss()
		return nil, false
	}
	if c.maxEntry > 0 && int64(len(data)) > c.maxEntry {
		c.Evict(k) // oversized entry: a corrupted or truncated neighbor, never trusted
		c.metrics.Miss()
		return nil, false
	}
	c.metrics.Hit()
	return data, true
}

// Promote touches the LRU position of k without reading its payload.
func (c *Cache) Promote(k Key) {
	c.mtx.Lock()
	c.lru.Get(k)
	c.mtx.Unlock()
}

// PutAsync takes ownership of data and writes it in the background,
// de-duplicating concurrent writers of the same key. The cache-owning
// caller never blocks on the result; cmn.ErrDataIntegrity-free success
// is implicit, a live future for the same key returns EEXIST so the
// caller can drop its own copy.
func (c *Cache) PutAsync(k Key, data []byte) error {
	c.flightMtx.Lock()
	if _, busy := c.inFlight[k]; busy {
		c.flightMtx.Unlock()
		return cmn.Wrap(cmn.ErrInternal, "cache: put_async EEXIST")
	}
	c.inFlight[k] = struct{}{}
	c.flightMtx.Unlock()

	// singleflight.DoChan launches the write in its own goroutine and
	// returns immediately: a detached, self-freeing block future. The
	// outer inFlight set (not singleflight itself) is what gives us the
	// non-blocking EEXIST semantics above.
	c.sf.DoChan(flightKey(k), func() (any, error) {
		c.blockForCapacity(int64(len(data)))
		c.store.Write(k, data)
		c.noteWrite(k, int64(len(data)))
		c.absent.Delete(keyBytes(k))

		c.flightMtx.Lock()
		delete(c.inFlight, k)
		c.flightMtx.Unlock()
		return nil, nil
	})
	return nil
}

// Evict removes a single entry.
func (c *Cache) Evict(k Key) {
	c.mtx.Lock()
	c.lru.Remove(k)
	c.mtx.Unlock()
	c.store.Delete(k)
	c.absent.InsertUnique(keyBytes(k))
}

// EvictFile removes every block and manifest for (fileID, fileVersion),
// used on reversion. The backing store has no native
// prefix-scan, so we walk the tracked key set.
func (c *Cache) EvictFile(fileID, fileVersion uint64) {
	for _, k := range c.store.Keys() {
		if k.FileID == fileID && k.FileVersion == fileVersion {
			c.Evict(k)
		}
	}
}

// MaybeAbsent returns true if k is known-absent per the cuckoo filter, a
// fast negative pre-check to skip even the LRU/store lookup on likely
// misses.
func (c *Cache) MaybeAbsent(k Key) bool {
	return c.absent.Lookup(keyBytes(k))
}

func (c *Cache) noteWrite(k Key, size int64) {
	c.mtx.Lock()
	c.lru.Add(k, size)
	c.usedBytes += size
	c.mtx.Unlock()
}

func (c *Cache) blockForCapacity(incoming int64) {
	for {
		c.mtx.Lock()
		over := c.usedBytes+incoming > c.hard
		c.mtx.Unlock()
		if !over {
			return
		}
		if !c.evictOldest() {
			return // nothing left to evict; let the put proceed over-budget rather than deadlock
		}
	}
}

// housekeep implements the background evictor: while used bytes exceed the
// soft limit, drop entries in LRU order.
func (c *Cache) housekeep() time.Duration {
	for {
		c.mtx.Lock()
		over := c.usedBytes > c.soft
		c.mtx.Unlock()
		if !over {
			break
		}
		if !c.evictOldest() {
			break
		}
	}
	c.metrics.SetUsedBytes(c.usedBytes)
	return evictCheckInterval
}

func (c *Cache) evictOldest() bool {
	c.mtx.Lock()
	k, size, ok := c.lru.RemoveOldest()
	if ok {
		c.usedBytes -= size.(int64)
	}
	c.mtx.Unlock()
	if !ok {
		return false
	}
	key := k.(Key)
	c.store.Delete(key)
	c.absent.InsertUnique(keyBytes(key))
	return true
}

func flightKey(k Key) string {
	return itoa(k.FileID) + "/" + itoa(k.FileVersion) + "/" + itoa(k.BlockID) + "/" + itoa(k.BlockVersion)
}

func keyBytes(k Key) []byte {
	return []byte(flightKey(k))
}
