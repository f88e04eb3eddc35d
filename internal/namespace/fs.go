package namespace

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/acqgw/ag/internal/msclient"
)

// AGFS is the namespace: a mapping from absolute normalized path to
// MapInfo, guarded by one RWMutex, plus a reference to the MS client
//. Lock order, when AGFS's lock is held alongside the
// top-level state's locks, is state -> fs -> config ; AGFS never performs network I/O while holding
// its own write lock.
type AGFS struct {
	mu sync.RWMutex
	m  map[string]*MapInfo
	ms msclient.Client
}

// NewAGFS creates an empty namespace with just the root invariant
// satisfied: "/" present, type Dir. Callers
// typically follow this with a specfile parse merge and an MS resync.
func NewAGFS(ms msclient.Client) *AGFS {
	fs := &AGFS{m: map[string]*MapInfo{}, ms: ms}
	fs.m["/"] = &MapInfo{Type: Dir, FilePerm: 0o555, CacheValid: true}
	return fs
}

func (fs *AGFS) MS() msclient.Client { return fs.ms }

// Get returns the entry at path under a read lock; ok is false if it is
// not present.
func (fs *AGFS) Get(path string) (*MapInfo, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	mi, ok := fs.m[path]
	return mi, ok
}

// Snapshot returns a shallow copy of the whole path set, used by the
// reconciler and by enqueueing every path into the reversioner after a
// reload.
func (fs *AGFS) Snapshot() map[string]*MapInfo {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make(map[string]*MapInfo, len(fs.m))
	for k, v := range fs.m {
		out[k] = v
	}
	return out
}

// Put installs or replaces an entry under the write lock. Used when
// building a namespace from a parsed specfile.
func (fs *AGFS) Put(path string, mi *MapInfo) {
	fs.mu.Lock()
	fs.m[path] = mi
	fs.mu.Unlock()
}

// Delete removes path under the write lock.
func (fs *AGFS) Delete(path string) {
	fs.mu.Lock()
	delete(fs.m, path)
	fs.mu.Unlock()
}

// --- Coherence operations ---

// MakeCoherentWithMSData sets the MS-coherence block and flips CacheValid
// true. Coherence monotonicity: a cache_valid block may only
// be replaced by another cache_valid block; this function never produces
// an invalid block, only InvalidateCachedMetadata does.
func (fs *AGFS) MakeCoherentWithMSData(path string, e msclient.Entry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	mi, ok := fs.m[path]
	if !ok {
		return
	}
	mi.MS = MSCoherence{
		FileID: e.FileID, FileVersion: e.FileVersion, WriteNonce: e.WriteNonce,
		NumChildren: e.NumChildren, Generation: e.Generation, Capacity: e.Capacity,
	}
	mi.CacheValid = true
}

func (fs *AGFS) MakeCoherentWithDriverData(path string, size, mtimeSec, mtimeNsec int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	mi, ok := fs.m[path]
	if !ok {
		return
	}
	mi.Pub = Pubinfo{Size: size, MtimeSec: mtimeSec, MtimeNsec: mtimeNsec}
	mi.DriverCacheValid = true
}

func (fs *AGFS) MakeCoherentWithAGData(path string, blockVersion uint64, refreshDeadline int64) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	mi, ok := fs.m[path]
	if !ok {
		return
	}
	mi.BlockVersion = blockVersion
	mi.RefreshDeadline = refreshDeadline
}

// InvalidateCachedMetadata flips CacheValid false and randomizes
// WriteNonce so the next MS compare is forced to see a mismatch and
// refresh.
func (fs *AGFS) InvalidateCachedMetadata(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	mi, ok := fs.m[path]
	if !ok {
		return
	}
	mi.CacheValid = false
	mi.MS.WriteNonce = rand.Uint64()
}

// --- path helpers ---

// Prefixes returns every proper prefix of path, shallowest first, always
// including "/".
func Prefixes(path string) []string {
	if path == "/" || path == "" {
		return nil
	}
	clean := strings.Trim(path, "/")
	parts := strings.Split(clean, "/")
	out := make([]string, 0, len(parts))
	cur := ""
	for _, p := range parts[:len(parts)-1] {
		cur += "/" + p
		out = append(out, cur)
	}
	return append([]string{"/"}, out...)
}

func depth(path string) int {
	if path == "/" {
		return 0
	}
	return strings.Count(strings.Trim(path, "/"), "/") + 1
}
