// Package reversion implements the reversioner: a
// deadline-ordered work set drained by a single background thread, and
// the AG_fs_reversion routine that advances one entry's block_version,
// invalidates its caches, and notifies its driver. Follows a
// housekeeping-thread idiom generalized from LRU-age eviction to
// deadline-driven refresh.
package reversion

import (
	"sort"
	"sync"

	"github.com/acqgw/ag/internal/namespace"
)

// pending is one path queued for reversion, with an optional
// driver-observed pubinfo update to apply once the reversion runs.
type pending struct {
	path    string
	pubinfo *namespace.Pubinfo
}

// Set is the deadline-ordered set of pending reversions plus a one-slot
// wake channel; wakeups posted while one is pending coalesce into it.
// Entries are deduplicated by path: re-adding an
// already-pending path just refreshes its pubinfo.
type Set struct {
	mu   sync.Mutex
	m    map[string]*pending
	wake chan struct{}
}

func NewSet() *Set {
	return &Set{m: map[string]*pending{}, wake: make(chan struct{}, 1)}
}

// Add enqueues path (with an optional pubinfo) and signals the drain
// thread, matching add_map_infos / the per-request "enqueue a reversion"
// call in the HTTP path.
func (s *Set) Add(path string, pubinfo *namespace.Pubinfo) {
	s.mu.Lock()
	s.m[path] = &pending{path: path, pubinfo: pubinfo}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// AddAll enqueues every path in paths; used on boot when -n is given and
// after every specfile reload.
func (s *Set) AddAll(paths []string) {
	s.mu.Lock()
	for _, p := range paths {
		if _, exists := s.m[p]; !exists {
			s.m[p] = &pending{path: p}
		}
	}
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Wake returns the channel the drain loop waits on.
func (s *Set) Wake() <-chan struct{} { return s.wake }

// drain swaps the pending set for an empty one and returns a
// deadline-ordered snapshot: ties broken by ascending path string compare
// for a stable, reproducible drain order.
func (s *Set) drain(fs *namespace.AGFS) []*pending {
	s.mu.Lock()
	snap := make([]*pending, 0, len(s.m))
	for _, p := range s.m {
		snap = append(snap, p)
	}
	s.m = map[string]*pending{}
	s.mu.Unlock()

	deadline := make(map[string]int64, len(snap))
	for _, p := range snap {
		if mi, ok := fs.Get(p.path); ok {
			deadline[p.path] = mi.RefreshDeadline
		}
	}
	sort.Slice(snap, func(i, j int) bool {
		di, dj := deadline[snap[i].path], deadline[snap[j].path]
		if di != dj {
			return di < dj
		}
		return snap[i].path < snap[j].path
	})
	return snap
}
