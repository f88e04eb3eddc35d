// Package gw hosts the AG's top-level state and its HTTP, control-socket,
// and specfile-reload entry points: a per-process singleton with an
// explicit locking discipline, and an HTTP request pipeline that parses,
// looks up, checks for a redirect, then dispatches.
package gw

import (
	"sync"
	"time"

	"github.com/acqgw/ag/internal/cache"
	"github.com/acqgw/ag/internal/codec"
	"github.com/acqgw/ag/internal/driver"
	"github.com/acqgw/ag/internal/msclient"
	"github.com/acqgw/ag/internal/namespace"
	"github.com/acqgw/ag/internal/reversion"
	"github.com/acqgw/ag/internal/stats"
)

// State is the AG's process-wide singleton. Lock order, matching the
// namespace package's own doc comment, is state -> fs -> config; State
// never calls into AGFS or MS while holding stateLock for longer than a
// pointer swap.
type State struct {
	fsLock sync.RWMutex
	fs     *namespace.AGFS

	stateLock sync.Mutex // serializes reload/reconf attempts against each other

	GatewayID  string
	BlockSize  int64
	Signer     *codec.Signer
	Keys       codec.KeyStore
	Blocks     *cache.Cache
	Manifests  *cache.Cache
	Supervisor *driver.Supervisor
	Reversions *reversion.Set
	MS         msclient.Client
	Verbs      Verbs

	ReqTimeout time.Duration
}

// FS returns the live namespace under a read lock on the pointer itself;
// the returned *AGFS has its own internal locking for entry access.
func (s *State) FS() *namespace.AGFS {
	s.fsLock.RLock()
	defer s.fsLock.RUnlock()
	return s.fs
}

// SwapFS installs newFS as the live namespace, performed under
// state.fsLock write as the last step of a successful reload.
func (s *State) SwapFS(newFS *namespace.AGFS) {
	s.fsLock.Lock()
	s.fs = newFS
	s.fsLock.Unlock()
}

// IsCoordinator reports whether this gateway is the coordinator of record
// for mi.
func (s *State) IsCoordinator(mi *namespace.MapInfo) bool {
	return mi.CoordinatorID == "" || mi.CoordinatorID == s.GatewayID
}
