package reversion

import (
	"context"
	"errors"

	"github.com/golang/glog"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/msclient"
	"github.com/acqgw/ag/internal/namespace"
)

// CacheEvictor is the narrow cache surface the reversioner needs.
type CacheEvictor interface {
	EvictFile(fileID, fileVersion uint64)
}

// DriverReversioner invokes a driver's reversion_dataset callback for one
// path, returning freshly observed pubinfo when the driver
// has one.
type DriverReversioner interface {
	Reversion(ctx context.Context, path string, mi *namespace.MapInfo) (*namespace.Pubinfo, error)
}

// AGFSReversion runs the per-entry reversion routine: bump block_version,
// reset the deadline, evict old-version cache entries, call the driver,
// optionally push new pubinfo to the MS. ENOENT (the entry was removed
// under us) is silently absorbed by the caller; any other error is
// returned for the drain pass to log.
func AGFSReversion(ctx context.Context, fs *namespace.AGFS, path string, pubinfo *namespace.Pubinfo, cache CacheEvictor, drv DriverReversioner, ms msclient.Client) error {
	mi, ok := fs.Get(path)
	if !ok {
		return cmn.ErrNotFound
	}

	oldFileID, oldFileVersion := mi.MS.FileID, mi.MS.FileVersion
	newBlockVersion := mi.BlockVersion + 1
	newDeadline := namespace.NowMono() + mi.RevalSec
	fs.MakeCoherentWithAGData(path, newBlockVersion, newDeadline)

	cache.EvictFile(oldFileID, oldFileVersion)

	observed := pubinfo
	if drv != nil {
		p, err := drv.Reversion(ctx, path, mi)
		if err != nil {
			return cmn.Wrapf(err, "reversion: driver callback for %q", path)
		}
		if p != nil {
			observed = p
		}
	}
	if observed != nil {
		fs.MakeCoherentWithDriverData(path, observed.Size, observed.MtimeSec, observed.MtimeNsec)
		if ms != nil {
			if err := ms.PushPubinfo(ctx, path, observed.Size, observed.MtimeSec, observed.MtimeNsec); err != nil {
				return cmn.Wrapf(err, "reversion: push pubinfo for %q", path)
			}
		}
	}
	return nil
}

// Reversioner is the background worker that drains the reversion set. It
// implements cmn.Runner so main can start/stop it uniformly.
type Reversioner struct {
	set   *Set
	fs    func() *namespace.AGFS
	cache CacheEvictor
	drv   DriverReversioner
	ms    msclient.Client

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(set *Set, fs func() *namespace.AGFS, cache CacheEvictor, drv DriverReversioner, ms msclient.Client) *Reversioner {
	return &Reversioner{set: set, fs: fs, cache: cache, drv: drv, ms: ms, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
}

func (r *Reversioner) Run() error {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			return nil
		case <-r.set.Wake():
			r.drainOnce()
		}
	}
}

func (r *Reversioner) Stop(error) {
	close(r.stopCh)
	<-r.doneCh
}

// drainOnce processes the current snapshot lock-free, in deadline order.
// Each error other than not-found is logged on its own; the pass returns
// no error.
func (r *Reversioner) drainOnce() {
	fs := r.fs()
	snap := r.set.drain(fs)
	ctx := context.Background()
	for _, p := range snap {
		err := AGFSReversion(ctx, fs, p.path, p.pubinfo, r.cache, r.drv, r.ms)
		switch {
		case err == nil:
		case errors.Is(err, cmn.ErrNotFound):
			// removed under us: silently dropped.
		default:
			glog.Errorf("reversioner: %v", err)
		}
	}
}
