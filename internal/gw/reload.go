package gw

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/golang/glog"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/namespace"
	"github.com/acqgw/ag/internal/reconcile"
	"github.com/acqgw/ag/internal/specfile"
)

// BundleFetcher fetches the MS-issued driver bundle's specfile part when
// no local -s override is configured.
type BundleFetcher interface {
	FetchSpecfile(ctx context.Context) (string, error) // base64+lz4 encoded
}

// ReloadLoop is the specfile-reload thread: it waits on
// Trigger (posted by the control socket's RECONF and REPUBLISH events; no
// MS view-change callback is wired to it) and re-parses, reconciles, and
// swaps the live namespace on success.
type ReloadLoop struct {
	state   *State
	fetcher BundleFetcher
	statedb *specfile.StateDB

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewReloadLoop(state *State, fetcher BundleFetcher, statedb *specfile.StateDB) *ReloadLoop {
	return &ReloadLoop{
		state: state, fetcher: fetcher, statedb: statedb,
		wake: make(chan struct{}, 1), stopCh: make(chan struct{}), doneCh: make(chan struct{}),
	}
}

// Trigger schedules a reload attempt; duplicate triggers before the loop
// wakes up are coalesced into one attempt.
func (rl *ReloadLoop) Trigger() {
	select {
	case rl.wake <- struct{}{}:
	default:
	}
}

func (rl *ReloadLoop) Run() error {
	defer close(rl.doneCh)
	for {
		select {
		case <-rl.stopCh:
			return nil
		case <-rl.wake:
			if err := rl.attempt(); err != nil {
				glog.Errorf("specfile reload: %v", err)
			}
		}
	}
}

func (rl *ReloadLoop) Stop(error) {
	close(rl.stopCh)
	<-rl.doneCh
}

// attempt runs one fetch-parse-validate-swap cycle. Any failure leaves the
// live state untouched.
func (rl *ReloadLoop) attempt() error {
	ctx := context.Background()

	text, err := rl.fetchText(ctx)
	if err != nil {
		return cmn.Wrap(err, "reload: fetch specfile")
	}
	doc, err := specfile.Parse(strings.NewReader(text))
	if err != nil {
		return cmn.Wrap(err, "reload: parse")
	}
	newMap := specfile.BuildFS(doc)

	liveFS := rl.state.FS()
	liveSnap := liveFS.Snapshot()

	// Step 2: copy AG-runtime fields forward for paths present in both.
	for p, newMI := range newMap {
		if oldMI, ok := liveSnap[p]; ok {
			newMI.CoordinatorID = oldMI.CoordinatorID
			newMI.CacheValid = oldMI.CacheValid
			newMI.MS = oldMI.MS
			newMI.DriverCacheValid = oldMI.DriverCacheValid
			newMI.Pub = oldMI.Pub
			newMI.BlockVersion = oldMI.BlockVersion
			newMI.RefreshDeadline = oldMI.RefreshDeadline
		}
	}

	newFS := namespace.NewAGFS(rl.state.MS)
	for p, mi := range newMap {
		newFS.Put(p, mi)
	}
	if err := newFS.Validate(); err != nil {
		return cmn.Wrap(err, "reload: validate")
	}

	if _, err := reconcile.Resync(ctx, liveSnap, newMap, rl.state.MS, reconcile.EqualReload); err != nil {
		return cmn.Wrap(err, "reload: resync")
	}

	rl.state.SwapFS(newFS)

	paths := make([]string, 0, len(newMap))
	for p := range newMap {
		paths = append(paths, p)
	}
	rl.state.Reversions.AddAll(paths)

	cfg := cmn.GCO.Get().Clone()
	for k, v := range doc.Config {
		cfg.Extra[k] = v
	}
	cmn.GCO.Put(cfg)

	if rl.statedb != nil {
		if err := rl.statedb.Sync(newMap); err != nil {
			glog.Errorf("reload: state db sync: %v", err)
		}
	}
	return nil
}

func (rl *ReloadLoop) fetchText(ctx context.Context) (string, error) {
	if path := cmn.GCO.Get().SpecfilePath; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	if rl.fetcher == nil {
		return "", cmn.Wrap(cmn.ErrStructural, "reload: no local specfile and no bundle fetcher configured")
	}
	encoded, err := rl.fetcher.FetchSpecfile(ctx)
	if err != nil {
		return "", err
	}
	raw, err := specfile.DecodeBundlePart(encoded)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
