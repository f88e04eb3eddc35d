package reversion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/msclient"
	"github.com/acqgw/ag/internal/namespace"
)

type fakeEvictor struct {
	mu    sync.Mutex
	calls []uint64
}

func (e *fakeEvictor) EvictFile(fileID, fileVersion uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, fileID)
}

type fakeDriverReversioner struct {
	pubinfo *namespace.Pubinfo
	err     error
	calls   int
}

func (d *fakeDriverReversioner) Reversion(_ context.Context, _ string, _ *namespace.MapInfo) (*namespace.Pubinfo, error) {
	d.calls++
	return d.pubinfo, d.err
}

func TestAGFSReversionMissingPathReturnsNotFound(t *testing.T) {
	fs := namespace.NewAGFS(nil)
	err := AGFSReversion(context.Background(), fs, "/nope", nil, &fakeEvictor{}, nil, nil)
	if !errors.Is(err, cmn.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAGFSReversionBumpsBlockVersionAndEvictsOldVersion(t *testing.T) {
	fs := namespace.NewAGFS(nil)
	fs.Put("/a", &namespace.MapInfo{
		Type: namespace.File, RevalSec: 60, BlockVersion: 3,
		MS: namespace.MSCoherence{FileID: 7, FileVersion: 2},
	})
	ev := &fakeEvictor{}

	if err := AGFSReversion(context.Background(), fs, "/a", nil, ev, nil, nil); err != nil {
		t.Fatalf("AGFSReversion: %v", err)
	}

	mi, _ := fs.Get("/a")
	if mi.BlockVersion != 4 {
		t.Fatalf("expected BlockVersion bumped to 4, got %d", mi.BlockVersion)
	}
	if len(ev.calls) != 1 || ev.calls[0] != 7 {
		t.Fatalf("expected EvictFile(7, ...) called once, got %+v", ev.calls)
	}
}

func TestAGFSReversionAppliesDriverObservedPubinfo(t *testing.T) {
	fs := namespace.NewAGFS(nil)
	fs.Put("/a", &namespace.MapInfo{Type: namespace.File, RevalSec: 60})
	drv := &fakeDriverReversioner{pubinfo: &namespace.Pubinfo{Size: 42, MtimeSec: 1000}}

	if err := AGFSReversion(context.Background(), fs, "/a", nil, &fakeEvictor{}, drv, nil); err != nil {
		t.Fatalf("AGFSReversion: %v", err)
	}
	if drv.calls != 1 {
		t.Fatalf("expected driver callback invoked once, got %d", drv.calls)
	}
	mi, _ := fs.Get("/a")
	if !mi.DriverCacheValid || mi.Pub.Size != 42 || mi.Pub.MtimeSec != 1000 {
		t.Fatalf("expected pubinfo applied, got %+v", mi.Pub)
	}
}

func TestAGFSReversionFallsBackToRequestPubinfoWhenDriverReturnsNone(t *testing.T) {
	fs := namespace.NewAGFS(nil)
	fs.Put("/a", &namespace.MapInfo{Type: namespace.File, RevalSec: 60})
	drv := &fakeDriverReversioner{pubinfo: nil}
	requested := &namespace.Pubinfo{Size: 99}

	if err := AGFSReversion(context.Background(), fs, "/a", requested, &fakeEvictor{}, drv, nil); err != nil {
		t.Fatalf("AGFSReversion: %v", err)
	}
	mi, _ := fs.Get("/a")
	if !mi.DriverCacheValid || mi.Pub.Size != 99 {
		t.Fatalf("expected the request-supplied pubinfo to be applied when the driver returns none, got %+v", mi.Pub)
	}
}

func TestAGFSReversionPropagatesDriverError(t *testing.T) {
	fs := namespace.NewAGFS(nil)
	fs.Put("/a", &namespace.MapInfo{Type: namespace.File, RevalSec: 60})
	drv := &fakeDriverReversioner{err: errors.New("driver exploded")}

	err := AGFSReversion(context.Background(), fs, "/a", nil, &fakeEvictor{}, drv, nil)
	if err == nil {
		t.Fatalf("expected the driver error to propagate")
	}
}

func TestAGFSReversionWithMSClientSucceeds(t *testing.T) {
	fs := namespace.NewAGFS(nil)
	fs.Put("/a", &namespace.MapInfo{Type: namespace.File, RevalSec: 60})
	ms := msclient.NewFake()
	drv := &fakeDriverReversioner{pubinfo: &namespace.Pubinfo{Size: 7, MtimeSec: 1, MtimeNsec: 2}}

	if err := AGFSReversion(context.Background(), fs, "/a", nil, &fakeEvictor{}, drv, ms); err != nil {
		t.Fatalf("AGFSReversion: %v", err)
	}
	// Fake.PushPubinfo does not record calls itself; this just asserts it
	// doesn't error out when wired through.
}

func TestReversionerDrainsOnWakeAndStopsCleanly(t *testing.T) {
	fs := namespace.NewAGFS(nil)
	fs.Put("/a", &namespace.MapInfo{Type: namespace.File, RevalSec: 60})
	set := NewSet()
	ev := &fakeEvictor{}
	r := New(set, func() *namespace.AGFS { return fs }, ev, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run()
	}()

	set.Add("/a", nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mi, _ := fs.Get("/a"); mi.BlockVersion == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	mi, _ := fs.Get("/a")
	if mi.BlockVersion != 1 {
		t.Fatalf("expected the background drain loop to process the queued path, BlockVersion=%d", mi.BlockVersion)
	}

	r.Stop(nil)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to return after Stop")
	}
}

func TestReversionerDrainOnceAbsorbsNotFoundSilently(t *testing.T) {
	fs := namespace.NewAGFS(nil)
	set := NewSet()
	r := New(set, func() *namespace.AGFS { return fs }, &fakeEvictor{}, nil, nil)

	set.Add("/never-existed", nil)
	// drainOnce must not panic or block on a path absent from fs; it's
	// exercised here directly rather than through the goroutine loop.
	r.drainOnce()
}
