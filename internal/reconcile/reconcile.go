// Package reconcile implements the MS reconciler: a pure
// diff between an old and a new namespace snapshot, followed by a
// fixed-order three-phase MS transform (publish, update, delete).
package reconcile

import (
	"context"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/msclient"
	"github.com/acqgw/ag/internal/namespace"
)

// Equal is the caller-supplied equality predicate on MapInfo used to
// decide to_remain vs. to_update.
type Equal func(old, new *namespace.MapInfo) bool

// EqualBoot is used at boot/initial sync: driver identity is not yet
// comparable against the MS's record.
func EqualBoot(old, new *namespace.MapInfo) bool {
	return old.FilePerm == new.FilePerm && old.RevalSec == new.RevalSec && old.Type == new.Type
}

// EqualReload is used on specfile reload.
func EqualReload(old, new *namespace.MapInfo) bool {
	return old.Driver == new.Driver && old.FilePerm == new.FilePerm &&
		old.RevalSec == new.RevalSec && old.Type == new.Type && old.QueryString == new.QueryString
}

// Diff is the pure, side-effect-free classification step of the
// reconciler.
type Diff struct {
	ToDelete  []string
	ToRemain  []string
	ToUpdate  []string
	ToPublish []string
}

func ComputeDiff(oldFS, newFS map[string]*namespace.MapInfo, equ Equal) Diff {
	var d Diff
	for p, old := range oldFS {
		new, ok := newFS[p]
		if !ok {
			d.ToDelete = append(d.ToDelete, p)
			continue
		}
		if equ(old, new) {
			d.ToRemain = append(d.ToRemain, p)
		} else {
			d.ToUpdate = append(d.ToUpdate, p)
		}
	}
	for p := range newFS {
		if _, ok := oldFS[p]; !ok {
			d.ToPublish = append(d.ToPublish, p)
		}
	}
	return d
}

// Resync runs the diff and the fixed-order three-phase MS transform:
// publish, then update, then delete. Phase order is fixed
// so that in-flight clients can always resolve a path from some
// consistent state even if resync is interrupted. On partial failure the
// failing phase's error is returned and the caller's state is left such
// that a subsequent reload can resume.
func Resync(ctx context.Context, oldFS, newFS map[string]*namespace.MapInfo, ms msclient.Client, equ Equal) (Diff, error) {
	d := ComputeDiff(oldFS, newFS, equ)

	if len(d.ToPublish) > 0 {
		pubs := make([]msclient.Publish, 0, len(d.ToPublish))
		for _, p := range d.ToPublish {
			mi := newFS[p]
			pubs = append(pubs, msclient.Publish{
				Path: p, Type: toMSType(mi.Type), FilePerm: mi.FilePerm,
				RevalSec: mi.RevalSec, QueryString: mi.QueryString, Driver: mi.Driver,
			})
		}
		if err := ms.CreateAll(ctx, pubs); err != nil {
			return d, cmn.Wrap(err, "resync: publish phase")
		}
	}

	if len(d.ToUpdate) > 0 {
		ups := make([]msclient.Update, 0, len(d.ToUpdate))
		for _, p := range d.ToUpdate {
			mi := newFS[p]
			ups = append(ups, msclient.Update{
				Path: p, Type: toMSType(mi.Type), FilePerm: mi.FilePerm,
				RevalSec: mi.RevalSec, QueryString: mi.QueryString, Driver: mi.Driver,
			})
		}
		if err := ms.UpdateAll(ctx, ups); err != nil {
			return d, cmn.Wrap(err, "resync: update phase")
		}
	}

	if len(d.ToDelete) > 0 {
		if err := ms.DeleteAll(ctx, d.ToDelete); err != nil {
			return d, cmn.Wrap(err, "resync: delete phase")
		}
	}

	return d, nil
}

func toMSType(t namespace.EntryType) msclient.EntryType {
	if t == namespace.Dir {
		return msclient.Dir
	}
	return msclient.File
}
