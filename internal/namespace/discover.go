package namespace

import (
	"context"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/msclient"
)

// DownloadMSFSMap implements download_MS_fs_map: a frontier
// BFS starting from the volume root, or from the set of cached
// directories whose child count disagrees with the specfile. For every
// frontier directory it calls MS ListDir and merges every child in with
// merge_new = true (new entries are inserted, existing ones updated).
func (fs *AGFS) DownloadMSFSMap(ctx context.Context, frontier []string) error {
	if len(frontier) == 0 {
		root, err := fs.ms.VolumeRoot(ctx)
		if err != nil {
			return cmn.Wrap(err, "download_MS_fs_map: volume root")
		}
		fs.mu.Lock()
		fs.m["/"] = &MapInfo{
			Type: Dir, FilePerm: 0o555, CacheValid: true,
			MS: MSCoherence{FileID: root.FileID, FileVersion: root.FileVersion, WriteNonce: root.WriteNonce,
				NumChildren: root.NumChildren, Generation: root.Generation, Capacity: root.Capacity},
		}
		fs.mu.Unlock()
		frontier = []string{"/"}
	}

	for len(frontier) > 0 {
		dir := frontier[0]
		frontier = frontier[1:]

		children, err := fs.ms.ListDir(ctx, dir)
		if err != nil {
			return cmn.Wrapf(err, "download_MS_fs_map: listdir %q", dir)
		}
		for _, c := range children {
			mi := accumulateFromMDEntry(c)
			fs.mergeNew(c.Path, mi)
			if mi.Type == Dir {
				frontier = append(frontier, c.Path)
			}
		}
	}
	return nil
}

// StaleDirFrontier returns directories whose cached NumChildren disagrees
// with what the specfile expects, used to seed DownloadMSFSMap on a
// targeted re-scan instead of a full-tree walk.
func (fs *AGFS) StaleDirFrontier(expectedChildren map[string]int) []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var out []string
	for p, want := range expectedChildren {
		mi, ok := fs.m[p]
		if !ok || mi.Type != Dir {
			continue
		}
		if !mi.CacheValid || mi.MS.NumChildren != want {
			out = append(out, p)
		}
	}
	return out
}

func accumulateFromMDEntry(e msclient.Entry) *MapInfo {
	return &MapInfo{
		Type:       entryTypeFromMS(e.Type),
		FilePerm:   0o444,
		CacheValid: true,
		MS: MSCoherence{
			FileID: e.FileID, FileVersion: e.FileVersion, WriteNonce: e.WriteNonce,
			NumChildren: e.NumChildren, Generation: e.Generation, Capacity: e.Capacity,
		},
	}
}

// mergeNew implements merge_new = true: unknown entries are inserted,
// known entries are updated in place (MS-coherence block and CacheValid;
// specfile-derived fields are kept).
func (fs *AGFS) mergeNew(path string, mi *MapInfo) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if cur, ok := fs.m[path]; ok {
		upd := cur.Clone()
		upd.MS, upd.CacheValid = mi.MS, true
		fs.m[path] = upd
		return
	}
	fs.m[path] = mi
}
