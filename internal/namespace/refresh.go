package namespace

import (
	"context"
	"strings"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/msclient"
)

// RefreshPathMetadata implements refresh_path_metadata: it
// guarantees path's MapInfo is MS-coherent before the caller makes any
// coordination decision off of it.
func (fs *AGFS) RefreshPathMetadata(ctx context.Context, path string) error {
	chain := append(append([]string{}, Prefixes(path)...), path)
	if path == "/" {
		chain = []string{"/"}
	}

	// Step 1: clone every entry along the chain under a read lock.
	fs.mu.RLock()
	clones := make(map[string]*MapInfo, len(chain))
	for _, p := range chain {
		mi, ok := fs.m[p]
		if !ok {
			fs.mu.RUnlock()
			return cmn.Wrapf(cmn.ErrNotFound, "refresh_path_metadata: %q not present", p)
		}
		clones[p] = mi.Clone()
	}
	fs.mu.RUnlock()

	// Step 2: find the deepest already-fresh ancestor; everything after
	// it is a stale descendant that must go on the MS work path.
	now := NowMono()
	anchorIdx := 0
	for i, p := range chain {
		c := clones[p]
		if c.CacheValid && c.Fresh(now) {
			anchorIdx = i
		} else {
			break
		}
	}
	if c := clones[path]; c.CacheValid && c.Fresh(now) {
		// Requested path itself is already MS-coherent and fresh.
		return nil
	}

	workPath := make([]msclient.WorkPathEntry, 0, len(chain)-anchorIdx)
	for i := anchorIdx; i < len(chain); i++ {
		c := clones[chain[i]]
		name := chain[i]
		if i > anchorIdx {
			name = lastComponent(chain[i])
		}
		workPath = append(workPath, msclient.WorkPathEntry{
			Name: name, FileID: c.MS.FileID, FileVersion: c.MS.FileVersion,
			WriteNonce: c.MS.WriteNonce, NumChildren: c.MS.NumChildren,
			Generation: c.MS.Generation, Capacity: c.MS.Capacity,
		})
	}

	// Step 3: one batched MS path-download, resolved from the anchor.
	results, err := fs.ms.PathDownload(ctx, workPath)
	if err != nil {
		return cmn.Wrap(err, "refresh_path_metadata: MS path-download")
	}

	// Step 4: merge results into the clones (no new children added here).
	// The MS returns entries only for the stale descendants, not the anchor.
	notMerged := map[string]bool{}
	byPath := map[string]msclient.Entry{}
	cur := chain[anchorIdx]
	for i := anchorIdx; i < len(chain); i++ {
		if i > anchorIdx {
			if cur == "/" {
				cur = "/" + lastComponent(chain[i])
			} else {
				cur = cur + "/" + lastComponent(chain[i])
			}
			byPath[cur] = msclient.Entry{}
		}
	}
	for _, r := range results {
		byPath[r.Path] = r
	}
	for p, e := range byPath {
		if e.Path == "" {
			notMerged[p] = true
			continue
		}
		c := clones[p]
		c.MS = MSCoherence{
			FileID: e.FileID, FileVersion: e.FileVersion, WriteNonce: e.WriteNonce,
			NumChildren: e.NumChildren, Generation: e.Generation, Capacity: e.Capacity,
		}
		c.CacheValid = true
	}

	// Step 5: merge clones back under the write lock, merge_new = false:
	// update in place, unknown entries are reported but not inserted.
	fs.mu.Lock()
	for p, c := range clones {
		if _, ok := fs.m[p]; ok {
			fs.m[p] = c
		} else {
			notMerged[p] = true
		}
	}
	fs.mu.Unlock()

	if len(notMerged) > 0 {
		paths := make([]string, 0, len(notMerged))
		for p := range notMerged {
			paths = append(paths, p)
		}
		return cmn.Wrapf(cmn.ErrNotFound, "refresh_path_metadata: not merged: %s", strings.Join(paths, ","))
	}
	return nil
}

func lastComponent(path string) string {
	trimmed := strings.TrimRight(path, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
