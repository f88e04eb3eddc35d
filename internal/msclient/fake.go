package msclient

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Fake is an in-memory Client used by package tests and end-to-end test
// scenarios — it records every CreateAll/UpdateAll/DeleteAll call so a
// test can assert the reconciler drove the expected phases.
type Fake struct {
	mtx     sync.Mutex
	entries map[string]Entry

	Created [][]Publish
	Updated [][]Update
	Deleted [][]string
}

func NewFake() *Fake {
	f := &Fake{entries: map[string]Entry{}}
	f.entries["/"] = Entry{Path: "/", Type: Dir, FileID: 1, FileVersion: 1, Generation: 1}
	return f
}

func (f *Fake) Put(e Entry) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.entries[e.Path] = e
}

func (f *Fake) VolumeRoot(context.Context) (Entry, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.entries["/"], nil
}

func (f *Fake) ListDir(_ context.Context, path string) ([]Entry, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	prefix := path
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var out []Entry
	for p, e := range f.entries {
		if p == path || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue // not an immediate child
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *Fake) PathDownload(_ context.Context, workPath []WorkPathEntry) ([]Entry, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	var out []Entry
	var cur string
	for i, w := range workPath {
		if i == 0 {
			cur = w.Name
			continue // the anchor is already fresh; only its descendants are returned
		}
		if cur == "/" {
			cur = "/" + w.Name
		} else {
			cur = cur + "/" + w.Name
		}
		if e, ok := f.entries[cur]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *Fake) CreateAll(_ context.Context, entries []Publish) error {
	f.mtx.Lock()
	f.Created = append(f.Created, entries)
	for _, p := range entries {
		prev := f.entries[p.Path]
		f.entries[p.Path] = Entry{
			Path: p.Path, Type: p.Type, FileID: nextFileID(f.entries),
			FileVersion: 1, Generation: prev.Generation + 1,
		}
	}
	f.mtx.Unlock()
	return nil
}

func (f *Fake) UpdateAll(_ context.Context, entries []Update) error {
	f.mtx.Lock()
	f.Updated = append(f.Updated, entries)
	for _, u := range entries {
		e := f.entries[u.Path]
		e.FileVersion++
		e.Generation++
		f.entries[u.Path] = e
	}
	f.mtx.Unlock()
	return nil
}

func (f *Fake) DeleteAll(_ context.Context, paths []string) error {
	f.mtx.Lock()
	f.Deleted = append(f.Deleted, paths)
	for _, p := range paths {
		delete(f.entries, p)
	}
	f.mtx.Unlock()
	return nil
}

func (f *Fake) PushPubinfo(_ context.Context, path string, size, mtimeSec, mtimeNsec int64) error {
	return nil
}

func nextFileID(m map[string]Entry) uint64 {
	var max uint64
	for _, e := range m {
		if e.FileID > max {
			max = e.FileID
		}
	}
	return max + 1
}
