// Package msclient specifies the narrow interface the AG uses to talk to
// the metadata server (MS). The low-level MS RPC client is an external
// collaborator; this package only specifies the object model and the
// operations the rest of the AG depends on.
package msclient

import "context"

// EntryType mirrors namespace.EntryType without importing it, to keep this
// package free of a dependency on the namespace package (the namespace
// package depends on this one, not the reverse).
type EntryType int

const (
	File EntryType = iota
	Dir
)

// Entry is one path's MS-coherence record as returned by ListDir or
// PathDownload.
type Entry struct {
	Path        string
	Type        EntryType
	FileID      uint64
	FileVersion uint64
	WriteNonce  uint64
	NumChildren int
	Generation  uint64
	Capacity    int64
}

// WorkPathEntry is one element of the batched path-download work list built
// by refresh_path_metadata: the first entry is the
// deepest already-fresh ancestor, all following entries are stale
// descendants that the MS must resolve starting from that anchor.
type WorkPathEntry struct {
	Name        string
	FileID      uint64
	FileVersion uint64
	WriteNonce  uint64
	NumChildren int
	Generation  uint64
	Capacity    int64
}

// Publish, Update are the reconciler's per-path payloads.
type Publish struct {
	Path        string
	Type        EntryType
	FilePerm    uint32
	RevalSec    int64
	QueryString string
	Driver      string
}

type Update = Publish

// Client is the narrow MS RPC surface the AG's namespace, reconciler and
// reversioner depend on.
type Client interface {
	// VolumeRoot returns the MS's current record for "/".
	VolumeRoot(ctx context.Context) (Entry, error)

	// ListDir lists the immediate children of a directory path, used by
	// download_MS_fs_map's frontier BFS.
	ListDir(ctx context.Context, path string) ([]Entry, error)

	// PathDownload resolves a work-path starting from the fresh anchor,
	// returning the now-coherent entries for every element after it
	//.
	PathDownload(ctx context.Context, workPath []WorkPathEntry) ([]Entry, error)

	// CreateAll, UpdateAll, DeleteAll implement the reconciler's
	// three fixed phases.
	CreateAll(ctx context.Context, entries []Publish) error
	UpdateAll(ctx context.Context, entries []Update) error
	DeleteAll(ctx context.Context, paths []string) error

	// PushPubinfo notifies the MS of a driver-observed size/mtime change
	// following a reversion.
	PushPubinfo(ctx context.Context, path string, size, mtimeSec, mtimeNsec int64) error
}
