// Package cache implements the content-addressed, read-through block and
// manifest cache: soft/hard byte limits with LRU eviction under a
// housekeeping goroutine, async single-flight writes, and a pluggable
// backing store.
package cache

import "math"

// ManifestBlockID is the sentinel block_id used by manifest cache keys:
// (file_id, file_version, -1, packed(mtime_sec, mtime_nsec)).
const ManifestBlockID = math.MaxUint64

// Key identifies one cached entry.
type Key struct {
	FileID       uint64
	FileVersion  uint64
	BlockID      uint64
	BlockVersion uint64
}

// ManifestKey builds the cache key for a file's manifest as of a given
// mtime, packing (mtime_sec, mtime_nsec) into the BlockVersion slot.
func ManifestKey(fileID, fileVersion uint64, mtimeSec, mtimeNsec int64) Key {
	return Key{
		FileID: fileID, FileVersion: fileVersion, BlockID: ManifestBlockID,
		BlockVersion: PackMtime(mtimeSec, mtimeNsec),
	}
}

func PackMtime(sec, nsec int64) uint64 {
	return uint64(sec)<<32 | uint64(uint32(nsec))
}
