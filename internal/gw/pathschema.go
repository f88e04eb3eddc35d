package gw

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/acqgw/ag/internal/cmn"
)

// BlockRequest is the parsed form of a block URL : /<volume_id>/<fs_path>.<file_id>.<file_version>/<block_id>.<block_version>
type BlockRequest struct {
	VolumeID     string
	FSPath       string
	FileID       uint64
	FileVersion  uint64
	BlockID      uint64
	BlockVersion uint64
}

// ManifestRequest is the parsed form of a manifest URL:
// /<volume_id>/<fs_path>.<file_id>.<file_version>/manifest.<mtime_sec>.<mtime_nsec>
type ManifestRequest struct {
	VolumeID    string
	FSPath      string
	FileID      uint64
	FileVersion uint64
	MtimeSec    int64
	MtimeNsec   int64
}

var (
	fileVersionSuffix = regexp.MustCompile(`^(.*)\.(\d+)\.(\d+)$`)
	blockSuffix       = regexp.MustCompile(`^(\d+)\.(\d+)$`)
	manifestSuffix    = regexp.MustCompile(`^manifest\.(\d+)\.(\d+)$`)
)

// ParsePath splits url into (volume_id, fs_path.file_id.file_version,
// trailing segment) and dispatches to ParseBlockPath or ParseManifestPath
// based on the trailing segment's shape. Every failure is cmn.ErrBadRequest
//.
func ParsePath(urlPath string) (*BlockRequest, *ManifestRequest, error) {
	trimmed := strings.Trim(urlPath, "/")
	if trimmed == "" {
		return nil, nil, cmn.Wrap(cmn.ErrBadRequest, "path: empty")
	}
	volumeID, rest, ok := cutOnce(trimmed, "/")
	if !ok {
		return nil, nil, cmn.Wrap(cmn.ErrBadRequest, "path: missing volume segment")
	}
	middle, tail, ok := cutLast(rest, "/")
	if !ok {
		return nil, nil, cmn.Wrap(cmn.ErrBadRequest, "path: missing file/block segments")
	}

	m := fileVersionSuffix.FindStringSubmatch(middle)
	if m == nil {
		return nil, nil, cmn.Wrapf(cmn.ErrBadRequest, "path: %q missing .file_id.file_version suffix", middle)
	}
	fsPath, fileID, fileVersion := m[1], mustU64(m[2]), mustU64(m[3])
	if fsPath == "" {
		fsPath = "/"
	} else if !strings.HasPrefix(fsPath, "/") {
		fsPath = "/" + fsPath
	}

	if mm := manifestSuffix.FindStringSubmatch(tail); mm != nil {
		return nil, &ManifestRequest{
			VolumeID: volumeID, FSPath: fsPath, FileID: fileID, FileVersion: fileVersion,
			MtimeSec: int64(mustU64(mm[1])), MtimeNsec: int64(mustU64(mm[2])),
		}, nil
	}
	if bm := blockSuffix.FindStringSubmatch(tail); bm != nil {
		return &BlockRequest{
			VolumeID: volumeID, FSPath: fsPath, FileID: fileID, FileVersion: fileVersion,
			BlockID: mustU64(bm[1]), BlockVersion: mustU64(bm[2]),
		}, nil, nil
	}
	return nil, nil, cmn.Wrapf(cmn.ErrBadRequest, "path: unrecognized trailing segment %q", tail)
}

func cutOnce(s, sep string) (before, after string, ok bool) {
	i := strings.Index(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

func cutLast(s, sep string) (before, after string, ok bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return "", s, false
	}
	return s[:i], s[i+len(sep):], true
}

func mustU64(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}
