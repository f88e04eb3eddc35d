package wire

import "google.golang.org/protobuf/encoding/protowire"

// DriverRequest is what the AG sends to a worker process over the framed
// pipe protocol for a single block/manifest/stat/reversion exchange
//.
type DriverRequest struct {
	Kind                  DriverRequestKind
	FileID                uint64
	FileVersion           uint64
	BlockID               uint64
	BlockVersion          uint64
	ManifestTimestampSec  int64
	ManifestTimestampNsec int64
	IOHints               string
	Path                  string
	QueryString           string
}

type DriverRequestKind int32

const (
	ReqBlock DriverRequestKind = iota
	ReqStat
	ReqReversion
)

const (
	drFieldKind = iota + 1
	drFieldFileID
	drFieldFileVersion
	drFieldBlockID
	drFieldBlockVersion
	drFieldManifestTimestampSec
	drFieldManifestTimestampNsec
	drFieldIOHints
	drFieldPath
	drFieldQueryString
)

func (r *DriverRequest) Marshal(b []byte) []byte {
	b = appendVarintField(b, drFieldKind, uint64(r.Kind))
	b = appendVarintField(b, drFieldFileID, r.FileID)
	b = appendVarintField(b, drFieldFileVersion, r.FileVersion)
	b = appendVarintField(b, drFieldBlockID, r.BlockID)
	b = appendVarintField(b, drFieldBlockVersion, r.BlockVersion)
	b = appendVarintField(b, drFieldManifestTimestampSec, uint64(r.ManifestTimestampSec))
	b = appendVarintField(b, drFieldManifestTimestampNsec, uint64(r.ManifestTimestampNsec))
	b = appendStringField(b, drFieldIOHints, r.IOHints)
	b = appendStringField(b, drFieldPath, r.Path)
	b = appendStringField(b, drFieldQueryString, r.QueryString)
	return b
}

func (r *DriverRequest) Unmarshal(b []byte) error {
	*r = DriverRequest{}
	return consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		var err error
		switch num {
		case drFieldKind:
			var v uint64
			v, b, err = consumeVarint(b)
			r.Kind = DriverRequestKind(v)
		case drFieldFileID:
			r.FileID, b, err = consumeVarint(b)
		case drFieldFileVersion:
			r.FileVersion, b, err = consumeVarint(b)
		case drFieldBlockID:
			r.BlockID, b, err = consumeVarint(b)
		case drFieldBlockVersion:
			r.BlockVersion, b, err = consumeVarint(b)
		case drFieldManifestTimestampSec:
			var v uint64
			v, b, err = consumeVarint(b)
			r.ManifestTimestampSec = int64(v)
		case drFieldManifestTimestampNsec:
			var v uint64
			v, b, err = consumeVarint(b)
			r.ManifestTimestampNsec = int64(v)
		case drFieldIOHints:
			r.IOHints, b, err = consumeString(b)
		case drFieldPath:
			r.Path, b, err = consumeString(b)
		case drFieldQueryString:
			r.QueryString, b, err = consumeString(b)
		default:
			return skipField(num, typ, b)
		}
		return b, err
	})
}
