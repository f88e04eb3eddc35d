package wire

import "google.golang.org/protobuf/encoding/protowire"

// StatReply is the driver's answer to a ReqStat or ReqReversion request:
// the freshly observed size and mtime of the underlying dataset entry.
type StatReply struct {
	Size      int64
	MtimeSec  int64
	MtimeNsec int64
}

const (
	srFieldSize = iota + 1
	srFieldMtimeSec
	srFieldMtimeNsec
)

func (r *StatReply) Marshal(b []byte) []byte {
	b = appendVarintField(b, srFieldSize, uint64(r.Size))
	b = appendVarintField(b, srFieldMtimeSec, uint64(r.MtimeSec))
	b = appendVarintField(b, srFieldMtimeNsec, uint64(r.MtimeNsec))
	return b
}

func (r *StatReply) Unmarshal(b []byte) error {
	*r = StatReply{}
	return consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		var err error
		switch num {
		case srFieldSize:
			var v uint64
			v, b, err = consumeVarint(b)
			r.Size = int64(v)
		case srFieldMtimeSec:
			var v uint64
			v, b, err = consumeVarint(b)
			r.MtimeSec = int64(v)
		case srFieldMtimeNsec:
			var v uint64
			v, b, err = consumeVarint(b)
			r.MtimeNsec = int64(v)
		default:
			return skipField(num, typ, b)
		}
		return b, err
	})
}
