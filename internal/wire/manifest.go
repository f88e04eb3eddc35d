package wire

import "google.golang.org/protobuf/encoding/protowire"

// BlockRange describes a contiguous run of blocks served by one gateway,
// each carrying its own version.
type BlockRange struct {
	StartID       uint64
	EndID         uint64
	GatewayID     string
	BlockVersions []uint64
}

const (
	brFieldStartID = iota + 1
	brFieldEndID
	brFieldGatewayID
	brFieldBlockVersions
)

func (r *BlockRange) marshal(b []byte) []byte {
	b = appendVarintField(b, brFieldStartID, r.StartID)
	b = appendVarintField(b, brFieldEndID, r.EndID)
	b = appendStringField(b, brFieldGatewayID, r.GatewayID)
	for _, v := range r.BlockVersions {
		b = appendVarintField(b, brFieldBlockVersions, v)
	}
	return b
}

func (r *BlockRange) unmarshal(b []byte) error {
	*r = BlockRange{}
	return consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		var err error
		switch num {
		case brFieldStartID:
			r.StartID, b, err = consumeVarint(b)
		case brFieldEndID:
			r.EndID, b, err = consumeVarint(b)
		case brFieldGatewayID:
			r.GatewayID, b, err = consumeString(b)
		case brFieldBlockVersions:
			var v uint64
			v, b, err = consumeVarint(b)
			r.BlockVersions = append(r.BlockVersions, v)
		default:
			return skipField(num, typ, b)
		}
		return b, err
	})
}

// Manifest is the signed, file-level description of block layout
//. Hashing for signature purposes is over the
// encoding with Signature cleared.
type Manifest struct {
	Volume         string
	Path           string
	FileID         uint64
	FileVersion    uint64
	Owner          string
	Size           int64
	MtimeSec       int64
	MtimeNsec      int64
	Ranges         []BlockRange
	SigningGateway string
	Signature      []byte
}

const (
	mfFieldVolume = iota + 1
	mfFieldPath
	mfFieldFileID
	mfFieldFileVersion
	mfFieldOwner
	mfFieldSize
	mfFieldMtimeSec
	mfFieldMtimeNsec
	mfFieldRanges
	mfFieldSigningGateway
	mfFieldSignature
)

func (m *Manifest) Marshal(b []byte) []byte {
	b = appendStringField(b, mfFieldVolume, m.Volume)
	b = appendStringField(b, mfFieldPath, m.Path)
	b = appendVarintField(b, mfFieldFileID, m.FileID)
	b = appendVarintField(b, mfFieldFileVersion, m.FileVersion)
	b = appendStringField(b, mfFieldOwner, m.Owner)
	b = appendVarintField(b, mfFieldSize, uint64(m.Size))
	b = appendVarintField(b, mfFieldMtimeSec, uint64(m.MtimeSec))
	b = appendVarintField(b, mfFieldMtimeNsec, uint64(m.MtimeNsec))
	for i := range m.Ranges {
		sub := m.Ranges[i].marshal(nil)
		b = appendBytesField(b, mfFieldRanges, sub)
	}
	b = appendStringField(b, mfFieldSigningGateway, m.SigningGateway)
	b = appendBytesField(b, mfFieldSignature, m.Signature)
	return b
}

// MarshalUnsigned returns the encoding used as the signature's input: same
// as Marshal but with Signature omitted.
func (m *Manifest) MarshalUnsigned(b []byte) []byte {
	cp := *m
	cp.Signature = nil
	return cp.Marshal(b)
}

func (m *Manifest) Unmarshal(b []byte) error {
	*m = Manifest{}
	return consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		var err error
		switch num {
		case mfFieldVolume:
			m.Volume, b, err = consumeString(b)
		case mfFieldPath:
			m.Path, b, err = consumeString(b)
		case mfFieldFileID:
			m.FileID, b, err = consumeVarint(b)
		case mfFieldFileVersion:
			m.FileVersion, b, err = consumeVarint(b)
		case mfFieldOwner:
			m.Owner, b, err = consumeString(b)
		case mfFieldSize:
			var v uint64
			v, b, err = consumeVarint(b)
			m.Size = int64(v)
		case mfFieldMtimeSec:
			var v uint64
			v, b, err = consumeVarint(b)
			m.MtimeSec = int64(v)
		case mfFieldMtimeNsec:
			var v uint64
			v, b, err = consumeVarint(b)
			m.MtimeNsec = int64(v)
		case mfFieldRanges:
			var raw []byte
			raw, b, err = consumeBytes(b)
			if err == nil {
				var rng BlockRange
				err = rng.unmarshal(raw)
				m.Ranges = append(m.Ranges, rng)
			}
		case mfFieldSigningGateway:
			m.SigningGateway, b, err = consumeString(b)
		case mfFieldSignature:
			m.Signature, b, err = consumeBytes(b)
		default:
			return skipField(num, typ, b)
		}
		return b, err
	})
}
