// Package wire implements the protobuf-wire-compatible messages exchanged
// over the network and with driver subprocesses.
// Messages are hand-marshaled with google.golang.org/protobuf/encoding/protowire
// rather than generated by protoc: the wire format is simple and stable
// enough that a generator step buys nothing, and it keeps the gateway's
// vendor footprint to the one low-level package instead of also carrying
// codegen'd message types for every driver version.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// SignedHeader is the fixed header prefixing every signed block on the wire
//.
type SignedHeader struct {
	Volume         string
	FileID         uint64
	FileVersion    uint64
	BlockID        uint64
	BlockVersion   uint64
	PayloadSHA256  []byte
	SigningGateway string
	Signature      []byte
}

const (
	shFieldVolume = iota + 1
	shFieldFileID
	shFieldFileVersion
	shFieldBlockID
	shFieldBlockVersion
	shFieldPayloadSHA256
	shFieldSigningGateway
	shFieldSignature
)

// Marshal appends the wire encoding of h to b and returns the result.
func (h *SignedHeader) Marshal(b []byte) []byte {
	b = protowire.AppendTag(b, shFieldVolume, protowire.BytesType)
	b = protowire.AppendString(b, h.Volume)
	b = protowire.AppendTag(b, shFieldFileID, protowire.VarintType)
	b = protowire.AppendVarint(b, h.FileID)
	b = protowire.AppendTag(b, shFieldFileVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, h.FileVersion)
	b = protowire.AppendTag(b, shFieldBlockID, protowire.VarintType)
	b = protowire.AppendVarint(b, h.BlockID)
	b = protowire.AppendTag(b, shFieldBlockVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, h.BlockVersion)
	b = protowire.AppendTag(b, shFieldPayloadSHA256, protowire.BytesType)
	b = protowire.AppendBytes(b, h.PayloadSHA256)
	b = protowire.AppendTag(b, shFieldSigningGateway, protowire.BytesType)
	b = protowire.AppendString(b, h.SigningGateway)
	b = protowire.AppendTag(b, shFieldSignature, protowire.BytesType)
	b = protowire.AppendBytes(b, h.Signature)
	return b
}

// MarshalUnsigned is identical to Marshal but with the Signature field
// cleared, used as the byte string that gets signed/verified.
func (h *SignedHeader) MarshalUnsigned(b []byte) []byte {
	cp := *h
	cp.Signature = nil
	return cp.Marshal(b)
}

// Unmarshal decodes b into h, returning the number of bytes consumed.
func (h *SignedHeader) Unmarshal(b []byte) error {
	*h = SignedHeader{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("signed header: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case shFieldVolume:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return fmt.Errorf("signed header: bad volume: %w", protowire.ParseError(m))
			}
			h.Volume, b = v, b[m:]
		case shFieldFileID:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("signed header: bad file_id: %w", protowire.ParseError(m))
			}
			h.FileID, b = v, b[m:]
		case shFieldFileVersion:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("signed header: bad file_version: %w", protowire.ParseError(m))
			}
			h.FileVersion, b = v, b[m:]
		case shFieldBlockID:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("signed header: bad block_id: %w", protowire.ParseError(m))
			}
			h.BlockID, b = v, b[m:]
		case shFieldBlockVersion:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("signed header: bad block_version: %w", protowire.ParseError(m))
			}
			h.BlockVersion, b = v, b[m:]
		case shFieldPayloadSHA256:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("signed header: bad sha256: %w", protowire.ParseError(m))
			}
			h.PayloadSHA256, b = append([]byte(nil), v...), b[m:]
		case shFieldSigningGateway:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return fmt.Errorf("signed header: bad signing_gateway: %w", protowire.ParseError(m))
			}
			h.SigningGateway, b = v, b[m:]
		case shFieldSignature:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("signed header: bad signature: %w", protowire.ParseError(m))
			}
			h.Signature, b = append([]byte(nil), v...), b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("signed header: bad field %d: %w", num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}
