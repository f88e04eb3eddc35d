package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// consumeField dispatches one (tag, value) pair starting at b, invoking
// the matching setter and returning the remaining bytes. Unknown fields are
// skipped, matching protobuf's forward-compatibility rule.
type fieldSetter func(num protowire.Number, typ protowire.Type, b []byte) (rest []byte, err error)

func consumeMessage(b []byte, set fieldSetter) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		rest, err := set(num, typ, b)
		if err != nil {
			return err
		}
		b = rest
	}
	return nil
}

func skipField(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return nil, fmt.Errorf("bad field %d: %w", num, protowire.ParseError(n))
	}
	return b[n:], nil
}

func consumeString(b []byte) (string, []byte, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", nil, fmt.Errorf("bad string: %w", protowire.ParseError(n))
	}
	return v, b[n:], nil
}

func consumeBytes(b []byte) ([]byte, []byte, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, fmt.Errorf("bad bytes: %w", protowire.ParseError(n))
	}
	return append([]byte(nil), v...), b[n:], nil
}

func consumeVarint(b []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, nil, fmt.Errorf("bad varint: %w", protowire.ParseError(n))
	}
	return v, b[n:], nil
}
