package specfile

import (
	"bytes"
	"encoding/base64"
	"io"

	"github.com/pierrec/lz4/v3"

	"github.com/acqgw/ag/internal/cmn"
)

// DriverBundle is one MS-issued driver package referenced from a <Query>:
// a driver executable plus its config/secrets/code blobs, all shipped
// lz4-compressed and base64-encoded inline in the MS's driver catalog
// response.
type DriverBundle struct {
	Argv    []string
	Env     []string
	Config  []byte
	Secrets []byte
	Code    []byte
}

// DecodeBundlePart base64-decodes then lz4-decompresses one field of a
// driver bundle. The MS transport and catalog format are out of scope
//; this is the decompression step every caller
// needs regardless of how the encoded bytes arrived.
func DecodeBundlePart(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, cmn.Wrap(err, "specfile: bundle part base64")
	}
	if len(raw) == 0 {
		return nil, nil
	}
	zr := lz4.NewReader(bytes.NewReader(raw))
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, cmn.Wrap(err, "specfile: bundle part lz4")
	}
	return out, nil
}

// EncodeBundlePart is the inverse; the package tests use it to round-trip
// a bundle part.
func EncodeBundlePart(raw []byte) (string, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", cmn.Wrap(err, "specfile: bundle part lz4 encode")
	}
	if err := zw.Close(); err != nil {
		return "", cmn.Wrap(err, "specfile: bundle part lz4 close")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
