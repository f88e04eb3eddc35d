package wire

import (
	"bytes"
	"testing"
)

func TestSignedHeaderRoundTrip(t *testing.T) {
	h := &SignedHeader{
		Volume: "vol0", FileID: 42, FileVersion: 3, BlockID: 7, BlockVersion: 1,
		PayloadSHA256:  bytes.Repeat([]byte{0xab}, 32),
		SigningGateway: "ag-1",
		Signature:      []byte{1, 2, 3, 4},
	}
	enc := h.Marshal(nil)

	var got SignedHeader
	if err := got.Unmarshal(enc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Volume != h.Volume || got.FileID != h.FileID || got.BlockVersion != h.BlockVersion ||
		!bytes.Equal(got.PayloadSHA256, h.PayloadSHA256) || got.SigningGateway != h.SigningGateway ||
		!bytes.Equal(got.Signature, h.Signature) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestSignedHeaderMarshalUnsignedClearsSignature(t *testing.T) {
	h := &SignedHeader{Volume: "v", Signature: []byte{9, 9, 9}}
	enc := h.MarshalUnsigned(nil)

	var got SignedHeader
	if err := got.Unmarshal(enc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Signature) != 0 {
		t.Fatalf("expected signature stripped, got %v", got.Signature)
	}
}

func TestDriverRequestRoundTrip(t *testing.T) {
	r := &DriverRequest{
		Kind: ReqBlock, FileID: 1, FileVersion: 2, BlockID: 3, BlockVersion: 4,
		ManifestTimestampSec: 100, ManifestTimestampNsec: 200,
		IOHints: "seq", Path: "/a/b.c", QueryString: "db://x",
	}
	enc := r.Marshal(nil)

	var got DriverRequest
	if err := got.Unmarshal(enc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != *r {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
}

func TestStatReplyRoundTrip(t *testing.T) {
	r := &StatReply{Size: 123456, MtimeSec: 1700000000, MtimeNsec: 42}
	enc := r.Marshal(nil)

	var got StatReply
	if err := got.Unmarshal(enc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != *r {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, r)
	}
}

func TestManifestRoundTripWithRanges(t *testing.T) {
	m := &Manifest{
		Volume: "vol0", Path: "/a/b", FileID: 5, FileVersion: 1, Owner: "ag-1",
		Size: 4096, MtimeSec: 1000, MtimeNsec: 1,
		Ranges: []BlockRange{
			{StartID: 0, EndID: 3, GatewayID: "ag-1", BlockVersions: []uint64{1, 1, 2, 1}},
			{StartID: 4, EndID: 4, GatewayID: "ag-2", BlockVersions: []uint64{1}},
		},
		SigningGateway: "ag-1", Signature: []byte{5, 6},
	}
	enc := m.Marshal(nil)

	var got Manifest
	if err := got.Unmarshal(enc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Volume != m.Volume || got.Size != m.Size || len(got.Ranges) != len(m.Ranges) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, m)
	}
	for i := range m.Ranges {
		if got.Ranges[i].StartID != m.Ranges[i].StartID ||
			got.Ranges[i].GatewayID != m.Ranges[i].GatewayID ||
			len(got.Ranges[i].BlockVersions) != len(m.Ranges[i].BlockVersions) {
			t.Fatalf("range %d mismatch: got %+v, want %+v", i, got.Ranges[i], m.Ranges[i])
		}
	}
}

func TestManifestMarshalUnsignedClearsSignature(t *testing.T) {
	m := &Manifest{Volume: "v", Signature: []byte{1}}
	enc := m.MarshalUnsigned(nil)
	var got Manifest
	if err := got.Unmarshal(enc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Signature) != 0 {
		t.Fatalf("expected signature stripped, got %v", got.Signature)
	}
}

func TestRequestReplyRoundTrip(t *testing.T) {
	req := &Request{
		Verb: "rename", Nonce: "n1", TargetFileID: 9, TargetFileVersion: 1,
		Body: []byte("payload"), SigningGateway: "ag-1", Signature: []byte{1, 2},
	}
	enc := req.Marshal(nil)
	var gotReq Request
	if err := gotReq.Unmarshal(enc); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if gotReq.Verb != req.Verb || gotReq.Nonce != req.Nonce || !bytes.Equal(gotReq.Body, req.Body) {
		t.Fatalf("request round trip mismatch: got %+v, want %+v", gotReq, req)
	}

	rep := &Reply{Nonce: "n1", Status: 200, Body: []byte("ok"), SigningGateway: "ag-1", Signature: []byte{3}}
	enc = rep.Marshal(nil)
	var gotRep Reply
	if err := gotRep.Unmarshal(enc); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if gotRep.Status != rep.Status || gotRep.Nonce != rep.Nonce {
		t.Fatalf("reply round trip mismatch: got %+v, want %+v", gotRep, rep)
	}
}

func TestRequestUnmarshalSkipsUnknownFields(t *testing.T) {
	// A field number beyond anything Request defines must be skipped, not
	// rejected: forward-compatibility is the whole point of the tag/length
	// framing.
	b := appendStringField(nil, 99, "future-field")
	b = (&Request{Verb: "write-delta"}).Marshal(b)

	var got Request
	if err := got.Unmarshal(b); err != nil {
		t.Fatalf("unmarshal with unknown leading field: %v", err)
	}
	if got.Verb != "write-delta" {
		t.Fatalf("expected known fields still decoded, got %+v", got)
	}
}
