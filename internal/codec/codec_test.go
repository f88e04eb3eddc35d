package codec

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	stderrors "errors"
	"testing"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/wire"
)

type staticKeyStore struct {
	pub ed25519.PublicKey
	id  string
}

func (s staticKeyStore) PublicKey(gatewayID string) (ed25519.PublicKey, error) {
	if gatewayID != s.id {
		return nil, cmn.Wrapf(cmn.ErrTryAgain, "unknown gateway %q", gatewayID)
	}
	return s.pub, nil
}

func newSigner(t *testing.T, gatewayID string) (*Signer, staticKeyStore) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &Signer{GatewayID: gatewayID, PrivateKey: priv}, staticKeyStore{pub: pub, id: gatewayID}
}

func TestSignBlockVerifyRoundTrip(t *testing.T) {
	signer, ks := newSigner(t, "ag-1")
	payload := []byte("block payload bytes")
	data := signer.SignBlock("vol0", 1, 1, 0, 1, payload)

	h, off, err := VerifyBlock(data, ks)
	if err != nil {
		t.Fatalf("VerifyBlock: %v", err)
	}
	if h.SigningGateway != "ag-1" || h.Volume != "vol0" {
		t.Fatalf("unexpected header: %+v", h)
	}
	if string(data[off:]) != string(payload) {
		t.Fatalf("payload offset wrong: got %q, want %q", data[off:], payload)
	}
}

func TestVerifyBlockDetectsPayloadTamper(t *testing.T) {
	signer, ks := newSigner(t, "ag-1")
	data := signer.SignBlock("vol0", 1, 1, 0, 1, []byte("original"))
	data[len(data)-1] ^= 0xff // flip a payload byte after signing

	_, _, err := VerifyBlock(data, ks)
	if !stderrors.Is(err, cmn.ErrDataIntegrity) {
		t.Fatalf("expected ErrDataIntegrity for tampered payload, got %v", err)
	}
}

func TestVerifyBlockRejectsTruncatedLengthPrefix(t *testing.T) {
	if _, _, err := VerifyBlock([]byte{1, 2}, staticKeyStore{}); err == nil {
		t.Fatalf("expected error for truncated length prefix")
	}
}

func TestVerifyBlockPropagatesTryAgainOnUnknownGateway(t *testing.T) {
	signer, _ := newSigner(t, "ag-1")
	data := signer.SignBlock("vol0", 1, 1, 0, 1, []byte("x"))
	_, _, err := VerifyBlock(data, staticKeyStore{id: "ag-other"})
	if !cmn.IsTryAgain(err) {
		t.Fatalf("expected IsTryAgain for an unresolved signing gateway, got %v", err)
	}
}

func TestSignManifestVerifyRoundTrip(t *testing.T) {
	signer, ks := newSigner(t, "ag-1")
	m := &wire.Manifest{Volume: "vol0", Path: "/a/b", FileID: 1, FileVersion: 1, Size: 4096}
	enc := signer.SignManifest(m)

	got, err := VerifyManifest(enc, ks)
	if err != nil {
		t.Fatalf("VerifyManifest: %v", err)
	}
	if got.Path != m.Path || got.Size != m.Size {
		t.Fatalf("unexpected manifest: %+v", got)
	}
}

func TestVerifyManifestDetectsTamper(t *testing.T) {
	signer, ks := newSigner(t, "ag-1")
	m := &wire.Manifest{Volume: "vol0", Path: "/a/b", Size: 10}
	enc := signer.SignManifest(m)

	var tampered wire.Manifest
	if err := tampered.Unmarshal(enc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tampered.Size = 99999 // mutate a signed field post-hoc
	retampered := tampered.Marshal(nil)

	if _, err := VerifyManifest(retampered, ks); err == nil {
		t.Fatalf("expected verification failure after mutating a signed field")
	}
}

func TestSignRequestReplyVerify(t *testing.T) {
	signer, ks := newSigner(t, "ag-1")
	req := &wire.Request{Verb: "rename", Nonce: "n1", TargetFileID: 1}
	signer.SignRequest(req)

	pub, err := ks.PublicKey(req.SigningGateway)
	if err != nil {
		t.Fatalf("PublicKey: %v", err)
	}
	if !VerifySignature(pub, req.MarshalUnsigned(nil), req.Signature) {
		t.Fatalf("request signature did not verify")
	}

	rep := &wire.Reply{Nonce: req.Nonce, Status: 200}
	signer.SignReply(rep)
	if !VerifySignature(pub, rep.MarshalUnsigned(nil), rep.Signature) {
		t.Fatalf("reply signature did not verify")
	}
}
