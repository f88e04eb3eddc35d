package wire

import "google.golang.org/protobuf/encoding/protowire"

// Capability flags required to execute a POST verb.
type Capability uint32

const (
	CapWriteData Capability = 1 << iota
	CapWriteMetadata
)

// Request is the signed control-plane envelope carried in the
// "control-plane" multipart field of every POST verb.
type Request struct {
	Verb            string
	Nonce           string
	TargetFileID    uint64
	TargetFileVersion uint64
	Body            []byte
	SigningGateway  string
	Signature       []byte
}

const (
	rqFieldVerb = iota + 1
	rqFieldNonce
	rqFieldTargetFileID
	rqFieldTargetFileVersion
	rqFieldBody
	rqFieldSigningGateway
	rqFieldSignature
)

func (r *Request) Marshal(b []byte) []byte {
	b = appendStringField(b, rqFieldVerb, r.Verb)
	b = appendStringField(b, rqFieldNonce, r.Nonce)
	b = appendVarintField(b, rqFieldTargetFileID, r.TargetFileID)
	b = appendVarintField(b, rqFieldTargetFileVersion, r.TargetFileVersion)
	b = appendBytesField(b, rqFieldBody, r.Body)
	b = appendStringField(b, rqFieldSigningGateway, r.SigningGateway)
	b = appendBytesField(b, rqFieldSignature, r.Signature)
	return b
}

func (r *Request) MarshalUnsigned(b []byte) []byte {
	cp := *r
	cp.Signature = nil
	return cp.Marshal(b)
}

func (r *Request) Unmarshal(b []byte) error {
	*r = Request{}
	return consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		var err error
		switch num {
		case rqFieldVerb:
			r.Verb, b, err = consumeString(b)
		case rqFieldNonce:
			r.Nonce, b, err = consumeString(b)
		case rqFieldTargetFileID:
			r.TargetFileID, b, err = consumeVarint(b)
		case rqFieldTargetFileVersion:
			r.TargetFileVersion, b, err = consumeVarint(b)
		case rqFieldBody:
			r.Body, b, err = consumeBytes(b)
		case rqFieldSigningGateway:
			r.SigningGateway, b, err = consumeString(b)
		case rqFieldSignature:
			r.Signature, b, err = consumeBytes(b)
		default:
			return skipField(num, typ, b)
		}
		return b, err
	})
}

// Reply is the signed response envelope, carrying the request's nonce so
// the caller can match it up.
type Reply struct {
	Nonce          string
	Status         int32
	Body           []byte
	SigningGateway string
	Signature      []byte
}

const (
	rpFieldNonce = iota + 1
	rpFieldStatus
	rpFieldBody
	rpFieldSigningGateway
	rpFieldSignature
)

func (r *Reply) Marshal(b []byte) []byte {
	b = appendStringField(b, rpFieldNonce, r.Nonce)
	b = appendVarintField(b, rpFieldStatus, uint64(uint32(r.Status)))
	b = appendBytesField(b, rpFieldBody, r.Body)
	b = appendStringField(b, rpFieldSigningGateway, r.SigningGateway)
	b = appendBytesField(b, rpFieldSignature, r.Signature)
	return b
}

func (r *Reply) MarshalUnsigned(b []byte) []byte {
	cp := *r
	cp.Signature = nil
	return cp.Marshal(b)
}

func (r *Reply) Unmarshal(b []byte) error {
	*r = Reply{}
	return consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) ([]byte, error) {
		var err error
		switch num {
		case rpFieldNonce:
			r.Nonce, b, err = consumeString(b)
		case rpFieldStatus:
			var v uint64
			v, b, err = consumeVarint(b)
			r.Status = int32(int32(uint32(v)))
		case rpFieldBody:
			r.Body, b, err = consumeBytes(b)
		case rpFieldSigningGateway:
			r.SigningGateway, b, err = consumeString(b)
		case rpFieldSignature:
			r.Signature, b, err = consumeBytes(b)
		default:
			return skipField(num, typ, b)
		}
		return b, err
	})
}
