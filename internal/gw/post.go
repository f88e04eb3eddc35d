package gw

import (
	"context"

	"github.com/valyala/fasthttp"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/codec"
	"github.com/acqgw/ag/internal/wire"
)

// verbCapability is the capability required per POST verb.
var verbCapability = map[string]wire.Capability{
	"write-delta":    wire.CapWriteData,
	"putchunks":      wire.CapWriteData,
	"deletechunks":   wire.CapWriteData,
	"truncate":       wire.CapWriteData | wire.CapWriteMetadata,
	"rename":         wire.CapWriteMetadata,
	"detach":         wire.CapWriteMetadata,
	"setxattr":       wire.CapWriteMetadata,
	"removexattr":    wire.CapWriteMetadata,
}

// VerbHandler executes one verified POST verb and returns the reply body
// or an error to be mapped to an HTTP status.
type VerbHandler func(ctx context.Context, req *wire.Request, data []byte) ([]byte, error)

// Verbs is the registry of typed handlers dispatched to by servePost,
// populated by main at boot.
type Verbs map[string]VerbHandler

func (s *State) servePost(ctx *fasthttp.RequestCtx, path string) {
	if s.Verbs == nil {
		ctx.SetStatusCode(fasthttp.StatusNotImplemented)
		return
	}

	controlPlane := ctx.FormValue("control-plane")
	dataPlane := ctx.FormValue("data-plane")
	if controlPlane == nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}

	req := &wire.Request{}
	if err := req.Unmarshal(controlPlane); err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}

	unsigned := req.MarshalUnsigned(nil)
	pub, err := s.Keys.PublicKey(req.SigningGateway)
	if err != nil {
		if cmn.IsTryAgain(err) {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		return
	}
	if !codec.VerifySignature(pub, unsigned, req.Signature) {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		return
	}

	if _, ok := verbCapability[req.Verb]; !ok {
		ctx.SetStatusCode(fasthttp.StatusNotImplemented)
		return
	}
	handler, ok := s.Verbs[req.Verb]
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotImplemented)
		return
	}

	// The typed handler resolves its own target path from req.Body and
	// returns cmn.ErrCoordinatorMismatch (-> 410) if this gateway is not
	// the coordinator of record.
	body, err := handler(ctx, req, dataPlane)
	status := fasthttp.StatusOK
	if err != nil {
		status = statusFor(err)
	}

	reply := &wire.Reply{Nonce: req.Nonce, Status: int32(status), Body: body}
	s.Signer.SignReply(reply)
	signed := reply.Marshal(nil)

	ctx.SetStatusCode(status)
	ctx.Write(signed) //nolint:errcheck
}

func statusFor(err error) int {
	switch {
	case cmn.IsNotFound(err):
		return fasthttp.StatusNotFound
	case cmn.IsTryAgain(err):
		return fasthttp.StatusServiceUnavailable
	case cmn.IsBadRequest(err):
		return fasthttp.StatusBadRequest
	case cmn.IsPermissionDenied(err):
		return fasthttp.StatusForbidden
	case cmn.IsCoordinatorMismatch(err):
		return fasthttp.StatusGone
	default:
		return fasthttp.StatusInternalServerError
	}
}
