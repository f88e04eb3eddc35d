package gw

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/acqgw/ag/internal/cache"
	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/codec"
	"github.com/acqgw/ag/internal/namespace"
	"github.com/acqgw/ag/internal/wire"
)

const (
	permWorldReadable  = 0o004
	permVolumeReadable = 0o040
)

// Handler builds the fasthttp request handler for the per-request GET/HEAD
// and POST pipeline. fasthttp's own worker-pool model already gives us the
// "suspend the HTTP connection, resume on a bounded worker pool" behavior a
// thread-per-connection design would need explicitly: a goroutine per
// request is cheap enough that no separate work-queue indirection is
// needed here.
func Handler(s *State) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		switch string(ctx.Method()) {
		case fasthttp.MethodGet, fasthttp.MethodHead:
			s.serveGet(ctx, path, string(ctx.Method()) == fasthttp.MethodHead)
		case fasthttp.MethodPost:
			s.servePost(ctx, path)
		default:
			ctx.SetStatusCode(fasthttp.StatusMethodNotAllowed)
		}
	}
}

func (s *State) serveGet(ctx *fasthttp.RequestCtx, path string, headOnly bool) {
	br, mr, err := ParsePath(path)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		return
	}
	fsPath := fsPathOf(br, mr)

	fs := s.FS()
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := fs.RefreshPathMetadata(reqCtx, fsPath); err != nil {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}

	mi, ok := fs.Get(fsPath)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		return
	}

	now := namespace.NowMono()
	if now > mi.RefreshDeadline {
		s.Reversions.Add(fsPath, nil)
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
		return
	}

	if redirect, ok := s.redirectFor(fsPath, mi, br, mr); ok {
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.Redirect(redirect, fasthttp.StatusFound)
		return
	}

	if mi.FilePerm&(permWorldReadable|permVolumeReadable) == 0 {
		ctx.SetStatusCode(fasthttp.StatusForbidden)
		return
	}

	if headOnly {
		ctx.SetStatusCode(fasthttp.StatusOK)
		return
	}

	switch {
	case br != nil:
		s.serveBlock(ctx, fsPath, mi, br)
	case mr != nil:
		s.serveManifest(ctx, fsPath, mi, mr)
	}
}

// redirectFor returns the URL to redirect to and true if any of the
// coordinator/version/block/manifest checks fired.
func (s *State) redirectFor(fsPath string, mi *namespace.MapInfo, br *BlockRequest, mr *ManifestRequest) (string, bool) {
	if !s.IsCoordinator(mi) {
		return s.urlFor(mi.CoordinatorID, fsPath, br, mr), true
	}
	switch {
	case br != nil:
		if br.FileVersion != mi.MS.FileVersion || br.BlockVersion != mi.BlockVersion {
			return s.urlFor(s.GatewayID, fsPath, &BlockRequest{
				VolumeID: br.VolumeID, FSPath: fsPath, FileID: mi.MS.FileID,
				FileVersion: mi.MS.FileVersion, BlockID: br.BlockID, BlockVersion: mi.BlockVersion,
			}, nil), true
		}
	case mr != nil:
		if mr.FileVersion != mi.MS.FileVersion || mr.MtimeSec != mi.Pub.MtimeSec || mr.MtimeNsec != mi.Pub.MtimeNsec {
			return s.urlFor(s.GatewayID, fsPath, nil, &ManifestRequest{
				VolumeID: mr.VolumeID, FSPath: fsPath, FileID: mi.MS.FileID, FileVersion: mi.MS.FileVersion,
				MtimeSec: mi.Pub.MtimeSec, MtimeNsec: mi.Pub.MtimeNsec,
			}), true
		}
	}
	return "", false
}

func (s *State) urlFor(gatewayID, fsPath string, br *BlockRequest, mr *ManifestRequest) string {
	switch {
	case br != nil:
		return fmt.Sprintf("http://%s%s.%d.%d/%d.%d", gatewayID, fsPath, br.FileID, br.FileVersion, br.BlockID, br.BlockVersion)
	case mr != nil:
		return fmt.Sprintf("http://%s%s.%d.%d/manifest.%d.%d", gatewayID, fsPath, mr.FileID, mr.FileVersion, mr.MtimeSec, mr.MtimeNsec)
	}
	return fmt.Sprintf("http://%s%s", gatewayID, fsPath)
}

func fsPathOf(br *BlockRequest, mr *ManifestRequest) string {
	if br != nil {
		return br.FSPath
	}
	return mr.FSPath
}

// serveBlock serves one signed block, dispatching to the driver on a cache miss.
func (s *State) serveBlock(ctx *fasthttp.RequestCtx, fsPath string, mi *namespace.MapInfo, br *BlockRequest) {
	key := cache.Key{FileID: br.FileID, FileVersion: br.FileVersion, BlockID: br.BlockID, BlockVersion: br.BlockVersion}
	if data, ok := s.Blocks.Get(key); ok {
		if _, _, err := codec.VerifyBlock(data, s.Keys); err != nil {
			if cmn.IsDataIntegrity(err) {
				s.Blocks.Evict(key)
			}
			writeErr(ctx, err)
			return
		}
		s.Blocks.Promote(key)
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.Write(data) //nolint:errcheck
		return
	}

	req := &wire.DriverRequest{
		Kind: wire.ReqBlock, FileID: br.FileID, FileVersion: br.FileVersion,
		BlockID: br.BlockID, BlockVersion: br.BlockVersion, Path: fsPath, QueryString: mi.QueryString,
	}
	payload, err := s.Supervisor.Dispatch(ctx, mi.Driver, req)
	if err != nil {
		writeErr(ctx, err)
		return
	}
	if int64(len(payload)) < s.BlockSize {
		padded := make([]byte, s.BlockSize)
		copy(padded, payload)
		payload = padded
	}

	signed := s.Signer.SignBlock(br.VolumeID, br.FileID, br.FileVersion, br.BlockID, br.BlockVersion, payload)
	cp := append([]byte(nil), signed...)
	_ = s.Blocks.PutAsync(key, cp) // EEXIST from a racing writer is expected and ignored

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.Write(signed) //nolint:errcheck
}

// serveManifest serves one signed manifest, dispatching to the driver on a cache miss.
func (s *State) serveManifest(ctx *fasthttp.RequestCtx, fsPath string, mi *namespace.MapInfo, mr *ManifestRequest) {
	key := cache.ManifestKey(mr.FileID, mr.FileVersion, mr.MtimeSec, mr.MtimeNsec)
	if data, ok := s.Manifests.Get(key); ok {
		if _, err := codec.VerifyManifest(data, s.Keys); err != nil {
			if cmn.IsDataIntegrity(err) {
				s.Manifests.Evict(key)
			}
			writeErr(ctx, err)
			return
		}
		s.Manifests.Promote(key)
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.Write(data) //nolint:errcheck
		return
	}

	size := mi.Pub.Size
	if !mi.DriverCacheValid {
		req := &wire.DriverRequest{Kind: wire.ReqStat, FileID: mr.FileID, FileVersion: mr.FileVersion, Path: fsPath, QueryString: mi.QueryString}
		statReply, err := s.Supervisor.Dispatch(ctx, mi.Driver, req)
		if err != nil {
			writeErr(ctx, err)
			return
		}
		var stat wire.StatReply
		if err := stat.Unmarshal(statReply); err != nil {
			writeErr(ctx, cmn.Wrap(cmn.ErrInternal, "serve manifest: decode stat reply"))
			return
		}
		size = stat.Size
		s.FS().MakeCoherentWithDriverData(fsPath, stat.Size, stat.MtimeSec, stat.MtimeNsec)
	}
	numBlocks := uint64(0)
	if s.BlockSize > 0 {
		numBlocks = uint64((size + s.BlockSize - 1) / s.BlockSize)
	}
	versions := make([]uint64, numBlocks)
	for i := range versions {
		versions[i] = mi.BlockVersion
	}
	m := &wire.Manifest{
		Volume: mr.VolumeID, Path: fsPath, FileID: mr.FileID, FileVersion: mr.FileVersion,
		Size: size, MtimeSec: mr.MtimeSec, MtimeNsec: mr.MtimeNsec,
		Ranges: []wire.BlockRange{{StartID: 0, EndID: numBlocks, GatewayID: s.GatewayID, BlockVersions: versions}},
	}
	signed := s.Signer.SignManifest(m)
	cp := append([]byte(nil), signed...)
	_ = s.Manifests.PutAsync(key, cp)

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.Write(signed) //nolint:errcheck
}

func writeErr(ctx *fasthttp.RequestCtx, err error) {
	code := fasthttp.StatusInternalServerError
	switch {
	case cmn.IsNotFound(err):
		code = fasthttp.StatusNotFound
	case cmn.IsTryAgain(err):
		code = fasthttp.StatusServiceUnavailable
	case cmn.IsBadRequest(err):
		code = fasthttp.StatusBadRequest
	case cmn.IsPermissionDenied(err):
		code = fasthttp.StatusForbidden
	case cmn.IsDataIntegrity(err):
		code = fasthttp.StatusBadGateway
	}
	ctx.SetStatusCode(code)
}
