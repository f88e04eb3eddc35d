package driver

import (
	"context"

	"github.com/acqgw/ag/internal/namespace"
	"github.com/acqgw/ag/internal/wire"
)

// Reversion implements reversion.DriverReversioner: it dispatches a
// ReqReversion request to the path's driver and decodes the reply into
// fresh pubinfo, the driver side of reversion_dataset(path, map_info).
func (s *Supervisor) Reversion(ctx context.Context, path string, mi *namespace.MapInfo) (*namespace.Pubinfo, error) {
	req := &wire.DriverRequest{
		Kind: wire.ReqReversion, FileID: mi.MS.FileID, FileVersion: mi.MS.FileVersion,
		Path: path, QueryString: mi.QueryString,
	}
	reply, err := s.Dispatch(ctx, mi.Driver, req)
	if err != nil {
		return nil, err
	}
	var stat wire.StatReply
	if err := stat.Unmarshal(reply); err != nil {
		return nil, err
	}
	return &namespace.Pubinfo{Size: stat.Size, MtimeSec: stat.MtimeSec, MtimeNsec: stat.MtimeNsec}, nil
}
