// Package driver implements the framed-pipe worker protocol and the driver
// supervisor that spawns, reloads, and pool-manages external worker
// processes. Follows a long-lived *Manager-over-a-pool idiom generalized
// from in-process goroutine pools to subprocess pools.
package driver

import (
	"bufio"
	"io"
	"strconv"

	"github.com/valyala/bytebufferpool"

	"github.com/acqgw/ag/internal/cmn"
)

// WriteChunk writes one length-prefixed frame: "<decimal length>\n<bytes>\n".
// Both the length and the trailing newline are mandatory.
func WriteChunk(w io.Writer, payload []byte) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = strconv.AppendInt(buf.B, int64(len(payload)), 10)
	buf.B = append(buf.B, '\n')
	buf.B = append(buf.B, payload...)
	buf.B = append(buf.B, '\n')
	_, err := w.Write(buf.B)
	if err != nil {
		return cmn.Wrap(err, "frame: write")
	}
	return nil
}

// ReadChunk reads one length-prefixed frame. A missing or malformed
// trailing newline is a framing failure.
func ReadChunk(r *bufio.Reader) ([]byte, error) {
	lenLine, err := r.ReadString('\n')
	if err != nil {
		return nil, cmn.Wrap(cmn.ErrInternal, "frame: EIO reading length line")
	}
	lenLine = lenLine[:len(lenLine)-1] // strip '\n'
	n, err := strconv.Atoi(lenLine)
	if err != nil || n < 0 {
		return nil, cmn.Wrapf(cmn.ErrBadRequest, "frame: invalid length %q", lenLine)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, cmn.Wrap(cmn.ErrInternal, "frame: EIO reading payload (short read / EOF)")
	}
	sentinel := make([]byte, 1)
	if _, err := io.ReadFull(r, sentinel); err != nil || sentinel[0] != '\n' {
		return nil, cmn.Wrap(cmn.ErrInternal, "frame: EIO, missing trailing newline sentinel")
	}
	return payload, nil
}
