package gw

import (
	"encoding/binary"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/acqgw/ag/internal/cmn"
)

// EventType is the control socket's message discriminant.
type EventType int32

const (
	EventTerminate   EventType = 0
	EventReconf      EventType = 1
	EventRepublish   EventType = 2
	EventDriverIOCTL EventType = 3
)

const controlPayloadSize = 4096

// ControlEvent is one decoded control-socket message: [i32 event_type]
// [4096-byte payload], payload trimmed to however much the sender wrote.
type ControlEvent struct {
	Type    EventType
	Payload []byte
}

// ControlSocket is a UNIX SEQPACKET listener for out-of-band driver and
// operator events, implemented directly on golang.org/x/sys/unix rather
// than net's "unixpacket" network so message-boundary semantics and EINTR
// handling stay explicit.
type ControlSocket struct {
	path   string
	handle func(ControlEvent)

	fd     int
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewControlSocket(path string, handle func(ControlEvent)) *ControlSocket {
	return &ControlSocket{path: path, handle: handle, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
}

func (c *ControlSocket) Run() error {
	defer close(c.doneCh)
	_ = unix.Unlink(c.path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return cmn.Wrap(err, "control socket: socket")
	}
	c.fd = fd
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: c.path}); err != nil {
		unix.Close(fd)
		return cmn.Wrap(err, "control socket: bind")
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return cmn.Wrap(err, "control socket: listen")
	}

	for {
		connFd, _, err := unix.Accept(fd)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			select {
			case <-c.stopCh:
				return nil
			default:
				continue
			}
		}
		go c.serveOne(connFd)
	}
}

func (c *ControlSocket) serveOne(fd int) {
	defer unix.Close(fd)
	buf := make([]byte, 4+controlPayloadSize)
	n, err := readRetryEINTR(fd, buf)
	if err != nil || n < 4 {
		return
	}
	ev := ControlEvent{
		Type:    EventType(int32(binary.BigEndian.Uint32(buf[:4]))),
		Payload: buf[4:n],
	}
	c.handle(ev)
}

func readRetryEINTR(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// Stop implements cmn.Runner: it tears down the listening socket, which
// unblocks Accept with an error the Run loop treats as a shutdown signal.
func (c *ControlSocket) Stop(error) {
	close(c.stopCh)
	if c.fd != 0 {
		unix.Shutdown(c.fd, unix.SHUT_RDWR)
		unix.Close(c.fd)
	}
	<-c.doneCh
}

// ParseDriverIOCTL splits a DRIVER_IOCTL payload into its mandatory
// "<query_type>:<opaque>" halves: the separator is required
// and no NUL may appear in the query_type portion.
func ParseDriverIOCTL(payload []byte) (queryType, opaque string, err error) {
	s := strings.TrimRight(string(payload), "\x00")
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return "", "", cmn.Wrap(cmn.ErrBadRequest, "driver ioctl: missing ':' separator")
	}
	queryType, opaque = s[:idx], s[idx+1:]
	if strings.IndexByte(queryType, 0) >= 0 {
		return "", "", cmn.Wrap(cmn.ErrBadRequest, "driver ioctl: NUL in query_type")
	}
	return queryType, opaque, nil
}
