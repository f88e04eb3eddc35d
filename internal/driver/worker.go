package driver

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/wire"
)

// readyToken / other handshake replies.
const (
	tokenReady        = "0"
	tokenUnimplemented = "2"
)

// Worker wraps one spawned driver subprocess and enforces the protocol's
// single-in-flight-request-per-worker rule.
type Worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu    sync.Mutex // serializes requests: one in-flight per worker
	alive bool

	// Unimplemented is set when the handshake token was "2": the
	// supervisor should fall back to built-in behavior for this group.
	Unimplemented bool
}

// Spawn execs path with argv/env, performs the handshake (config, secrets,
// code chunks out; one two-byte token back), and returns a live Worker.
func Spawn(path string, argv []string, env []string, config, secrets, code []byte, timeout time.Duration) (*Worker, error) {
	cmd := exec.Command(path, argv...)
	cmd.Env = env
	cmd.Stderr = os.Stderr // share stderr with the gateway process for logging

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, cmn.Wrap(err, "driver: stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, cmn.Wrap(err, "driver: stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, cmn.Wrap(err, "driver: exec")
	}

	w := &Worker{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout), alive: true}

	for _, chunk := range [][]byte{config, secrets, code} {
		if err := WriteChunk(stdin, chunk); err != nil {
			w.kill()
			return nil, cmn.Wrap(err, "driver: handshake write")
		}
	}

	tokenCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		tok, err := readToken(w.stdout)
		if err != nil {
			errCh <- err
			return
		}
		tokenCh <- tok
	}()

	select {
	case tok := <-tokenCh:
		switch tok {
		case tokenReady:
			return w, nil
		case tokenUnimplemented:
			w.Unimplemented = true
			return w, nil
		default:
			w.kill()
			return nil, cmn.Wrap(cmn.ErrInternal, "driver: handshake failed (ECHILD)")
		}
	case err := <-errCh:
		w.kill()
		return nil, cmn.Wrap(err, "driver: handshake read")
	case <-time.After(timeout):
		w.kill()
		return nil, cmn.Wrap(cmn.ErrTryAgain, "driver: handshake timed out")
	}
}

// readToken reads the handshake's raw two-byte reply ("0\n" or "2\n"): a
// bare newline-terminated token, not a length-prefixed frame.
func readToken(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", cmn.Wrap(cmn.ErrInternal, "driver: EIO reading handshake token")
	}
	return line[:len(line)-1], nil
}

// Request sends one DriverRequest and returns the reply payload.
// Single-threaded per worker: callers must have acquired the worker from
// its pool before calling this.
func (w *Worker) Request(req *wire.DriverRequest, timeout time.Duration) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.alive {
		return nil, cmn.Wrap(cmn.ErrInternal, "driver: worker dead")
	}

	payload := req.Marshal(nil)
	writeErrCh := make(chan error, 1)
	go func() { writeErrCh <- WriteChunk(w.stdin, payload) }()

	select {
	case err := <-writeErrCh:
		if err != nil {
			w.markDead()
			return nil, cmn.Wrapf(cmn.ErrTryAgain, "driver: SIGPIPE on write, worker dead: %v", err)
		}
	case <-time.After(timeout):
		w.markDead()
		return nil, cmn.Wrap(cmn.ErrTryAgain, "driver: write timed out")
	}

	replyCh := make(chan []byte, 1)
	errCh := make(chan error, 1)
	go func() {
		reply, err := ReadChunk(w.stdout)
		if err != nil {
			errCh <- err
			return
		}
		replyCh <- reply
	}()

	select {
	case reply := <-replyCh:
		if len(reply) == 0 || reply[0] != 0 {
			return nil, cmn.Wrap(cmn.ErrInternal, "driver: worker reported error status")
		}
		return reply[1:], nil
	case err := <-errCh:
		w.markDead()
		return nil, cmn.Wrapf(cmn.ErrTryAgain, "driver: short read / EOF, worker dead: %v", err)
	case <-time.After(timeout):
		w.markDead()
		return nil, cmn.Wrap(cmn.ErrTryAgain, "driver: request timed out")
	}
}

func (w *Worker) markDead() {
	w.alive = false
}

// Alive reports the worker's last-known liveness without blocking.
func (w *Worker) Alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.alive
}

// Reap joins a dead worker: non-blocking waitpid with a bounded grace
// period, then SIGKILL.
func (w *Worker) Reap(grace time.Duration) {
	done := make(chan error, 1)
	go func() { done <- w.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(grace):
		glog.Warningf("driver: worker pid=%d did not exit within grace period, SIGKILL", w.cmd.Process.Pid)
		_ = w.cmd.Process.Kill()
		<-done
	}
}

// Stop gracefully stops the worker: SIGINT, wait up to 1s, then SIGKILL
//.
func (w *Worker) Stop() {
	if w.cmd.Process == nil {
		return
	}
	_ = w.cmd.Process.Signal(syscall.SIGINT)
	w.Reap(time.Second)
}

func (w *Worker) kill() {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
		_ = w.cmd.Wait()
	}
	w.alive = false
}
