package driver

import (
	"bufio"
	"io"
	"os/exec"
	"testing"
	"time"

	"github.com/acqgw/ag/internal/wire"
)

// pipedWorker wires a Worker's stdin/stdout to in-process pipes so the
// request/reply framing can be exercised without spawning a real driver
// subprocess; w.cmd is an unstarted exec.Cmd, safe because Request never
// touches it.
func pipedWorker(t *testing.T) (w *Worker, driverIn *bufio.Reader, driverOut io.WriteCloser, stdinW io.WriteCloser) {
	t.Helper()
	stdinR, stdinWriter := io.Pipe()
	stdoutR, stdoutWriter := io.Pipe()
	w = &Worker{cmd: exec.Command("true"), stdin: stdinWriter, stdout: bufio.NewReader(stdoutR), alive: true}
	return w, bufio.NewReader(stdinR), stdoutWriter, stdinWriter
}

func TestWorkerRequestRoundTrip(t *testing.T) {
	w, driverIn, driverOut, _ := pipedWorker(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, err := ReadChunk(driverIn)
		if err != nil {
			t.Errorf("driver side: ReadChunk: %v", err)
			return
		}
		var got wire.DriverRequest
		if err := got.Unmarshal(req); err != nil {
			t.Errorf("driver side: Unmarshal: %v", err)
			return
		}
		reply := append([]byte{0}, []byte("result-data")...)
		if err := WriteChunk(driverOut, reply); err != nil {
			t.Errorf("driver side: WriteChunk: %v", err)
		}
	}()

	data, err := w.Request(&wire.DriverRequest{Kind: wire.ReqBlock, FileID: 1, BlockID: 2}, time.Second)
	<-done
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(data) != "result-data" {
		t.Fatalf("Request reply = %q, want %q", data, "result-data")
	}
}

func TestWorkerRequestErrorStatusFromDriver(t *testing.T) {
	w, driverIn, driverOut, _ := pipedWorker(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := ReadChunk(driverIn); err != nil {
			return
		}
		_ = WriteChunk(driverOut, []byte{1, 'b', 'a', 'd'}) // non-zero status byte
	}()

	_, err := w.Request(&wire.DriverRequest{Kind: wire.ReqStat}, time.Second)
	<-done
	if err == nil {
		t.Fatalf("expected an error for a non-zero driver status byte")
	}
}

func TestWorkerRequestMarksDeadOnEOF(t *testing.T) {
	w, driverIn, driverOut, _ := pipedWorker(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ReadChunk(driverIn)
		driverOut.Close() // simulate the driver process dying mid-reply
	}()

	_, err := w.Request(&wire.DriverRequest{Kind: wire.ReqBlock}, time.Second)
	<-done
	if err == nil {
		t.Fatalf("expected an error when the driver closes its end before replying")
	}
	if w.Alive() {
		t.Fatalf("expected worker marked dead after a short read / EOF")
	}
}

func TestWorkerRequestRejectsOnAlreadyDeadWorker(t *testing.T) {
	w, _, _, _ := pipedWorker(t)
	w.markDead()

	if _, err := w.Request(&wire.DriverRequest{Kind: wire.ReqBlock}, time.Second); err == nil {
		t.Fatalf("expected an immediate error for a request against a dead worker")
	}
}
