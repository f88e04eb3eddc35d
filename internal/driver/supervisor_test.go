package driver

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acqgw/ag/internal/stats"
	"github.com/acqgw/ag/internal/wire"
)

func TestSupervisorDispatchUnknownQueryType(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSupervisor(stats.NewDriverPoolMetrics(reg), time.Second)
	if _, err := s.Dispatch(context.Background(), "nope", &wire.DriverRequest{}); err == nil {
		t.Fatalf("expected an error dispatching to an unregistered query type")
	}
}

func TestSupervisorDispatchRoundTrip(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSupervisor(stats.NewDriverPoolMetrics(reg), time.Second)

	g := NewGroup("db", 1, s.metrics)
	w, driverIn, driverOut, _ := pipedWorker(t)
	g.Seed(w)
	s.groups["db"] = g

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := ReadChunk(driverIn); err != nil {
			return
		}
		_ = WriteChunk(driverOut, append([]byte{0}, []byte("ok")...))
	}()

	data, err := s.Dispatch(context.Background(), "db", &wire.DriverRequest{Kind: wire.ReqBlock})
	<-done
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("Dispatch reply = %q, want %q", data, "ok")
	}

	// The worker must be back on the freelist after a successful dispatch.
	if g.IdleCount() != 1 {
		t.Fatalf("expected worker released back to the pool, IdleCount=%d", g.IdleCount())
	}
}
