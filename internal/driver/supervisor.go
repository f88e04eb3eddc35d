package driver

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/stats"
	"github.com/acqgw/ag/internal/wire"
)

// Spec describes one driver (executable path, argv-role tag, environment)
// and its pool size.
type Spec struct {
	QueryType string
	Path      string
	Argv      []string
	Env       []string
	Config    []byte
	Secrets   []byte
	Code      []byte
	NumInstances int
}

// Supervisor hosts one proc-group per distinct query-type and load-balances
// requests across it.
type Supervisor struct {
	mu      sync.RWMutex
	groups  map[string]*Group
	specs   map[string]Spec
	metrics *stats.DriverPoolMetrics
	timeout time.Duration
}

func NewSupervisor(m *stats.DriverPoolMetrics, requestTimeout time.Duration) *Supervisor {
	return &Supervisor{groups: map[string]*Group{}, specs: map[string]Spec{}, metrics: m, timeout: requestTimeout}
}

// Start spawns every group's initial pool . The only fatal boot error is being unable to
// spawn any worker in a group at all.
func (s *Supervisor) Start(specs []Spec) error {
	for _, spec := range specs {
		g := NewGroup(spec.QueryType, spec.NumInstances, s.metrics)
		spawned := 0
		for i := 0; i < spec.NumInstances; i++ {
			w, err := Spawn(spec.Path, spec.Argv, spec.Env, spec.Config, spec.Secrets, spec.Code, 10*time.Second)
			if err != nil {
				glog.Errorf("driver supervisor: spawn %s[%d]: %v", spec.QueryType, i, err)
				continue
			}
			g.Seed(w)
			spawned++
		}
		if spawned == 0 {
			return cmn.Wrapf(cmn.ErrInternal, "driver supervisor: unable to spawn any worker for %q", spec.QueryType)
		}
		s.mu.Lock()
		s.groups[spec.QueryType] = g
		s.specs[spec.QueryType] = spec
		s.mu.Unlock()
	}
	return nil
}

// Dispatch acquires a worker from the named group, performs one request,
// and releases the worker. On a dead-worker error the caller should retry:
// the returned error is transient.
func (s *Supervisor) Dispatch(ctx context.Context, queryType string, req *wire.DriverRequest) ([]byte, error) {
	s.mu.RLock()
	g, ok := s.groups[queryType]
	s.mu.RUnlock()
	if !ok {
		return nil, cmn.Wrapf(cmn.ErrStructural, "driver supervisor: no driver registered for query type %q", queryType)
	}

	w, err := g.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	reply, err := w.Request(req, s.timeout)
	g.Release(w)
	return reply, err
}

// Reload respawns every slot of every group with new config/secrets/code,
// swapping each slot in before gracefully stopping the old worker, so
// that total pool concurrency never drops to zero . Reloads are per-slot-serial.
func (s *Supervisor) Reload(specs []Spec) error {
	for _, spec := range specs {
		s.mu.RLock()
		g, exists := s.groups[spec.QueryType]
		s.mu.RUnlock()
		if !exists {
			g = NewGroup(spec.QueryType, spec.NumInstances, s.metrics)
			s.mu.Lock()
			s.groups[spec.QueryType] = g
			s.mu.Unlock()
		}

		for i := 0; i < spec.NumInstances; i++ {
			fresh, err := Spawn(spec.Path, spec.Argv, spec.Env, spec.Config, spec.Secrets, spec.Code, 10*time.Second)
			if err != nil {
				glog.Errorf("driver supervisor: reload spawn %s[%d]: %v", spec.QueryType, i, err)
				continue
			}
			old, err := g.Acquire(context.Background())
			g.Seed(fresh)
			if err == nil {
				old.Stop()
			}
		}
		s.mu.Lock()
		s.specs[spec.QueryType] = spec
		s.mu.Unlock()
	}
	return nil
}

// Shutdown sends SIGINT to every worker in every group, waits one second,
// then SIGKILLs any survivor.
func (s *Supervisor) Shutdown() {
	s.mu.RLock()
	groups := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func(g *Group) { defer wg.Done(); g.StopAll() }(g)
	}
	wg.Wait()
}
