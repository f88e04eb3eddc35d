package driver

import (
	"container/list"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/acqgw/ag/internal/cmn"
	"github.com/acqgw/ag/internal/stats"
)

// Group is one proc-group: a fixed-size pool of workers for a single
// query-type. The freelist is a linked list guarded by a
// mutex plus a counting semaphore sized to num_instances.
type Group struct {
	Name        string
	NumInstances int

	mu       sync.Mutex
	freelist *list.List // of *Worker
	roster   map[*Worker]struct{}
	sem      *semaphore.Weighted

	metrics *stats.DriverPoolMetrics
}

func NewGroup(name string, numInstances int, m *stats.DriverPoolMetrics) *Group {
	// The semaphore counts idle workers: every slot starts taken, and each
	// Seed or Release of a live worker hands one back.
	sem := semaphore.NewWeighted(int64(numInstances))
	_ = sem.TryAcquire(int64(numInstances))
	return &Group{
		Name: name, NumInstances: numInstances,
		freelist: list.New(),
		roster:   map[*Worker]struct{}{},
		sem:      sem,
		metrics:  m,
	}
}

// Seed adds an already-spawned worker to the pool (used at startup and
// after a reload swap).
func (g *Group) Seed(w *Worker) {
	g.mu.Lock()
	g.roster[w] = struct{}{}
	g.freelist.PushBack(w)
	g.mu.Unlock()
	g.sem.Release(1)
}

// Acquire removes the head of the freelist, blocking on the semaphore
// while it is empty. Dead workers
// encountered during selection are reaped and discarded before a live
// one is returned.
func (g *Group) Acquire(ctx context.Context) (*Worker, error) {
	for {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, cmn.Wrap(err, "driver pool: acquire")
		}
		g.mu.Lock()
		el := g.freelist.Front()
		if el == nil {
			g.mu.Unlock()
			continue // spurious: sem said available but freelist raced; retry
		}
		g.freelist.Remove(el)
		w := el.Value.(*Worker)
		g.mu.Unlock()

		if !w.Alive() {
			g.reap(w)
			continue // keep trying; semaphore already accounted for this slot
		}
		g.metrics.Acquired()
		return w, nil
	}
}

// Release returns w to the freelist if still alive, otherwise discards it
// and reaps it.
func (g *Group) Release(w *Worker) {
	if !w.Alive() {
		g.reap(w)
		return
	}
	g.mu.Lock()
	g.freelist.PushBack(w)
	g.mu.Unlock()
	g.sem.Release(1)
}

func (g *Group) reap(w *Worker) {
	g.mu.Lock()
	delete(g.roster, w)
	g.mu.Unlock()
	g.metrics.WorkerDied()
	go w.Reap(time.Second)
	g.sem.Release(1)
}

// IdleCount reports the freelist length, for metrics.
func (g *Group) IdleCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.freelist.Len()
}

// StopAll implements the supervisor's shutdown order for one group: each
// roster worker in turn gets SIGINT, up to one second to exit, then
// SIGKILL.
func (g *Group) StopAll() {
	g.mu.Lock()
	workers := make([]*Worker, 0, len(g.roster))
	for w := range g.roster {
		workers = append(workers, w)
	}
	g.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}
