// Package hk is a small periodic-task registry used by the cache evictor
// and the disk iostat sampler. Reg(name, f) registers f to run
// on its own schedule, where f returns the next interval to sleep for,
// allowing adaptive backoff under memory/disk pressure.
package hk

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

type entry struct {
	name string
	f    func() time.Duration
	next time.Time
}

var (
	mtx     sync.Mutex
	entries []*entry
	once    sync.Once
	stopCh  chan struct{}
)

// Reg registers a housekeeping function to run every `initial` interval,
// re-scheduling itself using the duration f returns each time it runs.
func Reg(name string, f func() time.Duration, initial time.Duration) {
	mtx.Lock()
	entries = append(entries, &entry{name: name, f: f, next: time.Now().Add(initial)})
	mtx.Unlock()
	once.Do(start)
}

func start() {
	stopCh = make(chan struct{})
	go run()
}

func run() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-stopCh:
			return
		case now := <-t.C:
			mtx.Lock()
			due := entries[:0]
			for _, e := range entries {
				due = append(due, e)
			}
			entries = append([]*entry{}, due...)
			mtx.Unlock()
			for _, e := range due {
				if now.Before(e.next) {
					continue
				}
				glog.V(4).Infof("hk: running %s", e.name)
				d := e.f()
				e.next = now.Add(d)
			}
		}
	}
}

// Stop halts the housekeeping loop; used by tests and clean shutdown.
func Stop() {
	if stopCh != nil {
		close(stopCh)
	}
}
