// Package sampler implements the snapshot assembler: a fixed-cadence
// ticker that gathers one Snapshot per tick and hands it to the live
// broadcaster and the persistence writer.
package sampler

import (
	"log"
	"sync"
	"time"

	"github.com/nodewatch/telemetryd/internal/broadcast"
	"github.com/nodewatch/telemetryd/internal/model"
	"github.com/nodewatch/telemetryd/internal/probe"
	"github.com/nodewatch/telemetryd/internal/store"
)

// Worker owns the sampling ticker. Missed-tick policy is skip: if a
// previous tick is still being collected when the next one fires, the new
// firing is simply dropped (the ticker itself coalesces, and the single
// worker goroutine never runs two ticks concurrently).
type Worker struct {
	handle   *probe.Handle
	hub      *broadcast.Hub[model.Snapshot]
	writer   *store.Writer
	interval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

func New(handle *probe.Handle, hub *broadcast.Hub[model.Snapshot], writer *store.Writer, interval time.Duration) *Worker {
	return &Worker{
		handle:   handle,
		hub:      hub,
		writer:   writer,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start launches the ticking goroutine.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()
}

// Stop halts new ticks and waits for the in-flight tick (if any) to finish.
// The caller is responsible for draining the persistence writer afterward.
func (w *Worker) Stop() {
	close(w.done)
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.tick(now)
		}
	}
}

// tick collects one Snapshot and fans it out to both sinks. A probe
// failure skips the whole tick rather than emitting a partial Snapshot.
func (w *Worker) tick(now time.Time) {
	snap, err := w.handle.CollectAll(now)
	if err != nil {
		log.Printf("sampler: tick skipped: %v", err)
		return
	}

	w.hub.Publish(snap)    // non-blocking; no-subscriber case is log-only, rate-limited inside Hub
	w.writer.Enqueue(snap) // blocking: disk lag intentionally slows sampling
}
