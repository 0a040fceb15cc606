package store

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodewatch/telemetryd/internal/model"
)

// Writer is the persistence writer: a single background task reading from
// a bounded snapshot queue, batching in memory, and committing
// transactionally to the Store. A count trigger and a time trigger both
// feed the same flush path; Close forces a final drain of the queue.
type Writer struct {
	store *Store

	queue chan model.Snapshot
	done  chan struct{}
	wg    sync.WaitGroup

	flushRate     int
	flushInterval time.Duration

	mu      sync.Mutex
	buffer  []model.Snapshot
	sysInfo model.SystemInfo

	savedTotal atomic.Uint64
}

// NewWriter starts the background flush loop immediately. queueCapacity
// bounds the snapshot channel; senders block once it fills.
func NewWriter(s *Store, info model.SystemInfo, queueCapacity, flushRate int, flushInterval time.Duration) *Writer {
	w := &Writer{
		store:         s,
		queue:         make(chan model.Snapshot, queueCapacity),
		done:          make(chan struct{}),
		flushRate:     flushRate,
		flushInterval: flushInterval,
		sysInfo:       info,
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Enqueue blocks if the queue is full: disk lag slows sampling rather than
// silently dropping snapshots.
func (w *Writer) Enqueue(snap model.Snapshot) {
	w.queue <- snap
}

// SavedTotal reports how many snapshots have been committed so far.
func (w *Writer) SavedTotal() uint64 { return w.savedTotal.Load() }

// Close stops the flush loop and waits for the final drain to commit.
func (w *Writer) Close() {
	close(w.done)
	w.wg.Wait()
}

func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case snap := <-w.queue:
			w.add(snap)
		case <-ticker.C:
			w.flush()
		case <-w.done:
			w.drain()
			return
		}
	}
}

// drain empties whatever remains in the queue (non-blocking) before the
// final flush, so a shutdown doesn't lose snapshots still in flight.
func (w *Writer) drain() {
	for {
		select {
		case snap := <-w.queue:
			w.add(snap)
		default:
			w.flush()
			return
		}
	}
}

func (w *Writer) add(snap model.Snapshot) {
	w.mu.Lock()
	w.buffer = append(w.buffer, snap)
	full := len(w.buffer) >= w.flushRate
	w.mu.Unlock()

	if full {
		w.flush()
	}
}

// flush commits the buffer in one transaction. On success the saved counter
// advances and the buffer clears; on failure the batch is kept for the next
// trigger instead of being dropped.
func (w *Writer) flush() {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.buffer
	w.buffer = nil
	w.mu.Unlock()

	if err := w.store.SaveSnapshots(batch, w.sysInfo); err != nil {
		log.Printf("store: flush of %d snapshots failed, will retry: %v", len(batch), err)
		// Keep the failed batch ahead of anything accumulated since.
		w.mu.Lock()
		w.buffer = append(batch, w.buffer...)
		w.mu.Unlock()
		return
	}

	w.savedTotal.Add(uint64(len(batch)))
}
