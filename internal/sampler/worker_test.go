package sampler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nodewatch/telemetryd/internal/broadcast"
	"github.com/nodewatch/telemetryd/internal/model"
	"github.com/nodewatch/telemetryd/internal/probe"
	"github.com/nodewatch/telemetryd/internal/store"
)

// TestWorkerTickPublishesAndPersists exercises one real tick end to end:
// the probe handle collects live host metrics, the tick fans the result out
// to both the broadcast hub and the persistence writer.
func TestWorkerTickPublishesAndPersists(t *testing.T) {
	handle := probe.NewHandle(0)
	defer handle.Close()

	hub := broadcast.NewHub[model.Snapshot](4)
	sub := hub.Subscribe()
	defer sub.Close()

	s, err := store.Open(filepath.Join(t.TempDir(), "telemetry.db"), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	writer := store.NewWriter(s, model.SystemInfo{}, 16, 1, time.Hour)
	defer writer.Close()

	w := New(handle, hub, writer, time.Hour)
	w.tick(time.Now())

	select {
	case msg := <-sub.C():
		if msg.Value.Timestamp == 0 {
			t.Fatalf("expected a non-zero timestamp, got %+v", msg.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published snapshot")
	}

	deadline := time.Now().Add(2 * time.Second)
	for writer.SavedTotal() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if writer.SavedTotal() != 1 {
		t.Fatalf("expected 1 snapshot persisted, got %d", writer.SavedTotal())
	}
}

func TestWorkerStopWaitsForInFlightTick(t *testing.T) {
	handle := probe.NewHandle(0)
	defer handle.Close()

	hub := broadcast.NewHub[model.Snapshot](4)
	s, err := store.Open(filepath.Join(t.TempDir(), "telemetry.db"), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	writer := store.NewWriter(s, model.SystemInfo{}, 16, 1, time.Hour)
	defer writer.Close()

	w := New(handle, hub, writer, 10*time.Millisecond)
	w.Start()
	time.Sleep(50 * time.Millisecond)
	w.Stop() // must not hang or panic
}
