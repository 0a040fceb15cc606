package query

import (
	"path/filepath"
	"testing"

	"github.com/nodewatch/telemetryd/internal/model"
	"github.com/nodewatch/telemetryd/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "telemetry.db"), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryRejectsInvalidRange(t *testing.T) {
	s := openTestStore(t)
	if _, err := History(s, 1000, 1000, 60, 1); err != ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := History(s, 2000, 1000, 60, 1); err != ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

// Aggregated rows before the raw cutoff, followed by raw rows after it,
// come back as one ascending series.
func TestHistoryStitchesAcrossCutoff(t *testing.T) {
	s := openTestStore(t)

	const hour = int64(3_600_000)
	now := 3 * hour

	// One 1-min aggregated row inside [now-2h, now-1h).
	if err := s.SaveAggregated(model.AggregatedRow{
		CreatedAt: now - 2*hour, Resolution: model.ResolutionMinute,
		CPULoadAvg: 5, MemoryUsedAvg: 50,
	}); err != nil {
		t.Fatal(err)
	}
	// Two raw rows inside [now-1h, now).
	if err := s.SaveSnapshots([]model.Snapshot{
		{Timestamp: now - hour + 1000, CPU: model.CPUStats{UsagePercent: 11}, RAM: model.RAMStats{Used: 110}},
		{Timestamp: now - 1000, CPU: model.CPUStats{UsagePercent: 12}, RAM: model.RAMStats{Used: 120}},
	}, model.SystemInfo{}); err != nil {
		t.Fatal(err)
	}

	got, err := History(s, now-2*hour, now, 60, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 stitched rows, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp < got[i-1].Timestamp {
			t.Fatalf("expected ascending timestamps, got %v", got)
		}
	}
	if got[0].Timestamp != now-2*hour {
		t.Fatalf("expected aggregated row first, got %+v", got[0])
	}
}

func TestHistoryRaw1sWithFromAtOrAfterCutoffReturnsOnlyRaw(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveAggregated(model.AggregatedRow{CreatedAt: 0, Resolution: model.ResolutionMinute}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshots([]model.Snapshot{
		{Timestamp: 3_600_000, CPU: model.CPUStats{UsagePercent: 1}},
	}, model.SystemInfo{}); err != nil {
		t.Fatal(err)
	}

	got, err := History(s, 3_600_000, 3_601_000, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Timestamp != 3_600_000 {
		t.Fatalf("expected only the raw row, got %+v", got)
	}
}

func TestDownsampleByBucketFloorKeepsLastInBucket(t *testing.T) {
	rows := []model.Snapshot{
		{Timestamp: 0, CPU: model.CPUStats{UsagePercent: 1}},
		{Timestamp: 30_000, CPU: model.CPUStats{UsagePercent: 2}},
		{Timestamp: 59_000, CPU: model.CPUStats{UsagePercent: 3}},
		{Timestamp: 60_000, CPU: model.CPUStats{UsagePercent: 4}},
	}
	out := downsampleByBucketFloor(rows, 60_000)
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(out))
	}
	if out[0].CPU.UsagePercent != 3 {
		t.Fatalf("expected last-in-bucket value 3, got %v", out[0].CPU.UsagePercent)
	}
	if out[1].CPU.UsagePercent != 4 {
		t.Fatalf("expected second bucket value 4, got %v", out[1].CPU.UsagePercent)
	}
}
