package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nodewatch/telemetryd/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "telemetry.db"), 4)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot(ts int64, cpuPct float64, ramUsed uint64) model.Snapshot {
	return model.Snapshot{
		Timestamp: ts,
		CPU:       model.CPUStats{Model: "Test CPU", PhysicalCores: 4, LogicalCores: 8, UsagePercent: cpuPct},
		RAM:       model.RAMStats{Total: 1000, Used: ramUsed, Available: 1000 - ramUsed},
		Containers: []model.ContainerStat{
			{ID: "c1", Name: "web", CPUPercent: cpuPct},
		},
	}
}

func TestSaveSnapshotsEmptyBatchIsNoOp(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSnapshots(nil, model.SystemInfo{}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	rows, err := s.GetRawRange(0, time.Now().UnixMilli()+1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected 0 rows, got %d", len(rows))
	}
}

func TestSaveAndGetRawRange(t *testing.T) {
	s := openTestStore(t)
	batch := []model.Snapshot{
		sampleSnapshot(1000, 10, 100),
		sampleSnapshot(2000, 20, 200),
		sampleSnapshot(3000, 30, 300),
	}
	if err := s.SaveSnapshots(batch, model.SystemInfo{OSFamily: "linux"}); err != nil {
		t.Fatalf("SaveSnapshots: %v", err)
	}

	got, err := s.GetRawRange(1000, 3000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows in [1000,3000), got %d", len(got))
	}
	if got[0].Timestamp != 1000 || got[1].Timestamp != 2000 {
		t.Fatalf("expected ascending [1000,2000], got %v, %v", got[0].Timestamp, got[1].Timestamp)
	}
	if got[0].Containers[0].ID != "c1" || got[0].Containers[0].Name != "web" {
		t.Fatalf("container blob round-trip failed: %+v", got[0].Containers)
	}

	info, ok, err := s.GetSystemInfo()
	if err != nil || !ok {
		t.Fatalf("expected system info present, err=%v", err)
	}
	if info.OSFamily != "linux" {
		t.Fatalf("expected OSFamily=linux, got %q", info.OSFamily)
	}
}

func TestSystemInfoUpsertStaysSingleton(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSnapshots([]model.Snapshot{sampleSnapshot(1, 1, 1)}, model.SystemInfo{OSFamily: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshots([]model.Snapshot{sampleSnapshot(2, 1, 1)}, model.SystemInfo{OSFamily: "b"}); err != nil {
		t.Fatal(err)
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM system_info`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 system_info row, got %d", count)
	}
	info, _, err := s.GetSystemInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.OSFamily != "b" {
		t.Fatalf("expected latest upsert to win, got %q", info.OSFamily)
	}
}

func TestMinRawTsBefore(t *testing.T) {
	s := openTestStore(t)
	if _, ok, err := s.MinRawTsBefore(1000); err != nil || ok {
		t.Fatalf("expected no rows, ok=%v err=%v", ok, err)
	}
	if err := s.SaveSnapshots([]model.Snapshot{
		sampleSnapshot(500, 1, 1),
		sampleSnapshot(1500, 1, 1),
	}, model.SystemInfo{}); err != nil {
		t.Fatal(err)
	}
	ts, ok, err := s.MinRawTsBefore(1000)
	if err != nil || !ok || ts != 500 {
		t.Fatalf("expected ts=500 ok=true, got ts=%d ok=%v err=%v", ts, ok, err)
	}
}

func TestDeleteRawRange(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSnapshots([]model.Snapshot{
		sampleSnapshot(0, 1, 1),
		sampleSnapshot(60_000, 1, 1),
		sampleSnapshot(120_000, 1, 1),
	}, model.SystemInfo{}); err != nil {
		t.Fatal(err)
	}
	n, err := s.DeleteRawRange(0, 60_000)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row deleted, got %d", n)
	}
	rows, err := s.GetRawRange(0, 200_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows remaining, got %d", len(rows))
	}
}

func TestSaveAndGetAggregatedRange(t *testing.T) {
	s := openTestStore(t)
	row := model.AggregatedRow{
		CreatedAt: 60_000, Resolution: model.ResolutionMinute,
		CPULoadAvg: 20, CPULoadMin: 10, CPULoadMax: 30,
		MemoryUsedAvg: 200, MemoryUsedMin: 100, MemoryUsedMax: 300,
	}
	if err := s.SaveAggregated(row); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetAggregatedRange(0, 120_000, model.ResolutionMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].CPULoadAvg != 20 || got[0].CPULoadMin != 10 || got[0].CPULoadMax != 30 {
		t.Fatalf("unexpected cpu load: %+v", got[0])
	}

	// Different resolution must not match.
	none, err := s.GetAggregatedRange(0, 120_000, model.ResolutionFiveMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected 0 rows at resolution=300, got %d", len(none))
	}
}

// Corrupting the container bytes of one row leaves the rest of the row
// intact; containers decodes to an empty value.
func TestMalformedContainerBlobYieldsEmptySlice(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSnapshots([]model.Snapshot{sampleSnapshot(1000, 42, 500)}, model.SystemInfo{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`UPDATE raw SET containers = ? WHERE created_at = ?`, []byte{0xff, 0x00, 0xff}, 1000); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRawRange(0, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if len(got[0].Containers) != 0 {
		t.Fatalf("expected empty containers after corruption, got %+v", got[0].Containers)
	}
	if got[0].CPU.UsagePercent != 42 {
		t.Fatalf("expected rest of row intact, cpu=%v", got[0].CPU)
	}
}

func TestRollupRawBucketIsAtomic(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSnapshots([]model.Snapshot{
		sampleSnapshot(60_000, 10, 100),
		sampleSnapshot(60_500, 20, 200),
	}, model.SystemInfo{}); err != nil {
		t.Fatal(err)
	}

	row := model.AggregatedRow{
		CreatedAt: 60_000, Resolution: model.ResolutionMinute,
		CPULoadAvg: 15, CPULoadMin: 10, CPULoadMax: 20,
	}
	if err := s.RollupRawBucket(&row, 60_000, 120_000); err != nil {
		t.Fatal(err)
	}

	raw, err := s.GetRawRange(0, 200_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 0 {
		t.Fatalf("expected raw bucket deleted, got %d rows", len(raw))
	}
	agg, err := s.GetAggregatedRange(0, 200_000, model.ResolutionMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg) != 1 || agg[0].CPULoadAvg != 15 {
		t.Fatalf("expected the aggregated row to land, got %+v", agg)
	}
}

func TestRollupRawBucketNilRowJustDeletes(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSnapshots([]model.Snapshot{sampleSnapshot(60_000, 1, 1)}, model.SystemInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := s.RollupRawBucket(nil, 60_000, 120_000); err != nil {
		t.Fatal(err)
	}
	raw, err := s.GetRawRange(0, 200_000)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 0 {
		t.Fatalf("expected raw rows gone, got %d", len(raw))
	}
	agg, err := s.GetAggregatedRange(0, 200_000, model.ResolutionMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg) != 0 {
		t.Fatalf("expected no aggregated row for nil input, got %d", len(agg))
	}
}

func TestRollupAggregatedBucketReplacesSourceRows(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if err := s.SaveAggregated(model.AggregatedRow{
			CreatedAt: 300_000 + int64(i)*60_000, Resolution: model.ResolutionMinute,
			CPULoadAvg: float64(10 * (i + 1)),
		}); err != nil {
			t.Fatal(err)
		}
	}

	row := model.AggregatedRow{CreatedAt: 300_000, Resolution: model.ResolutionFiveMinute, CPULoadAvg: 30}
	if err := s.RollupAggregatedBucket(&row, 300_000, 600_000, model.ResolutionMinute); err != nil {
		t.Fatal(err)
	}

	minute, err := s.GetAggregatedRange(0, 700_000, model.ResolutionMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(minute) != 0 {
		t.Fatalf("expected source 1-min rows deleted, got %d", len(minute))
	}
	five, err := s.GetAggregatedRange(0, 700_000, model.ResolutionFiveMinute)
	if err != nil {
		t.Fatal(err)
	}
	if len(five) != 1 || five[0].CPULoadAvg != 30 {
		t.Fatalf("expected one 5-min row, got %+v", five)
	}
}

func TestPruneRawBefore(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveSnapshots([]model.Snapshot{
		sampleSnapshot(0, 1, 1),
		sampleSnapshot(1000, 1, 1),
	}, model.SystemInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := s.PruneRawBefore(1000); err != nil {
		t.Fatal(err)
	}
	rows, err := s.GetRawRange(0, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Timestamp != 1000 {
		t.Fatalf("expected only ts=1000 to remain, got %v", rows)
	}
}
