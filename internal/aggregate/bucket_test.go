package aggregate

import (
	"testing"

	"github.com/nodewatch/telemetryd/internal/model"
)

func snap(ts int64, cpu float64, ram uint64) model.Snapshot {
	return model.Snapshot{
		Timestamp: ts,
		CPU:       model.CPUStats{UsagePercent: cpu},
		RAM:       model.RAMStats{Used: ram},
	}
}

func TestThreeSnapshotBucket(t *testing.T) {
	rows := []model.Snapshot{
		snap(60_000, 10, 100),
		snap(60_001, 20, 200),
		snap(60_002, 30, 300),
	}
	row := AggregateRaw(60_000, rows)

	if row.CreatedAt != 60_000 || row.Resolution != model.ResolutionMinute {
		t.Fatalf("unexpected bucket identity: %+v", row)
	}
	if row.CPULoadAvg != 20 || row.CPULoadMin != 10 || row.CPULoadMax != 30 {
		t.Fatalf("unexpected cpu load: avg=%v min=%v max=%v", row.CPULoadAvg, row.CPULoadMin, row.CPULoadMax)
	}
	if row.MemoryUsedAvg != 200 || row.MemoryUsedMin != 100 || row.MemoryUsedMax != 300 {
		t.Fatalf("unexpected memory used: avg=%v min=%v max=%v", row.MemoryUsedAvg, row.MemoryUsedMin, row.MemoryUsedMax)
	}
}

func TestFiveBucketRollup(t *testing.T) {
	avgs := []float64{10, 20, 30, 40, 50}
	rows := make([]model.AggregatedRow, len(avgs))
	for i, avg := range avgs {
		rows[i] = model.AggregatedRow{
			CreatedAt:  300_000 + int64(i)*60_000,
			Resolution: model.ResolutionMinute,
			CPULoadAvg: avg,
			CPULoadMin: avg - 1,
			CPULoadMax: avg + 1,
		}
	}

	row := AggregateRollup(300_000, rows)

	if row.CreatedAt != 300_000 || row.Resolution != model.ResolutionFiveMinute {
		t.Fatalf("unexpected bucket identity: %+v", row)
	}
	if row.CPULoadAvg != 30 {
		t.Fatalf("expected avg=30, got %v", row.CPULoadAvg)
	}
	if row.CPULoadMin != 9 {
		t.Fatalf("expected min=9, got %v", row.CPULoadMin)
	}
	if row.CPULoadMax != 51 {
		t.Fatalf("expected max=51, got %v", row.CPULoadMax)
	}
}

func TestAggregateContainersSumsCountersAndAveragesGauges(t *testing.T) {
	a := snap(0, 0, 0)
	a.Containers = []model.ContainerStat{
		{ID: "c1", Name: "web", CPUPercent: 10, NetworkRxBytes: 100, State: model.ContainerRunning},
	}
	b := snap(1, 0, 0)
	b.Containers = []model.ContainerStat{
		{ID: "c1", Name: "web", CPUPercent: 30, NetworkRxBytes: 50, State: model.ContainerExited},
	}

	out := AggregateRaw(0, []model.Snapshot{a, b})
	if len(out.Containers) != 1 {
		t.Fatalf("expected 1 container group, got %d", len(out.Containers))
	}
	c := out.Containers[0]
	if c.CPUPercent != 20 {
		t.Fatalf("expected mean cpu percent 20, got %v", c.CPUPercent)
	}
	if c.NetworkRxBytes != 150 {
		t.Fatalf("expected summed rx bytes 150, got %v", c.NetworkRxBytes)
	}
	if c.State != model.ContainerExited {
		t.Fatalf("expected last-observed state Exited, got %v", c.State)
	}
	if c.ID != "c1" || c.Name != "web" {
		t.Fatalf("expected identity from first observation, got %+v", c)
	}
}
