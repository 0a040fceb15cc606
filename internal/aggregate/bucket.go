// Package aggregate rolls raw snapshots up into 1-minute and 5-minute
// bucket rows and runs the retention/compaction schedule against the store.
package aggregate

import "github.com/nodewatch/telemetryd/internal/model"

// AggregateRaw computes the 1-minute AggregatedRow for one bucket's raw
// snapshots. rows must be non-empty.
func AggregateRaw(bucketStart int64, rows []model.Snapshot) model.AggregatedRow {
	cpu := make([]float64, len(rows))
	ram := make([]uint64, len(rows))
	containerSets := make([][]model.ContainerStat, len(rows))
	for i, r := range rows {
		cpu[i] = r.CPU.UsagePercent
		ram[i] = r.RAM.Used
		containerSets[i] = r.Containers
	}

	avg, min, max := floatStats(cpu)
	uavg, umin, umax := uintStats(ram)
	last := rows[len(rows)-1]

	return model.AggregatedRow{
		CreatedAt:     bucketStart,
		Resolution:    model.ResolutionMinute,
		CPULoadAvg:    avg,
		CPULoadMin:    min,
		CPULoadMax:    max,
		MemoryUsedAvg: uavg,
		MemoryUsedMin: umin,
		MemoryUsedMax: umax,
		Containers:    aggregateContainers(containerSets),
		Storage:       last.Storage,
		Network:       last.Network,
		SystemDynamic: last.SystemDynamic,
	}
}

// AggregateRollup computes the 5-minute AggregatedRow from a set of source
// 1-minute rows: min/max fold across source min/max, avg is the unweighted
// mean of source avgs (source buckets are equal-width). rows must be
// non-empty and ordered ascending by CreatedAt.
func AggregateRollup(bucketStart int64, rows []model.AggregatedRow) model.AggregatedRow {
	cpuAvgs := make([]float64, len(rows))
	cpuMins := make([]float64, len(rows))
	cpuMaxs := make([]float64, len(rows))
	ramAvgs := make([]uint64, len(rows))
	ramMins := make([]uint64, len(rows))
	ramMaxs := make([]uint64, len(rows))
	containerSets := make([][]model.ContainerStat, len(rows))

	for i, r := range rows {
		cpuAvgs[i] = r.CPULoadAvg
		cpuMins[i] = r.CPULoadMin
		cpuMaxs[i] = r.CPULoadMax
		ramAvgs[i] = r.MemoryUsedAvg
		ramMins[i] = r.MemoryUsedMin
		ramMaxs[i] = r.MemoryUsedMax
		containerSets[i] = r.Containers
	}

	last := rows[len(rows)-1]

	return model.AggregatedRow{
		CreatedAt:     bucketStart,
		Resolution:    model.ResolutionFiveMinute,
		CPULoadAvg:    meanFloat(cpuAvgs),
		CPULoadMin:    minFloat(cpuMins),
		CPULoadMax:    maxFloat(cpuMaxs),
		MemoryUsedAvg: meanUint(ramAvgs),
		MemoryUsedMin: minUint(ramMins),
		MemoryUsedMax: maxUint(ramMaxs),
		Containers:    aggregateContainers(containerSets),
		Storage:       last.Storage,
		Network:       last.Network,
		SystemDynamic: last.SystemDynamic,
	}
}

func floatStats(vs []float64) (avg, min, max float64) {
	return meanFloat(vs), minFloat(vs), maxFloat(vs)
}

func uintStats(vs []uint64) (avg, min, max uint64) {
	return meanUint(vs), minUint(vs), maxUint(vs)
}

func meanFloat(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func minFloat(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxFloat(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// meanUint uses truncating division.
func meanUint(vs []uint64) uint64 {
	if len(vs) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range vs {
		sum += v
	}
	return sum / uint64(len(vs))
}

func minUint(vs []uint64) uint64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxUint(vs []uint64) uint64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// containerAccum folds one container's observations across the bucket in
// source-row order: means for gauges, sums for counters, last observation
// for the rest, first observation for identity.
type containerAccum struct {
	first model.ContainerStat
	seen  int

	cpuPercentSum      float64
	memUsageSum        uint64
	memLimitSum        uint64
	cpuKernelSum       float64
	cpuUserSum         float64

	netRxBytesSum, netTxBytesSum     uint64
	netRxPacketsSum, netTxPacketsSum uint64
	blockReadSum, blockWriteSum      uint64
	throttledPeriodsSum              uint64
	throttledTimeSum                 uint64

	last model.ContainerStat
}

func (a *containerAccum) add(c model.ContainerStat) {
	if a.seen == 0 {
		a.first = c
	}
	a.seen++

	a.cpuPercentSum += c.CPUPercent
	a.memUsageSum += c.MemoryUsageBytes
	a.memLimitSum += c.MemoryLimitBytes
	a.cpuKernelSum += c.CPUKernelPercent
	a.cpuUserSum += c.CPUUserPercent

	a.netRxBytesSum += c.NetworkRxBytes
	a.netTxBytesSum += c.NetworkTxBytes
	a.netRxPacketsSum += c.NetworkRxPackets
	a.netTxPacketsSum += c.NetworkTxPackets
	a.blockReadSum += c.BlockReadBytes
	a.blockWriteSum += c.BlockWriteBytes
	a.throttledPeriodsSum += c.CPUThrottledPeriods
	a.throttledTimeSum += c.CPUThrottledTimeNs

	a.last = c
}

func (a *containerAccum) result() model.ContainerStat {
	n := float64(a.seen)
	return model.ContainerStat{
		ID:   a.first.ID,
		Name: a.first.Name,

		CPUPercent:       a.cpuPercentSum / n,
		MemoryUsageBytes: a.memUsageSum / uint64(a.seen),
		MemoryLimitBytes: a.memLimitSum / uint64(a.seen),
		CPUKernelPercent: a.cpuKernelSum / n,
		CPUUserPercent:   a.cpuUserSum / n,

		NetworkRxBytes:      a.netRxBytesSum,
		NetworkTxBytes:      a.netTxBytesSum,
		NetworkRxPackets:    a.netRxPacketsSum,
		NetworkTxPackets:    a.netTxPacketsSum,
		BlockReadBytes:      a.blockReadSum,
		BlockWriteBytes:     a.blockWriteSum,
		CPUThrottledPeriods: a.throttledPeriodsSum,
		CPUThrottledTimeNs:  a.throttledTimeSum,

		State:               a.last.State,
		Pids:                a.last.Pids,
		PidsLimit:           a.last.PidsLimit,
		OnlineCPUs:          a.last.OnlineCPUs,
		NetworkErrors:       a.last.NetworkErrors,
		NetworkDropped:      a.last.NetworkDropped,
		MemoryMaxUsageBytes: a.last.MemoryMaxUsageBytes,
	}
}

// aggregateContainers groups per-row container slices by id and returns
// the folded result sorted by name.
func aggregateContainers(rows [][]model.ContainerStat) []model.ContainerStat {
	order := make([]string, 0)
	groups := make(map[string]*containerAccum)

	for _, row := range rows {
		for _, c := range row {
			acc, ok := groups[c.ID]
			if !ok {
				acc = &containerAccum{}
				groups[c.ID] = acc
				order = append(order, c.ID)
			}
			acc.add(c)
		}
	}

	out := make([]model.ContainerStat, 0, len(order))
	for _, id := range order {
		out = append(out, groups[id].result())
	}
	model.SortContainersByName(out)
	return out
}
