package probe

import (
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"

	"github.com/nodewatch/telemetryd/internal/model"
)

// Handle bundles the mutable caches every probe needs across ticks: the
// previous-interval counters for rate derivation (network, disk IO) and the
// minimum-refresh-interval cache for CPU sampling. One Handle is shared by
// all ticks of the sampling worker's lifetime; nothing here is package
// global, so tests can run independent Handles side by side.
type Handle struct {
	cpuPercent *minIntervalCache[[]float64]

	netMu       sync.Mutex
	lastNetTime time.Time
	lastNetIO   map[string]netCounters

	diskMu       sync.Mutex
	lastDiskTime time.Time
	lastDiskIO   map[string]disk.IOCountersStat

	containers *ContainerRegistry
}

type netCounters struct {
	rxBytes, txBytes uint64
}

// Close releases the container registry's background actors. Call once at
// shutdown.
func (h *Handle) Close() {
	h.containers.Close()
}

// NewHandle constructs a Handle with CPU sampling capped at minCPUInterval
// (gopsutil's cpu.Percent needs a minimum window to be meaningful; faster
// callers get the cached value).
func NewHandle(minCPUInterval time.Duration) *Handle {
	return &Handle{
		cpuPercent: newMinIntervalCache[[]float64](minCPUInterval),
		lastNetIO:  make(map[string]netCounters),
		lastDiskIO: make(map[string]disk.IOCountersStat),
		containers: NewContainerRegistry(),
	}
}

// ProbeError names which probe failed, so the sampling worker can log the
// probe name and skip the whole tick.
type ProbeError struct {
	Probe string
	Err   error
}

func (e *ProbeError) Error() string { return fmt.Sprintf("probe %s: %v", e.Probe, e.Err) }
func (e *ProbeError) Unwrap() error { return e.Err }

// CollectAll runs every probe and assembles one Snapshot. It returns a
// *ProbeError naming the first probe that failed; the caller must discard
// the whole tick on any error rather than use a partial snapshot.
func (h *Handle) CollectAll(now time.Time) (model.Snapshot, error) {
	cpuStats, err := h.collectCPU()
	if err != nil {
		return model.Snapshot{}, &ProbeError{Probe: "cpu", Err: err}
	}
	ramStats, err := h.collectRAM()
	if err != nil {
		return model.Snapshot{}, &ProbeError{Probe: "ram", Err: err}
	}
	storageStats, err := h.collectStorage()
	if err != nil {
		return model.Snapshot{}, &ProbeError{Probe: "storage", Err: err}
	}
	netStats, err := h.collectNetwork(now)
	if err != nil {
		return model.Snapshot{}, &ProbeError{Probe: "network", Err: err}
	}
	sysDynamic, err := h.collectSystemDynamic()
	if err != nil {
		return model.Snapshot{}, &ProbeError{Probe: "system", Err: err}
	}
	containers, err := h.containers.Collect()
	if err != nil {
		return model.Snapshot{}, &ProbeError{Probe: "containers", Err: err}
	}

	return model.Snapshot{
		Timestamp:     now.UnixMilli(),
		CPU:           cpuStats,
		RAM:           ramStats,
		Storage:       storageStats,
		Network:       netStats,
		SystemDynamic: sysDynamic,
		Containers:    containers,
	}, nil
}

// CollectCPU and CollectRAM expose the single-metric probes directly for
// the per-subscriber WebSocket pull loops, which poll at their own cadence
// instead of riding the sampling tick.
func (h *Handle) CollectCPU() (model.CPUStats, error) { return h.collectCPU() }
func (h *Handle) CollectRAM() (model.RAMStats, error) { return h.collectRAM() }

func collectCPUInfo() (string, int, int, error) {
	info, err := cpu.Info()
	if err != nil {
		return "", 0, 0, err
	}
	logical, err := cpu.Counts(true)
	if err != nil {
		return "", 0, 0, err
	}
	physical, err := cpu.Counts(false)
	if err != nil {
		return "", 0, 0, err
	}
	var modelName string
	if len(info) > 0 {
		modelName = info[0].ModelName
	}
	return modelName, physical, logical, nil
}
