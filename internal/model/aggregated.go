package model

// Resolution is a persisted aggregation resolution in seconds. Only 60 and
// 300 are ever written.
type Resolution int

const (
	ResolutionMinute     Resolution = 60
	ResolutionFiveMinute Resolution = 300
)

// AggregatedRow is one bucket [CreatedAt, CreatedAt+Resolution) of rolled-up
// scalars plus last-observation opaque columns (blob-encoded at the store
// layer, decoded here).
type AggregatedRow struct {
	CreatedAt  int64      `json:"createdAt"`
	Resolution Resolution `json:"resolution"`

	CPULoadAvg float64 `json:"cpuLoadAvg"`
	CPULoadMin float64 `json:"cpuLoadMin"`
	CPULoadMax float64 `json:"cpuLoadMax"`

	MemoryUsedAvg uint64 `json:"memoryUsedAvg"`
	MemoryUsedMin uint64 `json:"memoryUsedMin"`
	MemoryUsedMax uint64 `json:"memoryUsedMax"`

	Containers    []ContainerStat `json:"containers"`
	Storage       StorageStats    `json:"storage"`
	Network       []InterfaceStat `json:"network"`
	SystemDynamic SystemDynamic   `json:"systemDynamic"`
}

// ToSnapshot projects an aggregated row to a Snapshot for history
// stitching: timestamp = CreatedAt, cpu.usagePercent = CPULoadAvg,
// ram.used = MemoryUsedAvg. Only the scalar aggregate columns are
// well-defined projections; the opaque columns carry their last-observed
// value through unchanged.
func (r AggregatedRow) ToSnapshot() Snapshot {
	return Snapshot{
		Timestamp: r.CreatedAt,
		CPU: CPUStats{
			UsagePercent: r.CPULoadAvg,
		},
		RAM: RAMStats{
			Used: r.MemoryUsedAvg,
		},
		Containers:    r.Containers,
		Storage:       r.Storage,
		Network:       r.Network,
		SystemDynamic: r.SystemDynamic,
	}
}
