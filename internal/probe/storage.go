package probe

import (
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"github.com/nodewatch/telemetryd/internal/model"
)

func (h *Handle) collectStorage() (model.StorageStats, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return model.StorageStats{}, err
	}

	partStats := make([]model.PartitionStat, 0, len(partitions))
	for _, p := range partitions {
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		partStats = append(partStats, model.PartitionStat{
			Device:       p.Device,
			MountPoint:   p.Mountpoint,
			FSType:       p.Fstype,
			Total:        usage.Total,
			Used:         usage.Used,
			UsagePercent: usage.UsedPercent,
		})
	}

	ioCounters, err := disk.IOCounters()
	if err != nil {
		return model.StorageStats{}, err
	}

	h.diskMu.Lock()
	now := time.Now()
	elapsed := now.Sub(h.lastDiskTime).Seconds()
	disks := make([]model.DiskStat, 0, len(ioCounters))
	for name, io := range ioCounters {
		var readSpeed, writeSpeed uint64
		if prev, ok := h.lastDiskIO[name]; ok && elapsed > 0 {
			if io.ReadBytes >= prev.ReadBytes {
				readSpeed = uint64(float64(io.ReadBytes-prev.ReadBytes) / elapsed)
			}
			if io.WriteBytes >= prev.WriteBytes {
				writeSpeed = uint64(float64(io.WriteBytes-prev.WriteBytes) / elapsed)
			}
		}
		disks = append(disks, model.DiskStat{
			Name:       name,
			ReadBytes:  io.ReadBytes,
			WriteBytes: io.WriteBytes,
			ReadSpeed:  readSpeed,
			WriteSpeed: writeSpeed,
		})
	}
	h.lastDiskIO = ioCounters
	h.lastDiskTime = now
	h.diskMu.Unlock()

	return model.StorageStats{Partitions: partStats, Disks: disks}, nil
}
