package probe

import (
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/nodewatch/telemetryd/internal/model"
)

func (h *Handle) collectSystemDynamic() (model.SystemDynamic, error) {
	uptime, err := host.Uptime()
	if err != nil {
		return model.SystemDynamic{}, err
	}

	pids, err := process.Pids()
	if err != nil {
		return model.SystemDynamic{}, err
	}

	return model.SystemDynamic{
		UptimeSecs:   uptime,
		ProcessCount: len(pids),
		ThreadCount:  countThreads(pids),
	}, nil
}

// countThreads sums per-process thread counts; a process that has exited
// mid-scan is skipped rather than failing the whole probe.
func countThreads(pids []int32) int {
	total := 0
	for _, pid := range pids {
		p, err := process.NewProcess(pid)
		if err != nil {
			continue
		}
		n, err := p.NumThreads()
		if err != nil {
			continue
		}
		total += int(n)
	}
	return total
}

// CollectSystemInfo captures the static host identity once at startup.
// Unlike the per-tick probes it has no cache: it is called exactly once.
// gopsutil's host.Info covers OS identity; system manufacturer/model has no
// gopsutil accessor, so it is read best-effort from the Linux DMI sysfs
// tree (a missing file degrades to an empty string, never an error).
func CollectSystemInfo() (model.SystemInfo, error) {
	info, err := host.Info()
	if err != nil {
		return model.SystemInfo{}, err
	}
	cpuName, _, _, _ := collectCPUInfo()

	return model.SystemInfo{
		OSFamily:           info.OS,
		OSManufacturer:     info.PlatformFamily,
		OSVersion:          info.PlatformVersion,
		SystemManufacturer: readDMIField("sys_vendor"),
		SystemModel:        readDMIField("product_name"),
		ProcessorName:      cpuName,
	}, nil
}

func readDMIField(name string) string {
	data, err := os.ReadFile("/sys/class/dmi/id/" + name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
