package probe

import (
	"time"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/nodewatch/telemetryd/internal/model"
)

func (h *Handle) collectCPU() (model.CPUStats, error) {
	perCore, err := h.cpuPercent.getOrRefresh(func() ([]float64, error) {
		return cpu.Percent(200*time.Millisecond, true)
	})
	if err != nil {
		return model.CPUStats{}, err
	}

	var total float64
	for _, p := range perCore {
		total += p
	}
	if len(perCore) > 0 {
		total /= float64(len(perCore))
	}

	modelName, physical, logical, err := collectCPUInfo()
	if err != nil {
		return model.CPUStats{}, err
	}

	return model.CPUStats{
		Model:         modelName,
		PhysicalCores: physical,
		LogicalCores:  logical,
		UsagePercent:  total,
		Temperature:   readCPUTemperature(),
	}, nil
}

// readCPUTemperature always returns zero: no temperature sensor is read on
// any platform. A missing reading is not a probe failure.
func readCPUTemperature() float64 {
	return 0
}
