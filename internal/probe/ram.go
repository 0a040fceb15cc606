package probe

import (
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/nodewatch/telemetryd/internal/model"
)

func (h *Handle) collectRAM() (model.RAMStats, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return model.RAMStats{}, err
	}
	return model.RAMStats{
		Total:        vm.Total,
		Used:         vm.Used,
		Available:    vm.Available,
		UsagePercent: vm.UsedPercent,
	}, nil
}
