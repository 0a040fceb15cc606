package blob

import (
	"encoding/json"

	"github.com/nodewatch/telemetryd/internal/model"
)

// legacySystemStats is the pre-tag-2 shape system_dynamic blobs were once
// written in. model.SystemDynamic (tag 2) is a proper subset of it, so a v1
// blob found in the system_dynamic slot decodes into this and projects
// down.
type legacySystemStats struct {
	UptimeSecs   uint64  `json:"uptimeSecs"`
	ProcessCount int     `json:"processCount"`
	ThreadCount  int     `json:"threadCount"`
	CPUVoltage   float64 `json:"cpuVoltage"`
	FanSpeedsRPM []int   `json:"fanSpeedsRpm"`
	// Fields present only in the legacy superset, dropped on projection.
	BootID      string `json:"bootId,omitempty"`
	KernelBuild string `json:"kernelBuild,omitempty"`
}

func (l legacySystemStats) project() model.SystemDynamic {
	return model.SystemDynamic{
		UptimeSecs:   l.UptimeSecs,
		ProcessCount: l.ProcessCount,
		ThreadCount:  l.ThreadCount,
		CPUVoltage:   l.CPUVoltage,
		FanSpeedsRPM: l.FanSpeedsRPM,
	}
}

// EncodeSystemDynamic writes the current (tag 2) shape.
func EncodeSystemDynamic(v model.SystemDynamic) []byte {
	return EncodeSimple(ColumnSystemDynamic, v)
}

// DecodeSystemDynamic is the three-way decode for this column: tag 2
// decodes directly, tag 1 decodes the legacy superset and projects,
// anything else (including empty/corrupt data) is legacy v0 best-effort.
func DecodeSystemDynamic(data []byte) model.SystemDynamic {
	var out model.SystemDynamic
	if len(data) == 0 {
		return out
	}
	switch data[0] {
	case ColumnSystemDynamic.Tag(): // 2
		_ = json.Unmarshal(data[1:], &out)
	case 1:
		var legacy legacySystemStats
		if json.Unmarshal(data[1:], &legacy) == nil {
			out = legacy.project()
		}
	default:
		_ = json.Unmarshal(data, &out)
	}
	return out
}
