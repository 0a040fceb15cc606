package probe

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nodewatch/telemetryd/internal/model"
)

// dockerStatsLine mirrors `docker stats --no-stream --format '{{json .}}'`
// field names, which are all pre-formatted human-readable strings (e.g.
// "12.34%", "1.2GiB / 3.8GiB").
type dockerStatsLine struct {
	Container string `json:"Container"`
	Name      string `json:"Name"`
	CPUPerc   string `json:"CPUPerc"`
	MemUsage  string `json:"MemUsage"`
	NetIO     string `json:"NetIO"`
	BlockIO   string `json:"BlockIO"`
	PIDs      string `json:"PIDs"`
}

// dockerInspectState is the subset of `docker inspect` used to get the
// lifecycle state, which `docker stats` itself doesn't report.
type dockerInspectState struct {
	State struct {
		Status string `json:"Status"`
	} `json:"State"`
}

func toContainerStat(ctx context.Context, raw dockerStatsLine) model.ContainerStat {
	rxBytes, txBytes := parseNetIO(raw.NetIO)
	readBytes, writeBytes := parseNetIO(raw.BlockIO)
	memUsed, memLimit := parseMemUsage(raw.MemUsage)
	pids, _ := strconv.Atoi(strings.TrimSpace(raw.PIDs))

	return model.ContainerStat{
		ID:               raw.Container,
		Name:             raw.Name,
		State:            inspectState(ctx, raw.Container),
		CPUPercent:       parsePercent(raw.CPUPerc),
		MemoryUsageBytes: memUsed,
		MemoryLimitBytes: memLimit,
		NetworkRxBytes:   rxBytes,
		NetworkTxBytes:   txBytes,
		BlockReadBytes:   readBytes,
		BlockWriteBytes:  writeBytes,
		Pids:             pids,
	}
}

func inspectState(ctx context.Context, id string) model.ContainerState {
	cmd := exec.CommandContext(ctx, "docker", "inspect", id)
	out, err := cmd.Output()
	if err != nil {
		return model.ContainerUnknown
	}
	var states []dockerInspectState
	if err := json.Unmarshal(out, &states); err != nil || len(states) == 0 {
		return model.ContainerUnknown
	}
	switch strings.ToLower(states[0].State.Status) {
	case "running":
		return model.ContainerRunning
	case "exited":
		return model.ContainerExited
	case "paused":
		return model.ContainerPaused
	case "restarting":
		return model.ContainerRestarting
	default:
		return model.ContainerUnknown
	}
}

func parsePercent(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// parseNetIO parses docker's "1.2MB / 3.4MB" style dual-value fields into
// (rx/read, tx/write) byte counts.
func parseNetIO(s string) (uint64, uint64) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0
	}
	return parseHumanBytes(parts[0]), parseHumanBytes(parts[1])
}

func parseMemUsage(s string) (uint64, uint64) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, 0
	}
	return parseHumanBytes(parts[0]), parseHumanBytes(parts[1])
}

var byteUnits = map[string]float64{
	"b":   1,
	"kb":  1000,
	"kib": 1024,
	"mb":  1000 * 1000,
	"mib": 1024 * 1024,
	"gb":  1000 * 1000 * 1000,
	"gib": 1024 * 1024 * 1024,
	"tb":  1000 * 1000 * 1000 * 1000,
	"tib": 1024 * 1024 * 1024 * 1024,
}

func parseHumanBytes(s string) uint64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	i := 0
	for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	numPart, unitPart := s[:i], strings.ToLower(strings.TrimSpace(s[i:]))
	val, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0
	}
	mult, ok := byteUnits[unitPart]
	if !ok {
		mult = 1
	}
	return uint64(val * mult)
}

const containerPollTimeout = 5 * time.Second
