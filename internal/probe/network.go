package probe

import (
	"strings"
	"time"

	gopsutilnet "github.com/shirou/gopsutil/v4/net"

	"github.com/nodewatch/telemetryd/internal/model"
)

// isVirtualInterface filters loopback, container-bridge, and other virtual
// interfaces out of the reported set.
func isVirtualInterface(name string) bool {
	name = strings.ToLower(name)
	switch {
	case name == "lo", name == "lo0":
		return true
	case strings.HasPrefix(name, "veth"),
		strings.HasPrefix(name, "docker"),
		strings.HasPrefix(name, "br-"),
		strings.HasPrefix(name, "virbr"),
		strings.HasPrefix(name, "utun"),
		strings.HasPrefix(name, "awdl"),
		strings.HasPrefix(name, "llw"):
		return true
	}
	return false
}

func (h *Handle) collectNetwork(now time.Time) ([]model.InterfaceStat, error) {
	counters, err := gopsutilnet.IOCounters(true)
	if err != nil {
		return nil, err
	}

	h.netMu.Lock()
	defer h.netMu.Unlock()

	elapsed := now.Sub(h.lastNetTime).Seconds()
	out := make([]model.InterfaceStat, 0, len(counters))
	for _, io := range counters {
		if isVirtualInterface(io.Name) {
			continue
		}

		var rxSpeed, txSpeed uint64
		if prev, ok := h.lastNetIO[io.Name]; ok && elapsed > 0 {
			if io.BytesRecv >= prev.rxBytes {
				rxSpeed = uint64(float64(io.BytesRecv-prev.rxBytes) / elapsed)
			}
			if io.BytesSent >= prev.txBytes {
				txSpeed = uint64(float64(io.BytesSent-prev.txBytes) / elapsed)
			}
		}
		h.lastNetIO[io.Name] = netCounters{rxBytes: io.BytesRecv, txBytes: io.BytesSent}

		out = append(out, model.InterfaceStat{
			Name:       io.Name,
			RxBytes:    io.BytesRecv,
			TxBytes:    io.BytesSent,
			RxPackets:  io.PacketsRecv,
			TxPackets:  io.PacketsSent,
			RxBytesSec: rxSpeed,
			TxBytesSec: txSpeed,
		})
	}
	h.lastNetTime = now

	return out, nil
}
