package pipeline

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemLoad is a host resource snapshot reported alongside queue stats
// so operators can correlate queue depth with encoder pressure.
type SystemLoad struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  uint64  `json:"memory_used_mb"`
}

// LoadMonitor samples host CPU and memory usage.
type LoadMonitor struct {
	logger hclog.Logger
}

func NewLoadMonitor(logger hclog.Logger) *LoadMonitor {
	return &LoadMonitor{logger: logger.Named("load-monitor")}
}

// Sample reads current host load. Probe failures degrade to zero values;
// stats reporting must never fail because a /proc read did.
func (m *LoadMonitor) Sample() SystemLoad {
	var load SystemLoad

	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		load.CPUPercent = percents[0]
	} else if err != nil {
		m.logger.Debug("cpu sample failed", "error", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		load.MemoryPercent = vm.UsedPercent
		load.MemoryUsedMB = vm.Used / 1024 / 1024
	} else {
		m.logger.Debug("memory sample failed", "error", err)
	}

	return load
}
