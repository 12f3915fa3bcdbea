// Package sysinfo describes the host that generates keys and samples its
// resource usage around benchmark runs.
package sysinfo

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

type SystemInfo struct {
	OS           string  `json:"os"`
	Architecture string  `json:"architecture"`
	CPUModel     string  `json:"cpu_model"`
	CPUCores     int     `json:"cpu_cores"`
	CPUThreads   int     `json:"cpu_threads"`
	TotalMemory  uint64  `json:"total_memory"`
	GoVersion    string  `json:"go_version"`
	Hostname     string  `json:"hostname"`
	Platform     string  `json:"platform"`
	LoadAverage  float64 `json:"load_average"`
}

// Collect gathers what gopsutil can report. Missing probes leave their
// fields zero rather than failing.
func Collect(ctx context.Context) (*SystemInfo, error) {
	info := &SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		GoVersion:    runtime.Version(),
		CPUCores:     runtime.NumCPU(),
		CPUThreads:   runtime.NumCPU(),
	}

	cpuInfo, err := cpu.InfoWithContext(ctx)
	if err == nil && len(cpuInfo) > 0 {
		info.CPUModel = strings.TrimSpace(cpuInfo[0].ModelName)
	}

	if cores, err := cpu.CountsWithContext(ctx, false); err == nil && cores > 0 {
		info.CPUCores = cores
	}
	if threads, err := cpu.CountsWithContext(ctx, true); err == nil && threads > 0 {
		info.CPUThreads = threads
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.TotalMemory = memInfo.Total
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hostInfo.Hostname
		info.Platform = hostInfo.Platform
	}

	if loadAvg, err := load.AvgWithContext(ctx); err == nil {
		info.LoadAverage = loadAvg.Load1
	}

	return info, ctx.Err()
}

// Usage is a point-in-time reading of CPU and memory.
type Usage struct {
	CPUPercent float64
	MemoryUsed uint64
}

// Sample measures CPU utilisation over interval and reads memory in use.
func Sample(ctx context.Context, interval time.Duration) Usage {
	var u Usage
	if pct, err := cpu.PercentWithContext(ctx, interval, false); err == nil && len(pct) > 0 {
		u.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		u.MemoryUsed = vm.Used
	}
	return u
}

// Delta returns the CPU change and the memory growth from before to after;
// shrinking memory counts as zero.
func Delta(before, after Usage) (cpuPercent float64, memoryGrowth uint64) {
	cpuPercent = after.CPUPercent - before.CPUPercent
	if after.MemoryUsed > before.MemoryUsed {
		memoryGrowth = after.MemoryUsed - before.MemoryUsed
	}
	return cpuPercent, memoryGrowth
}
