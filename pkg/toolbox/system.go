package toolbox

import (
	"context"
	"math"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/freitascorp/deskclaw/pkg/platform"
)

const gib = 1 << 30

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func toGB(b uint64) float64 { return round2(float64(b) / gib) }

// SystemInfo is the host summary returned by get_system_info.
type SystemInfo struct {
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
	Hostname        string `json:"hostname"`
	CPUCount        int    `json:"cpu_count"`
	GoVersion       string `json:"go_version"`
	Architecture    string `json:"architecture"`
	WorkingDir      string `json:"working_directory"`
	Environment     string `json:"environment"`
}

func GetSystemInfo(ctx context.Context, env platform.Env) (SystemInfo, error) {
	info := SystemInfo{
		OS:           runtime.GOOS,
		GoVersion:    runtime.Version(),
		Architecture: runtime.GOARCH,
		Environment:  env.Name(),
	}
	h, err := host.InfoWithContext(ctx)
	if err != nil {
		return info, err
	}
	info.Platform = h.Platform
	info.PlatformVersion = h.PlatformVersion
	info.KernelVersion = h.KernelVersion
	info.Hostname = h.Hostname
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCount = n
	} else {
		info.CPUCount = runtime.NumCPU()
	}
	info.WorkingDir, _ = os.Getwd()
	return info, nil
}

// DiskUsage is reported in GB with two decimals.
type DiskUsage struct {
	Path        string  `json:"path"`
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	FreeGB      float64 `json:"free_gb"`
	UsedPercent float64 `json:"used_percent"`
}

func GetDiskUsage(ctx context.Context, path string) (DiskUsage, error) {
	u, err := disk.UsageWithContext(ctx, clean(path))
	if err != nil {
		return DiskUsage{}, err
	}
	return DiskUsage{
		Path:        path,
		TotalGB:     toGB(u.Total),
		UsedGB:      toGB(u.Used),
		FreeGB:      toGB(u.Free),
		UsedPercent: round2(u.UsedPercent),
	}, nil
}

// MemoryStat covers either virtual memory or swap.
type MemoryStat struct {
	TotalGB     float64 `json:"total_gb"`
	UsedGB      float64 `json:"used_gb"`
	AvailableGB float64 `json:"available_gb"`
	UsedPercent float64 `json:"used_percent"`
}

type MemoryUsage struct {
	Virtual MemoryStat `json:"virtual"`
	Swap    MemoryStat `json:"swap"`
}

func GetMemoryUsage(ctx context.Context) (MemoryUsage, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return MemoryUsage{}, err
	}
	usage := MemoryUsage{Virtual: MemoryStat{
		TotalGB:     toGB(vm.Total),
		UsedGB:      toGB(vm.Used),
		AvailableGB: toGB(vm.Available),
		UsedPercent: round2(vm.UsedPercent),
	}}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		usage.Swap = MemoryStat{
			TotalGB:     toGB(sw.Total),
			UsedGB:      toGB(sw.Used),
			AvailableGB: toGB(sw.Free),
			UsedPercent: round2(sw.UsedPercent),
		}
	}
	return usage, nil
}

// Process is one row of get_running_processes.
type Process struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Username      string  `json:"username"`
}

// GetRunningProcesses returns the top limit processes by CPU. Processes
// that vanish or deny access while being read are skipped.
func GetRunningProcesses(ctx context.Context, limit int) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cpuPct, _ := p.CPUPercentWithContext(ctx)
		memPct, _ := p.MemoryPercentWithContext(ctx)
		user, err := p.UsernameWithContext(ctx)
		if err != nil {
			user = "N/A"
		}
		out = append(out, Process{
			PID:           p.Pid,
			Name:          name,
			CPUPercent:    round2(cpuPct),
			MemoryPercent: round2(float64(memPct)),
			Username:      user,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CPUPercent > out[j].CPUPercent })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var secretMarkers = []string{"SECRET", "TOKEN", "PASSWORD", "PASSWD", "API_KEY", "APP_KEY", "PRIVATE"}

// Environment returns the process environment as a map. Values of
// credential-looking variables are masked.
func Environment() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		if isSecret(k) && v != "" {
			v = "***"
		}
		vars[k] = v
	}
	return vars
}

func isSecret(key string) bool {
	upper := strings.ToUpper(key)
	for _, m := range secretMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}
