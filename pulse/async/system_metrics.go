package async

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/teranos/quotesearch/errors"
)

const bytesPerGB = 1024 * 1024 * 1024

// SystemMetrics is host memory usage
type SystemMetrics struct {
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ProcessUsage is one worker process's resource usage
type ProcessUsage struct {
	RSSMB      float64 `json:"rss_mb"`
	CPUPercent float64 `json:"cpu_percent"`
}

// getMemoryStats returns host memory in bytes
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// HostMetrics samples host memory. Zero values mean the OS did not answer.
func HostMetrics() SystemMetrics {
	total, available, err := getMemoryStats()
	if err != nil || total == 0 {
		return SystemMetrics{}
	}
	totalGB := float64(total) / bytesPerGB
	usedGB := float64(total-available) / bytesPerGB
	return SystemMetrics{
		MemoryUsedGB:  usedGB,
		MemoryTotalGB: totalGB,
		MemoryPercent: usedGB / totalGB * 100,
	}
}

// SampleProcess reads RSS and CPU usage of a live process
func SampleProcess(pid int) (ProcessUsage, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcessUsage{}, errors.Wrapf(err, "process %d not found", pid)
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return ProcessUsage{}, errors.Wrapf(err, "failed to read memory of process %d", pid)
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		cpu = 0
	}
	return ProcessUsage{
		RSSMB:      float64(info.RSS) / 1024 / 1024,
		CPUPercent: cpu,
	}, nil
}

// recommendedWorkers estimates how many workers fit in available memory
func recommendedWorkers(availableGB float64) int {
	const memoryPerWorker = 0.25 // GB per worker process
	const memoryBuffer = 1.0     // GB reserved for the server and the OS

	if availableGB < memoryBuffer {
		return 1
	}
	recommended := int((availableGB - memoryBuffer) / memoryPerWorker)
	if recommended < 1 {
		return 1
	}
	if recommended > 64 {
		return 64
	}
	return recommended
}

// memoryPressureWarning returns a warning when workers exceed what
// available memory supports, or "" when it cannot tell or all is well
func memoryPressureWarning(workers int) string {
	total, available, err := getMemoryStats()
	if err != nil {
		return ""
	}
	availableGB := float64(available) / bytesPerGB
	totalGB := float64(total) / bytesPerGB
	recommended := recommendedWorkers(availableGB)

	if workers > recommended {
		return fmt.Sprintf(
			"Worker cap (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB)",
			workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}
