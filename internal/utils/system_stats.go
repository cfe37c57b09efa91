package utils

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"ipcam-analysis/internal/core/processor"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	log "github.com/sirupsen/logrus"
)

var (
	lastCPUTime        time.Time
	lastCPUUsage       float64
	cpuUsageMutex      sync.Mutex
	cpuUsageSampleRate = 500 * time.Millisecond
)

// SystemStats enthält aktuelle System- und Warteschlangenstatistiken
type SystemStats struct {
	Hostname    string  `json:"hostname"`
	Platform    string  `json:"platform"`
	NumCPU      int     `json:"num_cpu"`
	GoRoutines  int     `json:"go_routines"`
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryAlloc string  `json:"memory_alloc"`
	MemorySys   string  `json:"memory_sys"`

	Queue processor.QueueStats `json:"queue"`

	Timestamp time.Time `json:"timestamp"`
}

// Hostname ermittelt den Rechnernamen für die Fehlermail.
// gopsutil liefert den Namen plattformübergreifend, os.Hostname dient als Rückfall.
func Hostname(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err == nil && info.Hostname != "" {
		return info.Hostname
	}
	if err != nil {
		log.Debugf("host info unavailable: %v", err)
	}

	name, err := os.Hostname()
	if err != nil {
		log.Warnf("Failed to determine hostname: %v", err)
		return "unknown"
	}
	return name
}

// FormatBytes formatiert Bytes in lesbare Einheiten (KB, MB, GB)
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}

// GetCPUUsage berechnet die CPU-Auslastung mit gopsutil
func GetCPUUsage() float64 {
	cpuUsageMutex.Lock()
	defer cpuUsageMutex.Unlock()

	// Innerhalb der Sample-Rate den gecachten Wert zurückgeben
	if time.Since(lastCPUTime) < cpuUsageSampleRate && lastCPUTime.Unix() > 0 {
		return lastCPUUsage
	}

	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		log.Warnf("CPU usage measurement failed: %v", err)
		return 0.0
	}

	var usage float64
	if len(percentages) > 0 {
		usage = percentages[0]
	}

	lastCPUTime = time.Now()
	lastCPUUsage = usage

	return usage
}

// GetSystemStats erfasst aktuelle System- und Warteschlangenstatistiken
func GetSystemStats(ctx context.Context, dispatcher *processor.Dispatcher) *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		Hostname:    Hostname(ctx),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		NumCPU:      runtime.NumCPU(),
		GoRoutines:  runtime.NumGoroutine(),
		CPUUsage:    GetCPUUsage(),
		MemoryAlloc: FormatBytes(memStats.Alloc),
		MemorySys:   FormatBytes(memStats.Sys),
		Timestamp:   time.Now(),
	}

	if dispatcher != nil {
		stats.Queue = dispatcher.Stats()
	}

	return stats
}
