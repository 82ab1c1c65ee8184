package api

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/annel0/replay-engine/internal/protocol"
	"github.com/annel0/replay-engine/internal/state"
)

// ServerMetrics содержит метрики процесса
type ServerMetrics struct {
	StartTime time.Time
}

// NewServerMetrics создает новый экземпляр метрик
func NewServerMetrics() *ServerMetrics {
	return &ServerMetrics{StartTime: time.Now()}
}

// GetUptime возвращает время работы сервера
func (sm *ServerMetrics) GetUptime() string {
	uptime := time.Since(sm.StartTime)

	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}

// GetRSS возвращает резидентную память процесса в MB
func (sm *ServerMetrics) GetRSS() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(info.RSS) / 1024 / 1024, nil
}

// GetAvailableMemory возвращает свободную память системы в MB
func (sm *ServerMetrics) GetAvailableMemory() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return float64(vm.Available) / 1024 / 1024, nil
}

// GetCPUUsage возвращает использование CPU процессом в процентах
func (sm *ServerMetrics) GetCPUUsage() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	return proc.CPUPercent()
}

// Snapshot собирает метрики процесса для ответа API
func (sm *ServerMetrics) Snapshot() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	out := map[string]interface{}{
		"uptime":        sm.GetUptime(),
		"heap_alloc_mb": float64(m.HeapAlloc) / 1024 / 1024,
		"goroutines":    runtime.NumGoroutine(),
		"server_time":   time.Now().Unix(),
	}
	if rss, err := sm.GetRSS(); err == nil {
		out["rss_mb"] = fmt.Sprintf("%.2f", rss)
	}
	if avail, err := sm.GetAvailableMemory(); err == nil {
		out["available_mb"] = fmt.Sprintf("%.2f", avail)
	}
	if cpu, err := sm.GetCPUUsage(); err == nil {
		out["cpu_percent"] = fmt.Sprintf("%.2f", cpu)
	}
	return out
}

// PacketStats считает отправленные клиенту синтетические пакеты по типам
type PacketStats struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewPacketStats() *PacketStats {
	return &PacketStats{counts: make(map[string]int)}
}

// Sink оборачивает next подсчётом; next может быть nil
func (ps *PacketStats) Sink(next state.Sink) state.Sink {
	return func(p protocol.Packet) error {
		ps.mu.Lock()
		ps.counts[p.Kind.String()]++
		ps.mu.Unlock()
		if next == nil {
			return nil
		}
		return next(p)
	}
}

// Counts возвращает копию счётчиков
func (ps *PacketStats) Counts() map[string]int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make(map[string]int, len(ps.counts))
	for k, v := range ps.counts {
		out[k] = v
	}
	return out
}
