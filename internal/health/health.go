// Package health serves the /healthz endpoint with process resource usage
// and broker connection counts.
package health

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats is the set of live values the handler reports.
type Stats struct {
	ConnectionCount func() int
	MaxConnections  int
}

type handler struct {
	stats     Stats
	proc      *process.Process
	startTime time.Time
}

// NewHandler builds the health endpoint. Process stats degrade gracefully if
// the pid cannot be inspected.
func NewHandler(stats Stats) http.Handler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		proc = nil
	}
	return &handler{stats: stats, proc: proc, startTime: time.Now()}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	current := h.stats.ConnectionCount()

	resp := map[string]any{
		"status":         "healthy",
		"uptime_seconds": time.Since(h.startTime).Seconds(),
		"connections": map[string]any{
			"current": current,
			"max":     h.stats.MaxConnections,
		},
	}

	if h.proc != nil {
		if cpuPercent, err := h.proc.CPUPercent(); err == nil {
			resp["cpu_percent"] = cpuPercent
		}
		if memInfo, err := h.proc.MemoryInfo(); err == nil {
			resp["memory_mb"] = float64(memInfo.RSS) / 1024 / 1024
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
