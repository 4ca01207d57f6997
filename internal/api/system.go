package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the response for GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Devices       DeviceMetrics  `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total     int            `json:"total"`
	Available int            `json:"available"`
	ByType    map[string]int `json:"by_type"`
}

const bytesPerMB = 1024 * 1024

// handleMetrics returns system and registry metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := s.registry.GetStats()

	writeJSON(w, http.StatusOK, SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
			NumGC:         mem.NumGC,
		},
		Devices: DeviceMetrics{
			Total:     stats.Total,
			Available: stats.Available,
			ByType:    stats.ByType,
		},
	})
}

// handleTriggerScan requests an immediate discovery pass. The scan itself
// runs asynchronously; the response only acknowledges the request.
func (s *Server) handleTriggerScan(w http.ResponseWriter, _ *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "discovery is not running")
		return
	}

	s.scanner.TriggerScan()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "scan requested"})
}
