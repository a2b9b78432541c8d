package server

import (
	"net/http"
	"runtime"
	"time"

	"eventAwareness/core"
	"eventAwareness/processors"
	"eventAwareness/storage"
)

var startTime = time.Now()

// MonitoringHandlers groups the health and statistics endpoints.
type MonitoringHandlers struct {
	coordinator *processors.Coordinator
	insights    storage.InsightStore
	history     *storage.RunHistory
}

func NewMonitoringHandlers(coordinator *processors.Coordinator, insights storage.InsightStore, history *storage.RunHistory) *MonitoringHandlers {
	return &MonitoringHandlers{
		coordinator: coordinator,
		insights:    insights,
		history:     history,
	}
}

// HealthCheckHandler reports overall service health. Run history is optional,
// so a missing history store does not degrade the service.
func (h *MonitoringHandlers) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{
		"coordinator":   "active",
		"insight_store": "active",
		"run_history":   "active",
	}
	status := "healthy"
	if h.coordinator == nil {
		services["coordinator"] = "inactive"
		status = "degraded"
	}
	if h.insights == nil {
		services["insight_store"] = "inactive"
		status = "degraded"
	}
	if h.history == nil {
		services["run_history"] = "disabled"
	}

	health := map[string]any{
		"status":         status,
		"timestamp":      time.Now().Unix(),
		"uptime_seconds": time.Since(startTime).Seconds(),
		"services":       services,
	}
	core.WriteJSON(w, http.StatusOK, health)
}

// StatsHandler reports runtime statistics and analysis volumes.
func (h *MonitoringHandlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := map[string]any{
		"memory": map[string]any{
			"alloc":        m.Alloc,
			"total_alloc":  m.TotalAlloc,
			"sys":          m.Sys,
			"num_gc":       m.NumGC,
			"heap_objects": m.HeapObjects,
		},
		"runtime": map[string]any{
			"goroutines": runtime.NumGoroutine(),
			"cpu_count":  runtime.NumCPU(),
			"go_version": runtime.Version(),
		},
		"timestamp": time.Now().Unix(),
	}

	if h.coordinator != nil {
		analysis := map[string]any{}
		st := h.coordinator.GetSystemStatus()
		analysis["coordinator_status"] = st.CoordinatorStatus
		analysis["vision_analyses"] = st.VisionAnalyses
		analysis["zones_tracked"] = st.ZonesTracked
		analysis["videos_discovered"] = st.VideosDiscovered
		if h.history != nil {
			if total, err := h.history.TotalRuns(); err == nil {
				analysis["total_runs"] = total
			}
		}
		stats["analysis"] = analysis
	}

	core.WriteJSON(w, http.StatusOK, stats)
}
