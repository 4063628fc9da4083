package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/aristath/valuator/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves process and database status
type SystemHandlers struct {
	databases []*database.DB
	started   time.Time
	now       func() time.Time
	// sampled lets tests replace the gopsutil readings
	sampled func() (float64, float64)
	log     zerolog.Logger
}

// SystemStatusResponse is returned by /api/system/status
type SystemStatusResponse struct {
	Status        string           `json:"status"`
	UptimeSeconds int64            `json:"uptimeSeconds"`
	CPUPercent    float64          `json:"cpuPercent"`
	MemoryPercent float64          `json:"memoryPercent"`
	Goroutines    int              `json:"goroutines"`
	Databases     []database.Stats `json:"databases"`
	LastChecked   string           `json:"lastChecked"`
}

// DatabaseStatsResponse is returned by /api/system/database/stats
type DatabaseStatsResponse struct {
	Databases   []database.Stats `json:"databases"`
	TotalSizeMB float64          `json:"totalSizeMB"`
	LastChecked string           `json:"lastChecked"`
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(databases []*database.DB, now func() time.Time, log zerolog.Logger) *SystemHandlers {
	if now == nil {
		now = time.Now
	}
	h := &SystemHandlers{
		databases: databases,
		started:   now(),
		now:       now,
		log:       log.With().Str("handler", "system").Logger(),
	}
	h.sampled = h.getSystemStats
	return h
}

// HandleSystemStatus returns process resource usage and database sizes
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.sampled()
	now := h.now()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		Databases:     h.collectStats(r),
		LastChecked:   now.Format(time.RFC3339),
	}
	if len(response.Databases) < len(h.databases) {
		response.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleDatabaseStats returns database statistics
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	stats := h.collectStats(r)
	var total int64
	for _, s := range stats {
		total += s.SizeBytes + s.WALSizeBytes
	}

	response := DatabaseStatsResponse{
		Databases:   stats,
		TotalSizeMB: float64(total) / 1024 / 1024,
		LastChecked: h.now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *SystemHandlers) collectStats(r *http.Request) []database.Stats {
	stats := make([]database.Stats, 0, len(h.databases))
	for _, db := range h.databases {
		s, err := db.GetStats(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to get database stats")
			continue
		}
		stats = append(stats, *s)
	}
	return stats
}

// getSystemStats calculates CPU and RAM usage percentages over a short
// sampling window
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
