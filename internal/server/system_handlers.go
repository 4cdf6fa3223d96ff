package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/royaltyfi/vaultd/internal/database"
	"github.com/royaltyfi/vaultd/internal/scheduler"
)

// SystemHandlers serves process and host status plus manual job triggers.
type SystemHandlers struct {
	mu        sync.RWMutex
	log       zerolog.Logger
	dataDir   string
	startTime time.Time
	databases []*database.DB
	sched     *scheduler.Scheduler
	jobs      map[string]scheduler.Job
}

// NewSystemHandlers creates new system handlers
func NewSystemHandlers(log zerolog.Logger, dataDir string, databases []*database.DB, sched *scheduler.Scheduler) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		dataDir:   dataDir,
		startTime: time.Now(),
		databases: databases,
		sched:     sched,
		jobs:      make(map[string]scheduler.Job),
	}
}

// RegisterJob makes a job triggerable through the API.
func (h *SystemHandlers) RegisterJob(job scheduler.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs[job.Name()] = job
}

// HandleHealth handles GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.databases))
	for _, db := range h.databases {
		if err := db.HealthCheck(ctx); err != nil {
			checks[db.Name()] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[db.Name()] = "ok"
		}
	}

	h.writeJSON(w, status, map[string]interface{}{
		"status":    map[int]string{http.StatusOK: "healthy", http.StatusServiceUnavailable: "degraded"}[status],
		"databases": checks,
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HandleStatus handles GET /api/system/status
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	system := map[string]interface{}{
		"goroutines":    runtime.NumGoroutine(),
		"heap_alloc_mb": m.HeapAlloc / 1024 / 1024,
		"uptime":        time.Since(h.startTime).Round(time.Second).String(),
		"go_version":    runtime.Version(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		system["memory_used_percent"] = vm.UsedPercent
		system["memory_total_mb"] = vm.Total / 1024 / 1024
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		system["cpu_percent"] = percents[0]
	}
	if usage, err := disk.Usage(h.dataDir); err == nil {
		system["disk_used_percent"] = usage.UsedPercent
		system["disk_free_gb"] = usage.Free / 1024 / 1024 / 1024
	}

	h.mu.RLock()
	jobNames := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		jobNames = append(jobNames, name)
	}
	h.mu.RUnlock()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"system": system,
			"jobs":   jobNames,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRunJob handles POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.RLock()
	job, ok := h.jobs[name]
	h.mu.RUnlock()
	if !ok {
		http.Error(w, "Unknown job", http.StatusNotFound)
		return
	}

	if err := h.sched.RunNow(job); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"job": name, "status": "completed"},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
