package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-catalog/internal/startup"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status           string `json:"status"`
	Ready            bool   `json:"ready"`
	Version          string `json:"version"`
	Uptime           string `json:"uptime"`
	Scanning         bool   `json:"scanning"`
	Watching         bool   `json:"watching"`
	LastScanned      string `json:"lastScanned,omitempty"`
	InitialScanError string `json:"initialScanError,omitempty"`

	// Progress of the running scan
	FilesProcessed int `json:"filesProcessed"`
	FilesFailed    int `json:"filesFailed"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Catalog totals
	TotalFolders int            `json:"totalFolders,omitempty"`
	TotalMedia   int            `json:"totalMedia,omitempty"`
	MediaByType  map[string]int `json:"mediaByType,omitempty"`
}

// HealthCheck returns the health status of the service. It answers 503
// until the service is ready, and reports "degraded" after a failed initial
// scan.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.scanner.GetHealthStatus()

	response := HealthResponse{
		Ready:        health.Ready,
		Version:      startup.Version,
		Uptime:       health.Uptime,
		Scanning:     health.Scanning,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if h.watcher != nil {
		response.Watching = h.watcher.IsWatching()
	}
	if health.Progress != nil {
		response.FilesProcessed = health.Progress.Processed
		response.FilesFailed = health.Progress.Failed
	}

	if health.Ready {
		response.Status = statusHealthy
	} else {
		response.Status = statusStarting
	}
	if !health.LastScanned.IsZero() {
		response.LastScanned = health.LastScanned.Format(time.RFC3339)
	}
	if health.InitialScanError != "" {
		response.InitialScanError = health.InitialScanError
		response.Status = statusDegraded
	}

	if stats, err := h.catalog.CatalogStats(r.Context()); err == nil {
		response.TotalFolders = stats.Folders
		response.MediaByType = stats.MediaByType
		for _, n := range stats.MediaByType {
			response.TotalMedia += n
		}
	}

	code := http.StatusOK
	if !health.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, code, response)
}

// LivenessCheck always answers 200 while the process is serving.
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// HEAD gets headers only
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if h.scanner.GetHealthStatus().Ready {
		writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// GetVersion returns the build information of the running binary.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, startup.GetBuildInfo())
}

// MetricsHandler serves the default Prometheus registry.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
