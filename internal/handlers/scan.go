package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
)

// ScanStatusResponse is the body of GET /api/scan/status.
type ScanStatusResponse struct {
	Scanning   bool                      `json:"scanning"`
	Progress   *indexer.ProgressSnapshot `json:"progress,omitempty"`
	LastResult *indexer.ScanResult       `json:"lastResult,omitempty"`
	Watching   bool                      `json:"watching"`
	Pending    int                       `json:"pendingEvents"`
}

// TriggerScan runs a full scan. By default it blocks until the scan ends and
// returns the result; with ?async=true it starts the scan in the background
// and answers 202 immediately. A scan that is already running gives 409.
func (h *Handlers) TriggerScan(w http.ResponseWriter, r *http.Request) {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := h.scanner.TriggerScan(); err != nil {
			writeJSONError(w, err.Error(), statusForScanError(err))
			return
		}
		writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}

	// A dropped client connection must not abort the rebuild halfway.
	result, err := h.scanner.FullScan(context.WithoutCancel(r.Context()))
	if err != nil {
		if result == nil {
			writeJSONError(w, err.Error(), statusForScanError(err))
			return
		}
		logging.Warn("Scan requested by %s ended with status %s", r.RemoteAddr, result.Status)
		writeJSONStatus(w, statusForScanError(err), result)
		return
	}
	writeJSONStatus(w, http.StatusOK, result)
}

// ScanStatus reports the running scan's progress and the last result.
func (h *Handlers) ScanStatus(w http.ResponseWriter, _ *http.Request) {
	health := h.scanner.GetHealthStatus()
	response := ScanStatusResponse{
		Scanning:   health.Scanning,
		Progress:   health.Progress,
		LastResult: h.scanner.LastResult(),
	}
	if h.watcher != nil {
		response.Watching = h.watcher.IsWatching()
		response.Pending = h.watcher.Pending()
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONStatus(w, http.StatusOK, response)
}

func statusForScanError(err error) int {
	switch {
	case errors.Is(err, indexer.ErrScanInProgress):
		return http.StatusConflict
	case errors.Is(err, indexer.ErrRootUnreadable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
