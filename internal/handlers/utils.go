package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"media-catalog/internal/logging"

	"github.com/gorilla/mux"
)

// writeJSON encodes v as JSON. Encoding errors are only logged; the status
// line has already gone out by then.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes {"error": message} with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeJSONStatus writes v with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// pathID parses the {id} route variable.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// pageParams reads page and pageSize from the query string. Missing or
// malformed values fall back to the first page and the configured size.
func (h *Handlers) pageParams(r *http.Request) (page, pageSize int) {
	page, pageSize = 1, h.pageSize
	q := r.URL.Query()
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if ps, err := strconv.Atoi(q.Get("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}
	return page, pageSize
}
