// Package handler holds the HTTP handlers of the ingest-mode API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// writeJSON marshals v and writes it with status. A marshal failure becomes
// a plain 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt reads a positive integer query parameter, falling back to def
// and capping at max.
func queryInt(r *http.Request, name string, def, max int) int {
	n := def
	if v := r.URL.Query().Get(name); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	if n > max {
		n = max
	}
	return n
}
