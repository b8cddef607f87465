// Package handlers implements the Excalibur API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/PhotonicGluon/Excalibur/pkg/api/middleware"
)

// decodeStringBody reads a JSON string request body, answering 422 itself
// when the body does not parse.
func decodeStringBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var s string
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil || s == "" {
		middleware.WriteDetail(w, http.StatusUnprocessableEntity, "Request body must be a JSON string")
		return "", false
	}
	return s, true
}

// writeText writes a plain-text response with an explicit Content-Length so
// the encryption layer can frame it.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write([]byte(body))
}

// writeJSON marshals v up front so Content-Length is known before the
// response headers go out.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		middleware.WriteDetail(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}
	data = append(data, '\n')
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	w.Write(data)
}
