package handlers

import (
	"net/http"
	"time"

	"github.com/PhotonicGluon/Excalibur/pkg/api/middleware"
)

// WellKnownHandler serves the unauthenticated service endpoints.
type WellKnownHandler struct {
	// Version is the server release version.
	Version string

	// Commit is the VCS revision the binary was built from, if known.
	Commit string

	// Credentials lets the heartbeat acknowledge a still-valid session.
	Credentials *middleware.Credentials
}

// NewWellKnownHandler creates the well-known endpoints handler.
func NewWellKnownHandler(version, commit string, creds *middleware.Credentials) *WellKnownHandler {
	return &WellKnownHandler{Version: version, Commit: commit, Credentials: creds}
}

// versionResponse is the version endpoint body.
type versionResponse struct {
	Version string  `json:"version"`
	Commit  *string `json:"commit"`
}

// Heartbeat is the liveness probe. A request carrying valid session
// credentials gets 202 "Auth OK" instead of the plain 200.
//
// GET /api/well-known/heartbeat
func (h *WellKnownHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if h.Credentials != nil {
		if session := h.Credentials.SessionForRequest(r); session != nil {
			writeText(w, http.StatusAccepted, "Auth OK")
			return
		}
	}
	writeText(w, http.StatusOK, "Alive")
}

// ServerVersion returns the server version and build commit.
//
// GET /api/well-known/version
func (h *WellKnownHandler) ServerVersion(w http.ResponseWriter, r *http.Request) {
	resp := versionResponse{Version: h.Version}
	if h.Commit != "" {
		resp.Commit = &h.Commit
	}
	writeJSON(w, http.StatusOK, resp)
}

// Clock returns the server's UTC time as an RFC 3339 string, so clients can
// bound their clock skew before computing proof-of-possession timestamps.
//
// GET /api/well-known/clock
func (h *WellKnownHandler) Clock(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, time.Now().UTC().Truncate(time.Second).Format(time.RFC3339))
}
