package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/api/middleware"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/channel"
	"github.com/PhotonicGluon/Excalibur/pkg/metrics"
)

// AuthHandler serves the SRP login channel and its companion endpoints.
type AuthHandler struct {
	Handshake *channel.Handshake

	// GroupBits is the modulus size offered to clients.
	GroupBits int

	// HandshakeTimeout bounds one full login attempt.
	HandshakeTimeout time.Duration

	Metrics *metrics.HTTPMetrics

	upgrader websocket.Upgrader
}

// NewAuthHandler creates the auth endpoints handler.
func NewAuthHandler(h *channel.Handshake, groupBits int, timeout time.Duration, m *metrics.HTTPMetrics) *AuthHandler {
	return &AuthHandler{
		Handshake:        h,
		GroupBits:        groupBits,
		HandshakeTimeout: timeout,
		Metrics:          m,
		upgrader: websocket.Upgrader{
			// Origins are already vetted by the CORS layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Login upgrades the connection and runs one SRP handshake.
//
// GET /api/auth
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		logger.WarnCtx(r.Context(), "websocket upgrade failed", logger.Err(err))
		return
	}

	transport := channel.NewWebSocketTransport(conn, h.HandshakeTimeout)
	defer transport.Close()

	err = h.Handshake.Run(transport)
	switch {
	case err == nil:
		h.Metrics.RecordHandshake("success")
	case errors.Is(err, channel.ErrHandshakeAborted):
		h.Metrics.RecordHandshake("aborted")
		logger.InfoCtx(r.Context(), "handshake aborted", logger.Reason(err.Error()))
	default:
		h.Metrics.RecordHandshake("error")
		logger.WarnCtx(r.Context(), "handshake failed", logger.Err(err))
	}
	h.Metrics.SetLiveSessions(h.Handshake.Sessions.Len())
}

// GroupSize returns the SRP group modulus size in bits.
//
// GET /api/auth/group-size
func (h *AuthHandler) GroupSize(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.GroupBits)
}

// PoPDemo echoes the authenticated username; clients use it to verify their
// proof-of-possession implementation.
//
// GET /api/auth/pop-demo
func (h *AuthHandler) PoPDemo(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, session.Username)
}

// PoPDemoEncrypted echoes the request through the encryption layer; clients
// use it to verify their ExEF round trip.
//
// POST /api/auth/pop-demo/encrypted
func (h *AuthHandler) PoPDemoEncrypted(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())

	data, ok := decodeStringBody(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"credential": session.Username,
		"data":       data,
	})
}
