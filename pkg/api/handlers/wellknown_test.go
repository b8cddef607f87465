package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeat(t *testing.T) {
	creds, auth := newSessionCreds(t)
	h := NewWellKnownHandler("1.2.3", "", creds)

	t.Run("anonymous", func(t *testing.T) {
		rec := doRequest(t, http.HandlerFunc(h.Heartbeat), http.MethodGet, "/api/well-known/heartbeat", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Alive", rec.Body.String())
		assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	})

	t.Run("with live session", func(t *testing.T) {
		rec := doRequest(t, http.HandlerFunc(h.Heartbeat), http.MethodGet, "/api/well-known/heartbeat", auth, nil)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "Auth OK", rec.Body.String())
	})

	t.Run("with garbage token", func(t *testing.T) {
		rec := doRequest(t, http.HandlerFunc(h.Heartbeat), http.MethodGet, "/api/well-known/heartbeat", "Bearer garbage", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Alive", rec.Body.String())
	})
}

func TestServerVersion(t *testing.T) {
	t.Run("with commit", func(t *testing.T) {
		h := NewWellKnownHandler("1.2.3", "abcdef0", nil)
		rec := doRequest(t, http.HandlerFunc(h.ServerVersion), http.MethodGet, "/api/well-known/version", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Version string  `json:"version"`
			Commit  *string `json:"commit"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "1.2.3", resp.Version)
		require.NotNil(t, resp.Commit)
		assert.Equal(t, "abcdef0", *resp.Commit)
	})

	t.Run("without commit", func(t *testing.T) {
		h := NewWellKnownHandler("1.2.3", "", nil)
		rec := doRequest(t, http.HandlerFunc(h.ServerVersion), http.MethodGet, "/api/well-known/version", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"commit":null`)
	})
}

func TestClock(t *testing.T) {
	h := NewWellKnownHandler("1.2.3", "", nil)

	before := time.Now().Add(-2 * time.Second)
	rec := doRequest(t, http.HandlerFunc(h.Clock), http.MethodGet, "/api/well-known/clock", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	reported, err := time.Parse(time.RFC3339, rec.Body.String())
	require.NoError(t, err)
	assert.True(t, reported.After(before))
	assert.True(t, reported.Before(time.Now().Add(2*time.Second)))

	// The reported time carries no zone offset.
	_, offset := reported.Zone()
	assert.Zero(t, offset)
	assert.True(t, strings.HasSuffix(rec.Body.String(), "Z"))
}
