package middleware

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/pop"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/token"
	"github.com/PhotonicGluon/Excalibur/pkg/cache"
)

const testUUID = "0123456789abcdef0123456789abcdef"

func newTestCredentials(t *testing.T) (*Credentials, []byte, string) {
	t.Helper()

	master := make([]byte, 32)
	_, err := rand.Read(master)
	require.NoError(t, err)

	tokens := token.NewServiceWithSecret([]byte("one demo 16B key"))
	sessions := cache.New[string, []byte](16, time.Hour)
	sessions.Put(testUUID, master)

	bearer, err := tokens.Generate("alice", testUUID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	creds := &Credentials{
		Tokens:   tokens,
		Sessions: sessions,
		PoP:      pop.NewValidator(128, time.Minute),
	}
	return creds, master, bearer
}

func echoSession() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := SessionFromContext(r.Context())
		if session == nil {
			http.Error(w, "no session", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(session.Username))
	})
}

func popHeader(master []byte, method, path string) string {
	nonce := make([]byte, pop.NonceSize)
	rand.Read(nonce)
	return pop.GenerateHeader(master, method, path, time.Now().Unix(), nonce)
}

func TestRequireSession_OK(t *testing.T) {
	creds, master, bearer := newTestCredentials(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/pop-demo", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set(pop.HeaderName, popHeader(master, http.MethodGet, "/api/auth/pop-demo"))

	rec := httptest.NewRecorder()
	creds.RequireSession(echoSession()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestRequireSession_MissingToken(t *testing.T) {
	creds, _, _ := newTestCredentials(t)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	rec := httptest.NewRecorder()
	creds.RequireSession(echoSession()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Missing, invalid, or expired bearer token", body.Detail)
}

func TestRequireSession_ExpiredSession(t *testing.T) {
	creds, master, bearer := newTestCredentials(t)
	creds.Sessions.Delete(testUUID)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set(pop.HeaderName, popHeader(master, http.MethodGet, "/p"))

	rec := httptest.NewRecorder()
	creds.RequireSession(echoSession()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSession_MissingPoP(t *testing.T) {
	creds, _, bearer := newTestCredentials(t)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)

	rec := httptest.NewRecorder()
	creds.RequireSession(echoSession()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, pop.HeaderPattern, rec.Header().Get(pop.HeaderName))
}

func TestRequireSession_ReplayedPoP(t *testing.T) {
	creds, master, bearer := newTestCredentials(t)

	header := popHeader(master, http.MethodGet, "/p")
	for i, wantCode := range []int{http.StatusOK, http.StatusUnauthorized} {
		req := httptest.NewRequest(http.MethodGet, "/p", nil)
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set(pop.HeaderName, header)

		rec := httptest.NewRecorder()
		creds.RequireSession(echoSession()).ServeHTTP(rec, req)
		assert.Equal(t, wantCode, rec.Code, "attempt %d", i)
	}
}

func TestRequireSession_WrongKeyPoP(t *testing.T) {
	creds, _, bearer := newTestCredentials(t)

	wrong := make([]byte, 32)
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set(pop.HeaderName, popHeader(wrong, http.MethodGet, "/p"))

	rec := httptest.NewRecorder()
	creds.RequireSession(echoSession()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireSession_PoPDisabled(t *testing.T) {
	t.Setenv("EXCALIBUR_SERVER_HMAC_ENABLED", "false")
	creds, _, bearer := newTestCredentials(t)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)

	rec := httptest.NewRecorder()
	creds.RequireSession(echoSession()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPoPFailureReason(t *testing.T) {
	assert.Equal(t, "malformed", popFailureReason(pop.ErrMalformedHeader))
	assert.Equal(t, "stale", popFailureReason(pop.ErrStaleTimestamp))
	assert.Equal(t, "replayed", popFailureReason(pop.ErrReplayedNonce))
	assert.Equal(t, "bad_mac", popFailureReason(pop.ErrBadMAC))
}

func TestRequireSession_EnrichesLogContext(t *testing.T) {
	creds, master, bearer := newTestCredentials(t)

	var got *logger.LogContext
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logger.FromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set(pop.HeaderName, popHeader(master, http.MethodGet, "/p"))
	req = req.WithContext(logger.WithContext(req.Context(), logger.NewLogContext("192.0.2.7")))

	rec := httptest.NewRecorder()
	creds.RequireSession(inner).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, testUUID, got.SessionID)
	assert.Equal(t, "192.0.2.7", got.ClientIP)
}
