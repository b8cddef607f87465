package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/token"
	"github.com/PhotonicGluon/Excalibur/pkg/cache"
	"github.com/PhotonicGluon/Excalibur/pkg/config"
	"github.com/PhotonicGluon/Excalibur/pkg/exef"
	"github.com/PhotonicGluon/Excalibur/pkg/store"
	"github.com/PhotonicGluon/Excalibur/pkg/vault"
)

// testRouter is a fully wired router with one live session.
type testRouter struct {
	handler http.Handler
	bearer  string
	master  []byte
}

func newTestRouter(t *testing.T) *testRouter {
	t.Helper()
	t.Setenv("EXCALIBUR_SERVER_HMAC_ENABLED", "false")
	t.Setenv("EXCALIBUR_SERVER_ENCRYPT_RESPONSES", "1")

	cfg := config.GetDefaultConfig()
	cfg.Server.VaultFolder = t.TempDir()
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "users.db")

	st, err := store.New(cfg.Database)
	require.NoError(t, err)
	v, err := vault.New(cfg.Server.VaultFolder)
	require.NoError(t, err)

	tokens := token.NewServiceWithSecret(bytes.Repeat([]byte{0xA5}, 32))
	sessions := cache.New[string, []byte](cfg.Security.CommCacheSize, cfg.Security.SessionDuration)

	master := bytes.Repeat([]byte{0x42}, 32)
	sessionUUID := uuid.NewString()
	sessions.Put(sessionUUID, master)
	bearer, err := tokens.Generate("alice", sessionUUID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	handler := newRouter(routerDeps{
		cfg:      cfg,
		store:    st,
		vault:    v,
		sessions: sessions,
		tokens:   tokens,
		version:  "1.2.3",
		commit:   "abcdef0",
	})
	return &testRouter{handler: handler, bearer: "Bearer " + bearer, master: master}
}

func (tr *testRouter) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	tr.handler.ServeHTTP(rec, req)
	return rec
}

// enrolAlice pushes a minimal enrolment body through the add route.
func (tr *testRouter) enrolAlice(t *testing.T) {
	t.Helper()
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	body, err := json.Marshal(map[string]string{
		"auk_salt": b64("auk salt material 32 bytes long!"),
		"srp_salt": b64("srp salt material 32 bytes long!"),
		"verifier": b64("verifier bytes"),
		"key_enc":  b64("encrypted vault key container"),
	})
	require.NoError(t, err)

	rec := tr.do(httptest.NewRequest(http.MethodPost, "/api/users/add/alice", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestRouterWellKnown(t *testing.T) {
	tr := newTestRouter(t)

	rec := tr.do(httptest.NewRequest(http.MethodGet, "/api/well-known/heartbeat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alive", rec.Body.String())

	rec = tr.do(httptest.NewRequest(http.MethodGet, "/api/well-known/version", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)

	rec = tr.do(httptest.NewRequest(http.MethodGet, "/api/well-known/clock", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, err := time.Parse(time.RFC3339, rec.Body.String())
	assert.NoError(t, err)

	rec = tr.do(httptest.NewRequest(http.MethodGet, "/api/auth/group-size", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2048\n", rec.Body.String())
}

func TestRouterRejectsAnonymousFileAccess(t *testing.T) {
	tr := newTestRouter(t)

	// Credential failures on encrypted routes must stay readable.
	rec := tr.do(httptest.NewRequest(http.MethodGet, "/api/files/list/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEqual(t, "true", rec.Header().Get("X-Encrypted"))
	assert.Contains(t, rec.Body.String(), "bearer token")
}

func TestRouterEncryptedVaultKey(t *testing.T) {
	tr := newTestRouter(t)
	tr.enrolAlice(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users/vault/alice", nil)
	req.Header.Set("Authorization", tr.bearer)
	rec := tr.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get("X-Encrypted"))

	plain, err := exef.Open(tr.master, rec.Body.Bytes())
	require.NoError(t, err)

	var resp struct {
		KeyEnc string `json:"key_enc"`
	}
	require.NoError(t, json.Unmarshal(plain, &resp))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("encrypted vault key container")), resp.KeyEnc)
}

func TestRouterEncryptedUploadRoundTrip(t *testing.T) {
	tr := newTestRouter(t)
	tr.enrolAlice(t)

	sealed, err := exef.Seal(tr.master, nil, []byte("container payload"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload/?name=doc.exef", bytes.NewReader(sealed))
	req.Header.Set("Authorization", tr.bearer)
	req.Header.Set("X-Encrypted", "true")
	rec := tr.do(req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "true", rec.Header().Get("X-Encrypted"))
	plain, err := exef.Open(tr.master, rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "File uploaded", string(plain))

	// Download hands the stored plaintext back, wrapped for transit.
	req = httptest.NewRequest(http.MethodGet, "/api/files/download/doc.exef", nil)
	req.Header.Set("Authorization", tr.bearer)
	rec = tr.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "true", rec.Header().Get("X-Encrypted"))
	plain, err = exef.Open(tr.master, rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "container payload", string(plain))
}

func TestRequestLoggerAttachesLogContext(t *testing.T) {
	var got *logger.LogContext
	h := requestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logger.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/well-known/heartbeat", nil)
	req.RemoteAddr = "192.0.2.7:4242"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, got)
	assert.Equal(t, "192.0.2.7", got.ClientIP)
	assert.False(t, got.StartTime.IsZero())
}
