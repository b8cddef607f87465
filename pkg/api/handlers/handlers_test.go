package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/PhotonicGluon/Excalibur/pkg/api/middleware"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/pop"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/token"
	"github.com/PhotonicGluon/Excalibur/pkg/cache"
)

const testUsername = "alice"

// newSessionCreds builds a credentials middleware with one live session for
// testUsername and returns the matching Authorization header value. The PoP
// check is disabled so requests only need the bearer token.
func newSessionCreds(t *testing.T) (*middleware.Credentials, string) {
	t.Helper()
	t.Setenv("EXCALIBUR_SERVER_HMAC_ENABLED", "false")

	tokens := token.NewServiceWithSecret(bytes.Repeat([]byte{0xA5}, 32))
	sessions := cache.New[string, []byte](16, time.Hour)

	sessionUUID := uuid.NewString()
	sessions.Put(sessionUUID, bytes.Repeat([]byte{0x42}, 32))

	bearer, err := tokens.Generate(testUsername, sessionUUID, time.Now().Add(time.Hour))
	require.NoError(t, err)

	creds := &middleware.Credentials{
		Tokens:   tokens,
		Sessions: sessions,
		PoP:      pop.NewValidator(64, time.Minute),
	}
	return creds, "Bearer " + bearer
}

// doRequest runs one request through the handler under test.
func doRequest(t *testing.T, h http.Handler, method, target, auth string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// jsonBody marshals v into a request body reader.
func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

// detailOf extracts the "detail" field from an error response.
func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}
