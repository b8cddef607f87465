package middleware

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/api/routing"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/token"
	"github.com/PhotonicGluon/Excalibur/pkg/cache"
	"github.com/PhotonicGluon/Excalibur/pkg/exef"
)

// Headers used by the encryption layer.
const (
	headerEncrypted     = "X-Encrypted"
	headerContentType   = "X-Content-Type"
	headerSyntheticUUID = "uuid"
)

const credentialsDetail = "Middleware processing: Missing, invalid, or expired bearer token"

// readChunkSize is the body read granularity for streaming en/decryption.
const readChunkSize = 32 * 1024

// RouteEncryption decrypts request bodies and encrypts response bodies for
// the routes its table marks, streaming both directions.
type RouteEncryption struct {
	Tree     *routing.Tree
	Tokens   *token.Service
	Sessions *cache.Cache[string, []byte]

	// EncryptResponses globally disables response encryption when false
	// (debug interop with clients that cannot decrypt).
	EncryptResponses bool
}

// Handler wraps next with the encryption layer.
func (m *RouteEncryption) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := m.Tree.Lookup(r.Method, r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		sessionKey := m.keyFromRequest(r)

		if route.EncryptedBody && r.Header.Get(headerEncrypted) == "true" {
			if sessionKey == nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteDetail(w, http.StatusUnauthorized, credentialsDetail)
				return
			}
			if err := m.decryptRequest(r, sessionKey); err != nil {
				logger.Warn("rejecting malformed encrypted body",
					"path", r.URL.Path, "error", err)
				WriteDetail(w, http.StatusBadRequest, "Malformed encrypted body")
				return
			}
		}

		if !route.EncryptedResponse || !m.EncryptResponses {
			next.ServeHTTP(w, r)
			return
		}

		ew := &encryptingWriter{
			ResponseWriter: w,
			route:          route,
			key:            sessionKey,
			sessions:       m.Sessions,
		}
		next.ServeHTTP(ew, r)
		ew.finish(r)
	})
}

// keyFromRequest resolves the session master key from the bearer token, if
// any. Invalid credentials resolve to nil; whether that matters is decided
// where the key is needed.
func (m *RouteEncryption) keyFromRequest(r *http.Request) []byte {
	tokenString, ok := extractBearerToken(r)
	if !ok {
		return nil
	}
	claims, err := m.Tokens.Verify(tokenString)
	if err != nil {
		return nil
	}
	key, ok := m.Sessions.Get(claims.SessionUUID)
	if !ok {
		return nil
	}
	return key
}

// decryptRequest swaps the request body for a streaming ExEF decryptor. The
// container header is consumed up front so Content-Length can be rewritten
// to the plaintext length before the handler runs.
func (m *RouteEncryption) decryptRequest(r *http.Request, key []byte) error {
	dec, err := exef.NewDecryptor(key)
	if err != nil {
		return err
	}

	reader := &decryptingReader{src: r.Body, dec: dec}
	for {
		if n, ok := dec.PlaintextLength(); ok {
			r.ContentLength = n
			r.Header.Set("Content-Length", strconv.FormatInt(n, 10))
			break
		}
		if err := reader.fill(); err != nil {
			return fmt.Errorf("reading container header: %w", err)
		}
	}

	if ct := r.Header.Get(headerContentType); ct != "" {
		r.Header.Set("Content-Type", ct)
		r.Header.Del(headerContentType)
	}
	r.Header.Del(headerEncrypted)
	r.Body = reader
	return nil
}

// decryptingReader adapts a streaming Decryptor to io.ReadCloser. Plaintext
// handed out before the final tag check is unauthenticated; the tag is
// verified when the source is exhausted and a mismatch surfaces as a read
// error, failing the request before the handler can commit its effects.
type decryptingReader struct {
	src io.ReadCloser
	dec *exef.Decryptor
	buf bytes.Buffer
	err error
}

// fill feeds one source chunk into the decryptor.
func (d *decryptingReader) fill() error {
	if d.err != nil {
		return d.err
	}

	chunk := make([]byte, readChunkSize)
	n, err := d.src.Read(chunk)
	if n > 0 {
		if uerr := d.dec.Update(chunk[:n]); uerr != nil {
			d.err = uerr
			return d.err
		}
		for out := d.dec.Next(); out != nil; out = d.dec.Next() {
			d.buf.Write(out)
		}
	}

	switch {
	case err == io.EOF:
		if !d.dec.FullyProcessed() {
			d.err = exef.ErrShortBuffer
		} else if verr := d.dec.Verify(); verr != nil {
			d.err = verr
		} else {
			d.err = io.EOF
		}
		return d.err
	case err != nil:
		d.err = err
		return d.err
	}
	return nil
}

func (d *decryptingReader) Read(p []byte) (int, error) {
	for d.buf.Len() == 0 {
		if err := d.fill(); err != nil {
			if err == io.EOF && d.buf.Len() > 0 {
				break
			}
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, err
		}
	}
	return d.buf.Read(p)
}

func (d *decryptingReader) Close() error {
	return d.src.Close()
}

// encryptingWriter wraps the response in an ExEF container. The container
// header goes out with the response headers, each handler write is
// encrypted in place, and the footer follows the last declared byte.
type encryptingWriter struct {
	http.ResponseWriter
	route    routing.EncryptedRoute
	key      []byte
	sessions *cache.Cache[string, []byte]

	enc         *exef.Encryptor
	status      int
	wroteHeader bool
	passthrough bool
	failed      bool
}

func (w *encryptingWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status

	// Excluded statuses ship as the handler wrote them.
	if w.route.Excludes(status) {
		w.Header().Del(headerSyntheticUUID)
		w.passthrough = true
		w.ResponseWriter.WriteHeader(status)
		return
	}

	// The login path has no bearer token yet; the handler smuggles the
	// session UUID out through a synthetic header instead.
	if w.key == nil {
		if id := w.Header().Get(headerSyntheticUUID); id != "" {
			w.Header().Del(headerSyntheticUUID)
			if key, ok := w.sessions.Get(id); ok {
				w.key = key
			}
		}
	}
	if w.key == nil {
		w.fail(http.StatusUnauthorized, credentialsDetail, true)
		return
	}

	length, err := strconv.ParseInt(w.Header().Get("Content-Length"), 10, 64)
	if err != nil {
		w.fail(http.StatusInternalServerError, "Content-Length required for encrypted response", false)
		return
	}

	enc, err := exef.NewEncryptor(w.key, nil)
	if err != nil {
		w.fail(http.StatusInternalServerError, "Encryption setup failed", false)
		return
	}
	enc.SetLength(int(length))
	w.enc = enc

	w.Header().Del(headerSyntheticUUID)
	w.Header().Set("Content-Length", strconv.FormatInt(length+exef.AdditionalSize, 10))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set(headerEncrypted, "true")
	w.Header().Set("Access-Control-Expose-Headers", headerEncrypted)

	w.ResponseWriter.WriteHeader(status)
	w.ResponseWriter.Write(enc.Next())
}

// fail replaces the response with a middleware error; subsequent handler
// writes are discarded.
func (w *encryptingWriter) fail(status int, detail string, challenge bool) {
	w.failed = true
	w.Header().Del(headerSyntheticUUID)
	w.Header().Del("Content-Length")
	if challenge {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	WriteDetail(w.ResponseWriter, status, detail)
}

func (w *encryptingWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.passthrough {
		return w.ResponseWriter.Write(p)
	}
	if w.failed {
		// Swallow the handler's body; the middleware response went out.
		return len(p), nil
	}

	if err := w.enc.Update(p); err != nil {
		return 0, err
	}
	for out := w.enc.Next(); out != nil; out = w.enc.Next() {
		if _, err := w.ResponseWriter.Write(out); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush implements http.Flusher for streamed downloads.
func (w *encryptingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// finish reports handlers that declared more bytes than they wrote, which
// leaves the client without a container footer.
func (w *encryptingWriter) finish(r *http.Request) {
	if w.enc != nil && !w.enc.FullyProcessed() {
		logger.Error("encrypted response truncated",
			"path", r.URL.Path, "status", w.status)
	}
}
