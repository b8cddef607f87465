// Package middleware provides the HTTP middleware for the Excalibur API:
// session credentials (bearer token plus proof-of-possession) and the
// per-route body encryption layer.
package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/pop"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/token"
	"github.com/PhotonicGluon/Excalibur/pkg/cache"
	"github.com/PhotonicGluon/Excalibur/pkg/metrics"
)

type contextKey string

const sessionContextKey contextKey = "session"

// Session is the authenticated state attached to a request that passed the
// credentials middleware.
type Session struct {
	// Username is the token subject.
	Username string

	// UUID identifies the SRP session.
	UUID string

	// MasterKey is the 32-byte session key from the handshake.
	MasterKey []byte
}

// SessionFromContext returns the authenticated session, or nil when the
// request did not pass through RequireSession.
func SessionFromContext(ctx context.Context) *Session {
	s, ok := ctx.Value(sessionContextKey).(*Session)
	if !ok {
		return nil
	}
	return s
}

// extractBearerToken pulls the token out of an Authorization: Bearer header.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// Credentials validates bearer tokens and PoP headers for protected routes.
type Credentials struct {
	Tokens   *token.Service
	Sessions *cache.Cache[string, []byte]
	PoP      *pop.Validator
	Metrics  *metrics.HTTPMetrics
}

// popFailureReason maps a PoP validation error onto its metric label.
func popFailureReason(err error) string {
	switch err {
	case pop.ErrMalformedHeader:
		return "malformed"
	case pop.ErrStaleTimestamp:
		return "stale"
	case pop.ErrReplayedNonce:
		return "replayed"
	default:
		return "bad_mac"
	}
}

// popEnabled reports whether the PoP check is enforced. Disabling it is a
// debugging affordance only.
func popEnabled() bool {
	return os.Getenv("EXCALIBUR_SERVER_HMAC_ENABLED") != "false"
}

// resolve authenticates a request, returning the session or a 401 detail
// message plus the challenge header to attach.
func (c *Credentials) resolve(r *http.Request) (*Session, string, http.Header) {
	challenge := http.Header{"WWW-Authenticate": []string{"Bearer"}}

	tokenString, ok := extractBearerToken(r)
	if !ok {
		return nil, "Missing, invalid, or expired bearer token", challenge
	}
	claims, err := c.Tokens.Verify(tokenString)
	if err != nil {
		return nil, "Missing, invalid, or expired bearer token", challenge
	}
	master, ok := c.Sessions.Get(claims.SessionUUID)
	if !ok {
		return nil, "Missing, invalid, or expired bearer token", challenge
	}

	session := &Session{Username: claims.Subject, UUID: claims.SessionUUID, MasterKey: master}
	if !popEnabled() {
		return session, "", nil
	}

	popChallenge := http.Header{pop.HeaderName: []string{pop.HeaderPattern}}
	header := r.Header.Get(pop.HeaderName)
	if header == "" {
		c.Metrics.RecordPoPFailure("missing")
		return nil, "Missing PoP", popChallenge
	}

	err = c.PoP.Validate(master, r.Method, r.URL.EscapedPath(), header)
	if err != nil {
		c.Metrics.RecordPoPFailure(popFailureReason(err))
	}
	switch err {
	case nil:
		return session, "", nil
	case pop.ErrMalformedHeader:
		return nil, "Malformed PoP", popChallenge
	case pop.ErrStaleTimestamp:
		return nil, "Invalid timestamp", popChallenge
	case pop.ErrReplayedNonce:
		return nil, "Nonce reused", nil
	default:
		return nil, "Invalid PoP", nil
	}
}

// SessionForRequest authenticates a request without enforcing it, for
// routes that merely acknowledge valid credentials. The PoP header is not
// consumed here, so a nil result carries no side effects.
func (c *Credentials) SessionForRequest(r *http.Request) *Session {
	tokenString, ok := extractBearerToken(r)
	if !ok {
		return nil
	}
	claims, err := c.Tokens.Verify(tokenString)
	if err != nil {
		return nil
	}
	master, ok := c.Sessions.Get(claims.SessionUUID)
	if !ok {
		return nil
	}
	return &Session{Username: claims.Subject, UUID: claims.SessionUUID, MasterKey: master}
}

// RequireSession rejects requests without a valid bearer token bound to a
// live session, and (unless disabled) a valid single-use PoP header. The
// session lands in the request context.
func (c *Credentials) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, detail, challenge := c.resolve(r)
		if session == nil {
			logger.WarnCtx(r.Context(), "request rejected", logger.Reason(detail))
			for k, vs := range challenge {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			WriteDetail(w, http.StatusUnauthorized, detail)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		if lc := logger.FromContext(ctx); lc != nil {
			ctx = logger.WithContext(ctx, lc.WithUsername(session.Username).WithSession(session.UUID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
