// Package token issues and verifies the bearer tokens handed out at the end
// of a successful SRP handshake.
//
// Tokens are HS256 JWTs signed with a per-user subkey derived from the
// server secret, so a leaked token for one user never helps forging tokens
// for another. The uuid claim ties the token to a live session in the
// session cache; that check belongs to the caller, since cache membership is
// a serving-time concern.
package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/sha3"
)

// secretSize is the server secret length in bytes.
const secretSize = 32

// debugSecret is the fixed secret used when EXCALIBUR_SERVER_DEBUG=1, so
// that test clients can mint their own tokens.
var debugSecret = []byte("one demo 16B key")

// ErrInvalidToken covers every verification failure: malformed token, bad
// signature, wrong algorithm, expired, or issued in the future.
var ErrInvalidToken = errors.New("token: missing, invalid, or expired bearer token")

// Claims are the verified contents of a bearer token.
type Claims struct {
	// Subject is the authenticated username.
	Subject string

	// SessionUUID identifies the SRP session the token was issued for.
	SessionUUID string
}

// Service issues and verifies bearer tokens under a single server secret.
type Service struct {
	secret []byte
}

// NewService creates a token service. The secret is drawn fresh from the
// CSPRNG, except in debug mode where a fixed secret is used.
func NewService() (*Service, error) {
	if os.Getenv("EXCALIBUR_SERVER_DEBUG") == "1" {
		return &Service{secret: debugSecret}, nil
	}

	secret := make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("token: generating server secret: %w", err)
	}
	return &Service{secret: secret}, nil
}

// NewServiceWithSecret creates a token service with a caller-supplied
// secret. Used by tests and by clustered deployments that share a secret.
func NewServiceWithSecret(secret []byte) *Service {
	return &Service{secret: secret}
}

// subkey derives the signing key for a username:
// SHA3-256(username | secret).
func (s *Service) subkey(username string) []byte {
	sum := sha3.Sum256(append([]byte(username), s.secret...))
	return sum[:]
}

// Generate issues a token for username bound to the given session UUID,
// expiring at the given time.
func (s *Service) Generate(username, sessionUUID string, expiry time.Time) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  username,
		"uuid": sessionUUID,
		"iat":  jwt.NewNumericDate(now),
		"exp":  jwt.NewNumericDate(expiry),
	})
	signed, err := tok.SignedString(s.subkey(username))
	if err != nil {
		return "", fmt.Errorf("token: signing: %w", err)
	}
	return signed, nil
}

// Verify checks a serialized token and returns its claims. The signing key
// depends on the subject, so the token is first parsed without verification
// to learn the subject, then verified against that user's subkey.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	sub, err := unverified.Claims.GetSubject()
	if err != nil || sub == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.Parse(tokenString,
		func(t *jwt.Token) (any, error) { return s.subkey(sub), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sessionUUID, ok := claims["uuid"].(string)
	if !ok || sessionUUID == "" {
		return nil, ErrInvalidToken
	}

	return &Claims{Subject: sub, SessionUUID: sessionUUID}, nil
}
