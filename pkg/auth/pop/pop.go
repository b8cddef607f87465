// Package pop implements the X-SRP-PoP proof-of-possession scheme.
//
// Bearer tokens alone are replayable; the PoP header proves the caller still
// holds the session master key by MACing the request line with it:
//
//	X-SRP-PoP: "<timestamp> <base64 nonce> <base64 hmac>"
//	hmac = HMAC-SHA256(master_key, "<METHOD> <path> <timestamp> " | nonce)
//
// The nonce is 16 bytes, the MAC 32. A validator tracks seen nonces for the
// timestamp validity window, so each header authorizes exactly one request.
package pop

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/PhotonicGluon/Excalibur/pkg/cache"
)

// HeaderName is the HTTP header carrying the proof.
const HeaderName = "X-SRP-PoP"

// NonceSize is the size of the per-request nonce in bytes.
const NonceSize = 16

// HeaderPattern is the accepted header grammar: a 1-10 digit timestamp, a
// base64 16-byte nonce, and a base64 32-byte MAC, space-separated.
const HeaderPattern = `^(?:(?P<timestamp>[0-9]{1,10}) (?P<nonce>[A-Za-z0-9+/]{22}==) (?P<hmac>[A-Za-z0-9+/]{43}=)|)$`

var headerRegexp = regexp.MustCompile(HeaderPattern)

// Validation failures, in the order the checks run.
var (
	ErrMalformedHeader = errors.New("pop: malformed proof-of-possession header")
	ErrStaleTimestamp  = errors.New("pop: timestamp outside validity window")
	ErrReplayedNonce   = errors.New("pop: nonce already seen")
	ErrBadMAC          = errors.New("pop: HMAC mismatch")
)

// Generate computes the proof-of-possession MAC for a request.
func Generate(masterKey []byte, method, path string, timestamp int64, nonce []byte) []byte {
	mac := hmac.New(sha256.New, masterKey)
	fmt.Fprintf(mac, "%s %s %d ", method, path, timestamp)
	mac.Write(nonce)
	return mac.Sum(nil)
}

// GenerateHeader builds a complete header value for a request. Used by tests
// and by the CLI when exercising protected endpoints.
func GenerateHeader(masterKey []byte, method, path string, timestamp int64, nonce []byte) string {
	mac := Generate(masterKey, method, path, timestamp, nonce)
	return fmt.Sprintf("%d %s %s",
		timestamp,
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(mac))
}

// ParseHeader splits a header value into timestamp, nonce and MAC. An empty
// or ungrammatical value is ErrMalformedHeader.
func ParseHeader(header string) (int64, []byte, []byte, error) {
	m := headerRegexp.FindStringSubmatch(header)
	if m == nil || m[1] == "" {
		return 0, nil, nil, ErrMalformedHeader
	}

	timestamp, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, nil, nil, ErrMalformedHeader
	}
	nonce, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return 0, nil, nil, ErrMalformedHeader
	}
	mac, err := base64.StdEncoding.DecodeString(m[3])
	if err != nil {
		return 0, nil, nil, ErrMalformedHeader
	}
	return timestamp, nonce, mac, nil
}

// Validator checks proof headers against a replay window.
type Validator struct {
	nonces   *cache.Cache[string, struct{}]
	validity time.Duration
	now      func() time.Time
}

// NewValidator creates a validator remembering up to cacheSize nonces, each
// for the given validity window.
func NewValidator(cacheSize int, validity time.Duration) *Validator {
	return &Validator{
		nonces:   cache.New[string, struct{}](cacheSize, validity),
		validity: validity,
		now:      time.Now,
	}
}

// Validate checks a header for the given request under the session master
// key. Checks run in a fixed order so a malformed header never consumes its
// nonce: syntax, timestamp freshness, nonce novelty, then the MAC itself.
// The nonce is recorded once it reaches the replay check, whether or not the
// MAC verifies.
func (v *Validator) Validate(masterKey []byte, method, path, header string) error {
	timestamp, nonce, mac, err := ParseHeader(header)
	if err != nil {
		return err
	}

	now := v.now()
	if timestamp < now.Add(-v.validity).Unix() {
		return ErrStaleTimestamp
	}

	nonceKey := string(nonce)
	if v.nonces.Contains(nonceKey) {
		return ErrReplayedNonce
	}
	v.nonces.Put(nonceKey, struct{}{})

	expected := Generate(masterKey, method, path, timestamp, nonce)
	if !hmac.Equal(expected, mac) {
		return ErrBadMAC
	}
	return nil
}
