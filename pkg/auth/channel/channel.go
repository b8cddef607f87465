// Package channel runs the server side of the SRP-6a login handshake over a
// message-oriented transport and hands back an encrypted bearer token.
//
// The protocol is an adaptation of RFC 5054 section 2.2: the client opens a
// WebSocket, the two sides negotiate ephemeral values, prove knowledge of
// the password verifier to each other, and the server finishes by caching
// the session master key and sending a JWT encrypted under it. No state
// persists for handshakes that abort before that final step.
package channel

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/PhotonicGluon/Excalibur/internal/logger"
	"github.com/PhotonicGluon/Excalibur/pkg/auth/token"
	"github.com/PhotonicGluon/Excalibur/pkg/cache"
	"github.com/PhotonicGluon/Excalibur/pkg/srp"
)

// MaxRetries bounds the negotiation loops: how many public values the server
// offers, and how many illegal client values it tolerates.
const MaxRetries = 3

// Client-visible abort messages. Clients match on these strings, so they are
// part of the protocol.
const (
	msgUserUnknown   = "User does not exist"
	msgRefusedValues = "Client refused all server's public values"
	msgIllegalClient = "Client public value is illegal; A mod N cannot be 0"
	msgTriesExceeded = "Client tries exceeded"
	msgZeroU         = "Shared U value is 0"
	msgUOK           = "U is OK"
	msgProofMismatch = "M1 values do not match"
)

// ErrHandshakeAborted is wrapped by every protocol-level abort.
var ErrHandshakeAborted = errors.New("channel: handshake aborted")

// User is the account material the handshake needs.
type User struct {
	Username string
	Group    *srp.Group
	Salt     []byte
	Verifier *big.Int
}

// UserLookup resolves a username to its SRP material. A nil user with a nil
// error means the account does not exist.
type UserLookup interface {
	SRPUser(username string) (*User, error)
}

// Handshake runs SRP login sessions. All fields must be set.
type Handshake struct {
	Users           UserLookup
	Sessions        *cache.Cache[string, []byte]
	Tokens          *token.Service
	SessionDuration time.Duration

	// IncludeUsername selects the M1 variant that hashes the username
	// into the client proof.
	IncludeUsername bool

	// privateValue, when non-nil, supplies the server ephemeral secret.
	// Tests inject fixed values here; production uses fresh randomness.
	privateValue func() *big.Int
}

// abort sends a protocol error to the client and reports the abort reason.
func abort(t Transport, message string) error {
	if err := t.Send(Text(message, StatusErr)); err != nil {
		return fmt.Errorf("channel: sending abort: %w", err)
	}
	return fmt.Errorf("%w: %s", ErrHandshakeAborted, message)
}

// Run drives one handshake to completion and closes the transport. A nil
// return means a session was established and the encrypted token delivered.
func (h *Handshake) Run(t Transport) error {
	defer t.Close()

	// Identify the account.
	msg, err := t.Receive()
	if err != nil {
		return fmt.Errorf("channel: receiving username: %w", err)
	}
	username := msg.Text()

	user, err := h.Users.SRPUser(username)
	if err != nil {
		return fmt.Errorf("channel: looking up user: %w", err)
	}
	if user == nil {
		return abort(t, msgUserUnknown)
	}
	group := user.Group

	if err := t.Send(Text(strconv.Itoa(group.Bits), StatusOK)); err != nil {
		return err
	}

	// Offer server public values until the client accepts one.
	var b, B *big.Int
	var accepted Message
	ok := false
	for i := 0; i < MaxRetries && !ok; i++ {
		var priv *big.Int
		if h.privateValue != nil {
			priv = h.privateValue()
		}
		b, B, err = group.ComputeServerPublicValue(user.Verifier, priv)
		if err != nil {
			return fmt.Errorf("channel: computing server public value: %w", err)
		}
		if err := t.Send(Bytes(B.Bytes(), "")); err != nil {
			return err
		}

		accepted, err = t.Receive()
		if err != nil {
			return fmt.Errorf("channel: receiving public value response: %w", err)
		}
		ok = accepted.OK()
	}
	if !ok {
		return abort(t, msgRefusedValues)
	}

	// The acceptance message carries the client public value; illegal
	// values get a bounded number of replacements.
	var A *big.Int
	response := accepted
	for i := 0; ; i++ {
		if response.Status == StatusErr {
			return fmt.Errorf("%w: client error during negotiation", ErrHandshakeAborted)
		}

		A = new(big.Int).SetBytes(response.Data)
		if group.CheckClientPublicValue(A) == nil {
			break
		}

		if i == MaxRetries-1 {
			return abort(t, msgTriesExceeded)
		}
		if err := t.Send(Text(msgIllegalClient, StatusErr)); err != nil {
			return err
		}
		response, err = t.Receive()
		if err != nil {
			return fmt.Errorf("channel: receiving client public value: %w", err)
		}
	}

	// Derive the shared secret.
	u, err := group.ComputeU(A, B)
	if err != nil {
		return abort(t, msgZeroU)
	}
	if err := t.Send(Text(msgUOK, StatusOK)); err != nil {
		return err
	}

	premaster := group.ComputePremasterSecret(A, b, u, user.Verifier)
	master := group.PremasterToMaster(premaster)

	var m1Server []byte
	if h.IncludeUsername {
		m1Server = group.GenerateM1WithUsername(user.Username, user.Salt, A, B, master)
	} else {
		m1Server = group.GenerateM1(user.Salt, A, B, master)
	}

	// Verify the client proof.
	m1Response, err := t.Receive()
	if err != nil {
		return fmt.Errorf("channel: receiving client proof: %w", err)
	}
	if !m1Response.OK() {
		return fmt.Errorf("%w: client withheld proof", ErrHandshakeAborted)
	}
	if !bytes.Equal(m1Response.Data, m1Server) {
		return abort(t, msgProofMismatch)
	}

	// Send the server proof and wait for the client's verdict.
	m2 := srp.GenerateM2(A, m1Server, master)
	if err := t.Send(Bytes(m2, StatusOK)); err != nil {
		return err
	}
	verdict, err := t.Receive()
	if err != nil {
		return fmt.Errorf("channel: receiving proof verdict: %w", err)
	}
	if !verdict.OK() {
		return fmt.Errorf("%w: client rejected server proof", ErrHandshakeAborted)
	}

	// Establish the session and deliver the encrypted token.
	id := uuid.New()
	sessionUUID := hex.EncodeToString(id[:])
	h.Sessions.Put(sessionUUID, master)

	signed, err := h.Tokens.Generate(user.Username, sessionUUID, time.Now().Add(h.SessionDuration))
	if err != nil {
		h.Sessions.Delete(sessionUUID)
		return err
	}
	payload, err := encryptToken(master, signed)
	if err != nil {
		h.Sessions.Delete(sessionUUID)
		return err
	}
	if err := t.Send(Text(string(payload), "")); err != nil {
		h.Sessions.Delete(sessionUUID)
		return err
	}

	logger.Info("SRP handshake complete", logger.Username(user.Username), logger.SessionID(sessionUUID))
	return nil
}

// encryptedToken is the wire form of the token delivery: AES-GCM under the
// session master key, fields base64-encoded.
type encryptedToken struct {
	Nonce string `json:"nonce"`
	Token string `json:"token"`
	Tag   string `json:"tag"`
}

func encryptToken(master []byte, signed string) ([]byte, error) {
	block, err := aes.NewCipher(master)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, []byte(signed), nil)
	ct, tag := sealed[:len(sealed)-16], sealed[len(sealed)-16:]

	return json.Marshal(encryptedToken{
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Token: base64.StdEncoding.EncodeToString(ct),
		Tag:   base64.StdEncoding.EncodeToString(tag),
	})
}
