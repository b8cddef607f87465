// Package exef implements the Excalibur Encryption Format (ExEF), an
// AES-GCM container used for every encrypted byte the server stores or
// sends.
//
// A container is laid out as a fixed 28-byte header, the ciphertext, and a
// 16-byte footer holding the GCM authentication tag:
//
//	offset  size     field
//	0       4        magic "ExEF"
//	4       2        version (big-endian, currently 2)
//	6       2        key size in bits (128, 192 or 256)
//	8       12       AES-GCM nonce
//	20      8        ciphertext length in bytes
//	28      ct_len   ciphertext
//	28+n    16       authentication tag
//
// The package offers one-shot Seal/Open for small payloads and streaming
// Encryptor/Decryptor types for request and response bodies of arbitrary
// size.
package exef

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

// Version is the ExEF container version produced and accepted by this
// package.
const Version = 2

// Sizes of the fixed portions of a container, in bytes.
const (
	HeaderSize = 28
	FooterSize = 16
	NonceSize  = 12
	TagSize    = 16

	// AdditionalSize is the overhead a container adds on top of the
	// plaintext length.
	AdditionalSize = HeaderSize + FooterSize
)

var magic = []byte("ExEF")

// Decode and construction failures.
var (
	ErrBadMagic    = errors.New("exef: data does not start with ExEF magic")
	ErrBadVersion  = errors.New("exef: unsupported container version")
	ErrBadKeysize  = errors.New("exef: key size must be 128, 192 or 256 bits")
	ErrBadNonce    = errors.New("exef: nonce must be 12 bytes")
	ErrShortBuffer = errors.New("exef: container truncated")
	ErrTagMismatch = errors.New("exef: authentication tag mismatch")
)

// header is the parsed form of the 28-byte container header.
type header struct {
	keysize int // bits
	nonce   []byte
	ctLen   uint64
}

// marshal serializes the header into its 28-byte wire form.
func (h header) marshal() []byte {
	out := make([]byte, 0, HeaderSize)
	out = append(out, magic...)
	out = binary.BigEndian.AppendUint16(out, Version)
	out = binary.BigEndian.AppendUint16(out, uint16(h.keysize))
	out = append(out, h.nonce...)
	out = binary.BigEndian.AppendUint64(out, h.ctLen)
	return out
}

// parseHeader parses exactly HeaderSize bytes.
func parseHeader(data []byte) (header, error) {
	if len(data) < HeaderSize {
		return header{}, ErrShortBuffer
	}
	if !bytes.Equal(data[:4], magic) {
		return header{}, ErrBadMagic
	}
	if v := binary.BigEndian.Uint16(data[4:6]); v != Version {
		return header{}, fmt.Errorf("%w: got %d, want %d", ErrBadVersion, v, Version)
	}

	h := header{
		keysize: int(binary.BigEndian.Uint16(data[6:8])),
		nonce:   bytes.Clone(data[8:20]),
		ctLen:   binary.BigEndian.Uint64(data[20:28]),
	}
	switch h.keysize {
	case 128, 192, 256:
	default:
		return header{}, ErrBadKeysize
	}
	return h, nil
}

// checkKey validates an AES key length.
func checkKey(key []byte) error {
	switch len(key) {
	case 16, 24, 32:
		return nil
	default:
		return ErrBadKeysize
	}
}

// randomNonce draws a fresh 96-bit nonce from the system CSPRNG.
func randomNonce() []byte {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("exef: cannot read random nonce: %v", err))
	}
	return nonce
}

// Seal encrypts plaintext into a complete ExEF container. If nonce is nil a
// random 96-bit nonce is generated. The same (key, nonce) pair must never be
// reused.
func Seal(key, nonce, plaintext []byte) ([]byte, error) {
	enc, err := NewEncryptor(key, nonce)
	if err != nil {
		return nil, err
	}
	enc.SetLength(len(plaintext))
	if err := enc.Update(plaintext); err != nil {
		return nil, err
	}

	out := make([]byte, 0, HeaderSize+len(plaintext)+FooterSize)
	for chunk := enc.Next(); chunk != nil; chunk = enc.Next() {
		out = append(out, chunk...)
	}
	return out, nil
}

// Open decrypts and verifies a complete ExEF container, returning the
// plaintext. The container must have been produced with the given key.
func Open(key, data []byte) ([]byte, error) {
	dec, err := NewDecryptor(key)
	if err != nil {
		return nil, err
	}
	if err := dec.Update(data); err != nil {
		return nil, err
	}
	if !dec.FullyProcessed() {
		return nil, ErrShortBuffer
	}

	var out []byte
	for chunk := dec.Next(); chunk != nil; chunk = dec.Next() {
		out = append(out, chunk...)
	}
	if err := dec.Verify(); err != nil {
		return nil, err
	}
	return out, nil
}
