package exef

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// gcmCTR returns a CTR stream positioned at the AES-GCM data counter for the
// given 96-bit nonce. GCM reserves counter value 1 for the tag; encryption of
// the payload starts at counter value 2, so a CTR stream seeded this way
// produces byte-identical ciphertext to cipher.AEAD while allowing the
// payload to be processed chunk by chunk.
func gcmCTR(block cipher.Block, nonce []byte) cipher.Stream {
	iv := make([]byte, aes.BlockSize)
	copy(iv, nonce)
	iv[aes.BlockSize-1] = 2
	return cipher.NewCTR(block, iv)
}

// Encryptor incrementally frames a plaintext stream of known length into an
// ExEF container. The total plaintext length must be declared via SetLength
// before the first Update, since the header carries the ciphertext length.
//
// Chunks fed to Update may partition the plaintext arbitrarily. Next returns
// the pending output pieces in wire order: the header first, then one
// ciphertext chunk per Update, then the footer once the declared length has
// been consumed.
type Encryptor struct {
	key   []byte
	nonce []byte

	block  cipher.Block
	stream cipher.Stream

	ctLen      int64 // declared length; -1 until SetLength
	consumed   int64
	headerSent bool
	footerSent bool

	queue     [][]byte
	plaintext bytes.Buffer // retained for the final tag computation
}

// NewEncryptor creates an Encryptor for the given AES key. If nonce is nil a
// random 96-bit nonce is generated; reusing a (key, nonce) pair is the
// caller's responsibility to avoid.
func NewEncryptor(key, nonce []byte) (*Encryptor, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if nonce == nil {
		nonce = randomNonce()
	}
	if len(nonce) != NonceSize {
		return nil, ErrBadNonce
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	return &Encryptor{
		key:    bytes.Clone(key),
		nonce:  bytes.Clone(nonce),
		block:  block,
		stream: gcmCTR(block, nonce),
		ctLen:  -1,
	}, nil
}

// Nonce returns the nonce this encryptor writes into the container header.
func (e *Encryptor) Nonce() []byte {
	return bytes.Clone(e.nonce)
}

// SetLength declares the total plaintext length. It must be called before
// the first Update.
func (e *Encryptor) SetLength(n int) {
	e.ctLen = int64(n)
}

// Update encrypts the next plaintext chunk and queues its ciphertext for
// Next. Feeding more bytes than declared via SetLength is an error.
func (e *Encryptor) Update(p []byte) error {
	if e.ctLen < 0 {
		return errors.New("exef: SetLength must be called before Update")
	}
	if e.consumed+int64(len(p)) > e.ctLen {
		return errors.New("exef: more plaintext than declared length")
	}
	if len(p) == 0 {
		return nil
	}

	ct := make([]byte, len(p))
	e.stream.XORKeyStream(ct, p)
	e.queue = append(e.queue, ct)
	e.plaintext.Write(p)
	e.consumed += int64(len(p))
	return nil
}

// FullyProcessed reports whether all declared plaintext bytes have been fed
// through Update.
func (e *Encryptor) FullyProcessed() bool {
	return e.ctLen >= 0 && e.consumed == e.ctLen
}

// Next returns the next piece of container output, or nil when no output is
// currently pending. The header is emitted first, then ciphertext chunks in
// the order they were fed, then the footer exactly once after the last
// declared byte was consumed.
func (e *Encryptor) Next() []byte {
	if e.ctLen < 0 {
		return nil
	}
	if !e.headerSent {
		e.headerSent = true
		h := header{keysize: len(e.key) * 8, nonce: e.nonce, ctLen: uint64(e.ctLen)}
		return h.marshal()
	}
	if len(e.queue) > 0 {
		out := e.queue[0]
		e.queue = e.queue[1:]
		return out
	}
	if e.consumed == e.ctLen && !e.footerSent {
		e.footerSent = true
		return e.tag()
	}
	return nil
}

// tag computes the GCM authentication tag over the full plaintext. The CTR
// stream above produced ciphertext identical to cipher.AEAD, so sealing the
// retained plaintext yields the matching tag.
func (e *Encryptor) tag() []byte {
	gcm, err := cipher.NewGCM(e.block)
	if err != nil {
		panic("exef: AES-GCM construction failed: " + err.Error())
	}
	sealed := gcm.Seal(nil, e.nonce, e.plaintext.Bytes(), nil)
	return sealed[len(sealed)-TagSize:]
}
