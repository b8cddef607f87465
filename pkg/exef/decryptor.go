package exef

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// errPastEnd reports input beyond the declared ciphertext and tag.
var errPastEnd = errors.New("exef: data past end of container")

// Decryptor incrementally parses an ExEF container from an arbitrarily
// partitioned byte stream. Input is buffered until the 28-byte header is
// complete; ciphertext bytes are then decrypted as they arrive, with the
// trailing 16 bytes held back as the authentication tag.
//
// Plaintext drained through Next has not yet been authenticated: Verify must
// be called after the whole container has been fed, and its result decides
// whether any of the output may be trusted.
type Decryptor struct {
	key []byte

	hdr    *header
	block  cipher.Block
	stream cipher.Stream

	buf        []byte // header, then tag accumulation
	ctLeft     uint64
	tag        []byte
	queue      [][]byte
	ciphertext bytes.Buffer // retained for Verify
}

// NewDecryptor creates a Decryptor for the given AES key.
func NewDecryptor(key []byte) (*Decryptor, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return &Decryptor{key: bytes.Clone(key)}, nil
}

// Update feeds the next chunk of the container. Header parse failures
// (wrong magic, version, key size, or a key size that does not match the
// supplied key) surface here as soon as the header is complete.
func (d *Decryptor) Update(data []byte) error {
	// Accumulate the header first.
	if d.hdr == nil {
		d.buf = append(d.buf, data...)
		if len(d.buf) < HeaderSize {
			return nil
		}

		h, err := parseHeader(d.buf[:HeaderSize])
		if err != nil {
			return err
		}
		if h.keysize != len(d.key)*8 {
			return ErrBadKeysize
		}

		block, err := aes.NewCipher(d.key)
		if err != nil {
			return err
		}

		d.hdr = &h
		d.block = block
		d.stream = gcmCTR(block, h.nonce)
		d.ctLeft = h.ctLen
		data = d.buf[HeaderSize:]
		d.buf = nil
	}

	// Decrypt ciphertext up to the declared length.
	if d.ctLeft > 0 && len(data) > 0 {
		n := uint64(len(data))
		if n > d.ctLeft {
			n = d.ctLeft
		}
		pt := make([]byte, n)
		d.stream.XORKeyStream(pt, data[:n])
		d.queue = append(d.queue, pt)
		d.ciphertext.Write(data[:n])
		d.ctLeft -= n
		data = data[n:]
	}

	// Whatever remains belongs to the footer. Once the tag is complete the
	// container is over and any further byte is an error.
	if len(data) > 0 {
		if d.tag != nil {
			return errPastEnd
		}
		d.buf = append(d.buf, data...)
		if len(d.buf) > FooterSize {
			return errPastEnd
		}
		if len(d.buf) == FooterSize {
			d.tag = d.buf
			d.buf = nil
		}
	}
	return nil
}

// Next returns the next decrypted chunk, or nil when none is pending.
func (d *Decryptor) Next() []byte {
	if len(d.queue) == 0 {
		return nil
	}
	out := d.queue[0]
	d.queue = d.queue[1:]
	return out
}

// FullyProcessed reports whether both the header and footer have been seen.
func (d *Decryptor) FullyProcessed() bool {
	return d.hdr != nil && d.tag != nil
}

// PlaintextLength returns the plaintext length declared by the header. The
// second return is false until the header has been parsed.
func (d *Decryptor) PlaintextLength() (int64, bool) {
	if d.hdr == nil {
		return 0, false
	}
	return int64(d.hdr.ctLen), true
}

// Verify checks the authentication tag over everything fed so far. It must
// be called once the container is fully processed; ErrTagMismatch means the
// container was tampered with and no emitted plaintext may be trusted.
func (d *Decryptor) Verify() error {
	if !d.FullyProcessed() {
		return ErrShortBuffer
	}

	gcm, err := cipher.NewGCM(d.block)
	if err != nil {
		return err
	}
	sealed := append(d.ciphertext.Bytes(), d.tag...)
	if _, err := gcm.Open(nil, d.hdr.nonce, sealed, nil); err != nil {
		return ErrTagMismatch
	}
	return nil
}
