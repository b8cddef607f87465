package srp

import (
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"math/big"

	"golang.org/x/crypto/sha3"
)

// Handshake failure conditions detected by the pure operations.
var (
	// ErrIllegalClientValue means the client public value A satisfies
	// A mod N == 0, which would force the premaster secret to zero.
	ErrIllegalClientValue = errors.New("srp: client public value is illegal; A mod N cannot be 0")

	// ErrZeroU means the shared scrambling value u hashed to zero, which
	// would let a client authenticate without knowing the password.
	ErrZeroU = errors.New("srp: shared u value is 0")
)

// privateValueBits is the size of randomly drawn server private exponents.
const privateValueBits = 256

// ComputeVerifier returns the password verifier v = g^x mod N for a client
// private key x. The server only needs this at enrolment time; during a
// handshake the verifier comes from storage.
func (g *Group) ComputeVerifier(x *big.Int) *big.Int {
	return new(big.Int).Exp(g.G, x, g.N)
}

// ComputeServerPublicValue computes the server public value
// B = (k*v + g^b) mod N for the verifier v. If b is nil a fresh random
// 256-bit private exponent is drawn. Both the private and public values are
// returned.
func (g *Group) ComputeServerPublicValue(v, b *big.Int) (*big.Int, *big.Int, error) {
	if b == nil {
		limit := new(big.Int).Lsh(big.NewInt(1), privateValueBits)
		var err error
		b, err = rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, nil, err
		}
	}

	kv := new(big.Int).Mul(g.K, v)
	gb := new(big.Int).Exp(g.G, b, g.N)
	B := kv.Add(kv, gb)
	B.Mod(B, g.N)
	return b, B, nil
}

// CheckClientPublicValue rejects client public values with A mod N == 0.
func (g *Group) CheckClientPublicValue(A *big.Int) error {
	if new(big.Int).Mod(A, g.N).Sign() == 0 {
		return ErrIllegalClientValue
	}
	return nil
}

// ComputeU computes the scrambling value u = SHA1(PAD(A) | PAD(B)) as an
// integer. A zero result is reported as ErrZeroU.
func (g *Group) ComputeU(A, B *big.Int) (*big.Int, error) {
	h := sha1.New()
	h.Write(pad(A, g.ByteLen()))
	h.Write(pad(B, g.ByteLen()))
	u := new(big.Int).SetBytes(h.Sum(nil))
	if u.Sign() == 0 {
		return nil, ErrZeroU
	}
	return u, nil
}

// ComputePremasterSecret computes the premaster secret
// S = (A * v^u)^b mod N.
func (g *Group) ComputePremasterSecret(A, b, u, v *big.Int) *big.Int {
	vu := new(big.Int).Exp(v, u, g.N)
	base := vu.Mul(A, vu)
	base.Mod(base, g.N)
	return base.Exp(base, b, g.N)
}

// PremasterToMaster derives the 32-byte master secret
// K = SHA3-256(PAD(S)), with S padded to the length of the group prime.
func (g *Group) PremasterToMaster(S *big.Int) []byte {
	sum := sha3.Sum256(pad(S, g.ByteLen()))
	return sum[:]
}

// GenerateM1 computes the client proof
//
//	M1 = H((H(N) XOR H(g)) | salt | A | B | K)
//
// with H = SHA3-256 and the integer terms serialized big-endian without
// padding, the XOR term included.
func (g *Group) GenerateM1(salt []byte, A, B *big.Int, master []byte) []byte {
	return g.generateM1(nil, salt, A, B, master)
}

// GenerateM1WithUsername is GenerateM1 with H(username) inserted after the
// XOR term, for clients that bind the proof to the account name.
func (g *Group) GenerateM1WithUsername(username string, salt []byte, A, B *big.Int, master []byte) []byte {
	nameHash := sha3.Sum256([]byte(username))
	return g.generateM1(nameHash[:], salt, A, B, master)
}

func (g *Group) generateM1(nameHash, salt []byte, A, B *big.Int, master []byte) []byte {
	nHash := sha3.Sum256(g.N.Bytes())
	gHash := sha3.Sum256(g.G.Bytes())
	xor := new(big.Int).Xor(
		new(big.Int).SetBytes(nHash[:]),
		new(big.Int).SetBytes(gHash[:]),
	)

	h := sha3.New256()
	h.Write(xor.Bytes())
	h.Write(nameHash)
	h.Write(salt)
	h.Write(A.Bytes())
	h.Write(B.Bytes())
	h.Write(master)
	return h.Sum(nil)
}

// GenerateM2 computes the server proof M2 = H(A | M1 | K), H = SHA3-256.
func GenerateM2(A *big.Int, m1, master []byte) []byte {
	h := sha3.New256()
	h.Write(A.Bytes())
	h.Write(m1)
	h.Write(master)
	return h.Sum(nil)
}
