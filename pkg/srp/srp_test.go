package srp

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Vectors from RFC 5054 Appendix B (1024-bit group), plus the derived
// SHA3-256 values for the master secret and proofs.
var (
	vecSalt = mustInt(`BEB25379 D1A8581E B5A72767 3A2441EE`)
	vecK    = mustInt(`7556AA04 5AEF2CDD 07ABAF0F 665C3E81 8913186F`)
	vecV    = mustInt(`
		7E273DE8 696FFC4F 4E337D05 B4B375BE B0DDE156 9E8FA00A 9886D812
		9BADA1F1 822223CA 1A605B53 0E379BA4 729FDC59 F105B478 7E5186F5
		C671085A 1447B52A 48CF1970 B4FB6F84 00BBF4CE BFBB1681 52E08AB5
		EA53D15C 1AFF87B2 B9DA6E04 E058AD51 CC72BFC9 033B564E 26480D78
		E955A5E2 9E7AB245 DB2BE315 E2099AFB`)
	vecBPriv = mustInt(`E487CB59 D31AC550 471E81F0 0F6928E0 1DDA08E9 74A004F4 9E61F5D1 05284D20`)
	vecAPub  = mustInt(`
		61D5E490 F6F1B795 47B0704C 436F523D D0E560F0 C64115BB 72557EC4
		4352E890 3211C046 92272D8B 2D1A5358 A2CF1B6E 0BFCF99F 921530EC
		8E393561 79EAE45E 42BA92AE ACED8251 71E1E8B9 AF6D9C03 E1327F44
		BE087EF0 6530E69F 66615261 EEF54073 CA11CF58 58F0EDFD FE15EFEA
		B349EF5D 76988A36 72FAC47B 0769447B`)
	vecBPub = mustInt(`
		BD0C6151 2C692C0C B6D041FA 01BB152D 4916A1E7 7AF46AE1 05393011
		BAF38964 DC46A067 0DD125B9 5A981652 236F99D9 B681CBF8 7837EC99
		6C6DA044 53728610 D0C6DDB5 8B318885 D7D82C7F 8DEB75CE 7BD4FBAA
		37089E6F 9C6059F3 88838E7A 00030B33 1EB76840 910440B1 B27AAEAE
		EB4012B7 D7665238 A8E3FB00 4B117B58`)
	vecU         = mustInt(`CE38B959 3487DA98 554ED47D 70A7AE5F 462EF019`)
	vecPremaster = mustInt(`
		B0DC82BA BCF30674 AE450C02 87745E79 90A3381F 63B387AA F271A10D
		233861E3 59B48220 F7C4693C 9AE12B0A 6F67809F 0876E2D0 13800D6C
		41BB59B6 D5979B5C 00A172B4 A2A5903A 0BDCAF8A 709585EB 2AFAFA8F
		3499B200 210DCC1F 10EB3394 3CD67FC8 8A2F39A4 BE5BEC4E C0A3212D
		C346D7E4 74B29EDE 8A469FFE CA686E5A`)
	vecMaster = mustInt(`573C0D40 FABF905D 72B44716 380D2E54 C5A48FD4 3B40D345 A3619881 D3E8632B`)
	vecM1     = mustInt(`D67B66EE 8621C267 7BFD97E7 82480762 5693212F AE9599D9 59A03F82 0F4E815C`)
	vecM2     = mustInt(`53EEEE88 4F3309A0 6645299F F457AAD0 FB724151 B872B44F 2382F52D C0D0E820`)
)

func mustInt(hexDigits string) *big.Int {
	n, ok := new(big.Int).SetString(strings.Join(strings.Fields(hexDigits), ""), 16)
	if !ok {
		panic("bad test vector")
	}
	return n
}

func TestGroupParameters(t *testing.T) {
	assert.Equal(t, 1024, Group1024.Bits)
	assert.Equal(t, 128, Group1024.ByteLen())
	assert.Equal(t, 0, Group1024.K.Cmp(vecK))

	assert.Equal(t, 1536, Group1536.Bits)
	assert.Equal(t, 2048, Group2048.Bits)
	for _, g := range []*Group{Group1024, Group1536, Group2048} {
		assert.Equal(t, int64(2), g.G.Int64())
		assert.Equal(t, g.Bits, g.N.BitLen())
	}
}

func TestGroupForBits(t *testing.T) {
	for bits, want := range map[int]*Group{1024: Group1024, 1536: Group1536, 2048: Group2048} {
		g, err := GroupForBits(bits)
		require.NoError(t, err)
		assert.Same(t, want, g)
	}

	_, err := GroupForBits(4096)
	assert.Error(t, err)
}

func TestComputeServerPublicValue(t *testing.T) {
	b, B, err := Group1024.ComputeServerPublicValue(vecV, vecBPriv)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Cmp(vecBPriv))
	assert.Equal(t, 0, B.Cmp(vecBPub))
}

func TestComputeServerPublicValue_RandomPrivate(t *testing.T) {
	b1, B1, err := Group1024.ComputeServerPublicValue(vecV, nil)
	require.NoError(t, err)
	b2, B2, err := Group1024.ComputeServerPublicValue(vecV, nil)
	require.NoError(t, err)

	assert.NotEqual(t, 0, b1.Cmp(b2))
	assert.NotEqual(t, 0, B1.Cmp(B2))
	assert.LessOrEqual(t, b1.BitLen(), privateValueBits)
}

func TestCheckClientPublicValue(t *testing.T) {
	require.NoError(t, Group1024.CheckClientPublicValue(vecAPub))

	assert.ErrorIs(t, Group1024.CheckClientPublicValue(big.NewInt(0)), ErrIllegalClientValue)
	assert.ErrorIs(t, Group1024.CheckClientPublicValue(Group1024.N), ErrIllegalClientValue)
	twoN := new(big.Int).Lsh(Group1024.N, 1)
	assert.ErrorIs(t, Group1024.CheckClientPublicValue(twoN), ErrIllegalClientValue)
}

func TestComputeU(t *testing.T) {
	u, err := Group1024.ComputeU(vecAPub, vecBPub)
	require.NoError(t, err)
	assert.Equal(t, 0, u.Cmp(vecU))
}

func TestComputePremasterSecret(t *testing.T) {
	S := Group1024.ComputePremasterSecret(vecAPub, vecBPriv, vecU, vecV)
	assert.Equal(t, 0, S.Cmp(vecPremaster))
}

func TestPremasterToMaster(t *testing.T) {
	assert.Equal(t, vecMaster.Bytes(), Group1024.PremasterToMaster(vecPremaster))

	// Additional fixed vectors, covering premaster secrets shorter than the
	// group size.
	cases := []struct {
		premaster *big.Int
		want      string
	}{
		{mustInt(`27A46FA7 71529CA3 E8B757E5 4A32762B 937752D1 8301AACB 8D039322
			3B822F0F AE0E202D 70B0B5FC B6C171DD E8A6D06F E1EC380B B7F22C78
			88137934 5FB59DF3 FBC5CBC8 163DE42D 67B6072A F2BCFA96 EE4C19CA
			C79AE3A4 208AA086 588B925E DE89510B 8A89B3B1 B8B6A95E 57E8D6D9
			EB95F981 7D3EDDD0 9F8C8D2A 0190E18`),
			"d369ace03853d18034a54282ee1b7b18d3b52bf390531b758d3bd568889284cb"},
		{new(big.Int).SetBytes(append([]byte{0x01}, bytes.Repeat([]byte{0x11}, 127)...)),
			"0604da4fcae78f8e6aeaa51ddabb300a45cf540e61f1f344246405c1f7df5741"},
		{big.NewInt(0), "040689c9dbffcf94620acdeec5686d8c35d1c85f8f3c1a70b988d58ed33ea148"},
		{big.NewInt(1), "51a54a0e5a2bc61493b51cee861c8834e05303c0e1212c5728e5dad227a787b1"},
		{big.NewInt(16), "284275fd923e817376bd2da1f948d15a19a8d08625d28a76be93d12648f4c251"},
		{new(big.Int).SetBytes([]byte("TEST")),
			"fbae899ee2dbef77f824b06cbd0cb0f92e7c9108a5f9e072a596f4ea550d2d32"},
	}
	for i, c := range cases {
		got := hex.EncodeToString(Group1024.PremasterToMaster(c.premaster))
		assert.Equal(t, c.want, got, "case %d", i)
	}
}

func TestGenerateM1(t *testing.T) {
	master := Group1024.PremasterToMaster(vecPremaster)
	m1 := Group1024.GenerateM1(vecSalt.Bytes(), vecAPub, vecBPub, master)
	assert.Equal(t, vecM1.Bytes(), m1)
}

func TestGenerateM1WithUsername(t *testing.T) {
	master := Group1024.PremasterToMaster(vecPremaster)
	plain := Group1024.GenerateM1(vecSalt.Bytes(), vecAPub, vecBPub, master)
	bound := Group1024.GenerateM1WithUsername("alice", vecSalt.Bytes(), vecAPub, vecBPub, master)

	assert.Len(t, bound, 32)
	assert.NotEqual(t, plain, bound)
	assert.Equal(t, bound, Group1024.GenerateM1WithUsername("alice", vecSalt.Bytes(), vecAPub, vecBPub, master))
	assert.NotEqual(t, bound, Group1024.GenerateM1WithUsername("bob", vecSalt.Bytes(), vecAPub, vecBPub, master))
}

func TestGenerateM2(t *testing.T) {
	master := Group1024.PremasterToMaster(vecPremaster)
	m2 := GenerateM2(vecAPub, vecM1.Bytes(), master)
	assert.Equal(t, vecM2.Bytes(), m2)
}

func TestComputeVerifier(t *testing.T) {
	// x = SHA1(salt | SHA1("alice:password123")) per RFC 5054 Appendix B.
	x := mustInt(`94B7555A ABE9127C C58CCF49 93DB6CF8 4D16C124`)
	v := Group1024.ComputeVerifier(x)
	assert.Equal(t, 0, v.Cmp(vecV))
}

func TestFullHandshakeAgainstClientSide(t *testing.T) {
	// Client-side computation done inline with the same primitives; the
	// two sides must converge on the same master secret and proofs.
	g := Group2048
	x := mustInt(`94B7555A ABE9127C C58CCF49 93DB6CF8 4D16C124`)
	v := g.ComputeVerifier(x)

	aPriv := mustInt(`60975527 035CF2AD 1989806F 0407210B C81EDC04 E2762A56 AFD529DD DA2D4393`)
	A := new(big.Int).Exp(g.G, aPriv, g.N)

	b, B, err := g.ComputeServerPublicValue(v, nil)
	require.NoError(t, err)
	require.NoError(t, g.CheckClientPublicValue(A))

	u, err := g.ComputeU(A, B)
	require.NoError(t, err)

	// Server side: S = (A * v^u)^b.
	serverS := g.ComputePremasterSecret(A, b, u, v)

	// Client side: S = (B - k*g^x)^(a + u*x).
	gx := new(big.Int).Exp(g.G, x, g.N)
	base := new(big.Int).Sub(B, new(big.Int).Mul(g.K, gx))
	base.Mod(base, g.N)
	exp := new(big.Int).Add(aPriv, new(big.Int).Mul(u, x))
	clientS := new(big.Int).Exp(base, exp, g.N)

	require.Equal(t, 0, serverS.Cmp(clientS))

	master := g.PremasterToMaster(serverS)
	salt := vecSalt.Bytes()
	m1 := g.GenerateM1(salt, A, B, master)
	assert.Equal(t, m1, g.GenerateM1(salt, A, B, g.PremasterToMaster(clientS)))
	assert.Len(t, GenerateM2(A, m1, master), 32)
}
