package rsaparams

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/rsalab/internal/keyerr"
)

// textbook key: p=61, q=53, e=17
func toyInput() PrivateInput {
	return PrivateInput{
		N: big.NewInt(3233),
		E: big.NewInt(17),
		D: big.NewInt(413),
		P: big.NewInt(61),
		Q: big.NewInt(53),
	}
}

var (
	stdKeyOnce sync.Once
	stdKey     *rsa.PrivateKey
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	stdKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 1024)
		if err != nil {
			panic(err)
		}
		stdKey = k
	})
	return stdKey
}

func inputFrom(k *rsa.PrivateKey) PrivateInput {
	return PrivateInput{
		N:    k.N,
		E:    big.NewInt(int64(k.E)),
		D:    k.D,
		P:    k.Primes[0],
		Q:    k.Primes[1],
		Dp:   k.Precomputed.Dp,
		Dq:   k.Precomputed.Dq,
		Qinv: k.Precomputed.Qinv,
	}
}

func TestDerivePrivateToy(t *testing.T) {
	priv, derived, err := Validator{}.DerivePrivate(context.Background(), toyInput())
	require.NoError(t, err)

	assert.Equal(t, int64(53), priv.Dp.Int64())
	assert.Equal(t, int64(49), priv.Dq.Int64())
	assert.Equal(t, int64(38), priv.Qinv.Int64())

	assert.Equal(t, int64(3120), derived.PhiN.Int64())
	assert.Equal(t, int64(780), derived.LambdaN.Int64())
	assert.Equal(t, int64(60), derived.PMinus1.Int64())
	assert.Equal(t, int64(52), derived.QMinus1.Int64())
	assert.Equal(t, 12, derived.KeySizeBits)
	assert.Equal(t, 2, derived.KeySizeBytes)
}

func TestDerivePrivateMatchesStdlib(t *testing.T) {
	k := testKey(t)

	priv, derived, err := Validator{}.DerivePrivate(context.Background(), inputFrom(k))
	require.NoError(t, err)
	assert.Equal(t, 0, priv.Dp.Cmp(k.Precomputed.Dp))
	assert.Equal(t, 0, priv.Dq.Cmp(k.Precomputed.Dq))
	assert.Equal(t, 0, priv.Qinv.Cmp(k.Precomputed.Qinv))
	assert.Equal(t, 1024, derived.KeySizeBits)
	assert.Equal(t, 128, derived.KeySizeBytes)

	// d * e == 1 mod lambda(n)
	de := new(big.Int).Mul(priv.D, priv.E)
	assert.Equal(t, int64(1), de.Mod(de, derived.LambdaN).Int64())
}

func TestDerivePrivateRecomputesMissingCRT(t *testing.T) {
	k := testKey(t)
	in := inputFrom(k)
	in.Dp, in.Dq, in.Qinv = nil, nil, nil

	priv, _, err := Validator{}.DerivePrivate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 0, priv.Dp.Cmp(k.Precomputed.Dp))
	assert.Equal(t, 0, priv.Dq.Cmp(k.Precomputed.Dq))
	assert.Equal(t, 0, priv.Qinv.Cmp(k.Precomputed.Qinv))
}

func TestDerivePrivateInvariantFailures(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(in *PrivateInput)
		invariant string
	}{
		{"zero d", func(in *PrivateInput) { in.D = big.NewInt(0) }, InvPositive},
		{"missing q", func(in *PrivateInput) { in.Q = nil }, InvPositive},
		{"e equals one", func(in *PrivateInput) { in.E = big.NewInt(1) }, InvExponent},
		{"e at least n", func(in *PrivateInput) { in.E = big.NewInt(3235) }, InvExponent},
		{"even e", func(in *PrivateInput) { in.E = big.NewInt(16) }, InvOddE},
		{"n off by two", func(in *PrivateInput) { in.N = big.NewInt(3235) }, InvModulus},
		{"p equals q", func(in *PrivateInput) {
			in.P, in.Q, in.N = big.NewInt(61), big.NewInt(61), big.NewInt(3721)
		}, InvDistinct},
		{"composite p", func(in *PrivateInput) {
			in.P, in.N = big.NewInt(63), big.NewInt(63*53)
		}, InvPPrime},
		{"composite q", func(in *PrivateInput) {
			in.Q, in.N = big.NewInt(51), big.NewInt(61*51)
		}, InvQPrime},
		{"wrong d", func(in *PrivateInput) { in.D = big.NewInt(415) }, InvPrivateExp},
		{"wrong dp", func(in *PrivateInput) { in.Dp = big.NewInt(52) }, InvDp},
		{"wrong dq", func(in *PrivateInput) { in.Dq = big.NewInt(48) }, InvDq},
		{"wrong qinv", func(in *PrivateInput) { in.Qinv = big.NewInt(37) }, InvQinv},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := toyInput()
			tt.mutate(&in)
			_, _, err := Validator{}.DerivePrivate(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, keyerr.ErrInvalidKeyMaterial)
			assert.Equal(t, tt.invariant, keyerr.InvariantOf(err))
		})
	}
}

func TestDerivePrivateDetectsModifiedModulus(t *testing.T) {
	in := inputFrom(testKey(t))
	in.N = new(big.Int).Add(in.N, big.NewInt(2))

	_, _, err := Validator{}.DerivePrivate(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, keyerr.KindInvalidKeyMaterial, keyerr.KindOf(err))
	assert.Equal(t, InvModulus, keyerr.InvariantOf(err))
}

func TestDerivePrivateStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Validator{}.DerivePrivate(ctx, inputFrom(testKey(t)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, keyerr.KindUnknown, keyerr.KindOf(err))

	// nothing to wait on when primality is skipped
	_, _, err = Validator{SkipPrimality: true}.DerivePrivate(ctx, inputFrom(testKey(t)))
	assert.NoError(t, err)
}

func TestSkipPrimality(t *testing.T) {
	in := toyInput()
	in.P, in.N = big.NewInt(63), big.NewInt(63*53)

	_, _, err := Validator{SkipPrimality: true}.DerivePrivate(context.Background(), in)
	require.Error(t, err)
	// the composite p is only caught later, by the exponent check
	assert.NotEqual(t, InvPPrime, keyerr.InvariantOf(err))
}

func TestDerivePrivateDoesNotAliasInputs(t *testing.T) {
	in := toyInput()
	priv, _, err := Validator{}.DerivePrivate(context.Background(), in)
	require.NoError(t, err)

	in.N.SetInt64(1)
	assert.Equal(t, int64(3233), priv.N.Int64())
}

func TestDerivePublic(t *testing.T) {
	pub, err := DerivePublic(big.NewInt(3233), big.NewInt(17))
	require.NoError(t, err)
	assert.Equal(t, 12, pub.NBits)

	_, err = DerivePublic(big.NewInt(3233), big.NewInt(18))
	assert.Equal(t, InvOddE, keyerr.InvariantOf(err))

	_, err = DerivePublic(big.NewInt(3233), big.NewInt(3233))
	assert.Equal(t, InvExponent, keyerr.InvariantOf(err))

	_, err = DerivePublic(big.NewInt(0), big.NewInt(3))
	assert.Equal(t, InvPositive, keyerr.InvariantOf(err))
}

func TestDeriveIsDeterministic(t *testing.T) {
	k := testKey(t)
	a := Derive(k.Primes[0], k.Primes[1])
	b := Derive(k.Primes[0], k.Primes[1])
	assert.Equal(t, a, b)
}

func TestNumberFormatting(t *testing.T) {
	n := NewNumber(big.NewInt(65537))
	assert.Equal(t, "65537", n.Decimal)
	assert.Equal(t, "010001", n.Hex)
	assert.Equal(t, "01 00 01", n.HexPairs())

	n = NewNumber(big.NewInt(0xABCDEF))
	assert.Equal(t, "ABCDEF", n.Hex)
	assert.Equal(t, "AB CD EF", n.HexPairs())

	assert.Equal(t, Number{}, NewNumber(nil))
	assert.Equal(t, "", Number{}.HexPairs())
}

func TestParamsJSON(t *testing.T) {
	priv, derived, err := Validator{}.DerivePrivate(context.Background(), toyInput())
	require.NoError(t, err)

	raw, err := json.Marshal(priv)
	require.NoError(t, err)
	var fields map[string]Number
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Len(t, fields, 8)
	assert.Equal(t, "413", fields["d"].Decimal)
	assert.Equal(t, "0CA1", fields["n"].Hex)

	raw, err = json.Marshal(derived)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"key_size_bits":12`)

	raw, err = json.Marshal(priv.Public())
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":{"decimal":"3233","hex":"0CA1"},"e":{"decimal":"17","hex":"11"},"n_bits":12}`, string(raw))
}

func TestPrivateInvariantsOrder(t *testing.T) {
	inv := PrivateInvariants()
	assert.Len(t, inv, 11)
	assert.Equal(t, InvPositive, inv[0])
	assert.Equal(t, InvQinv, inv[len(inv)-1])
}
