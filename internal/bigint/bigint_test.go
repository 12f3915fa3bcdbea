package bigint

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/rsalab/internal/keyerr"
)

func TestModPowMatchesExp(t *testing.T) {
	limit := new(big.Int).Lsh(big.NewInt(1), 512)
	for i := 0; i < 20; i++ {
		base, err := rand.Int(rand.Reader, limit)
		require.NoError(t, err)
		exp, err := rand.Int(rand.Reader, limit)
		require.NoError(t, err)
		mod, err := rand.Int(rand.Reader, limit)
		require.NoError(t, err)
		mod.Add(mod, big.NewInt(2))

		want := new(big.Int).Exp(base, exp, mod)
		assert.Equal(t, 0, want.Cmp(ModPow(base, exp, mod)), "iteration %d", i)
	}
}

func TestModPowEdgeCases(t *testing.T) {
	tests := []struct {
		base, exp, mod int64
		want           int64
	}{
		{4, 13, 497, 445},
		{2, 0, 7, 1},
		{0, 5, 7, 0},
		{5, 3, 1, 0},
		{-3, 3, 7, 1}, // (-3)^3 = -27 ≡ 1 mod 7
	}
	for _, tt := range tests {
		got := ModPow(big.NewInt(tt.base), big.NewInt(tt.exp), big.NewInt(tt.mod))
		assert.Equal(t, tt.want, got.Int64(), "%d^%d mod %d", tt.base, tt.exp, tt.mod)
	}

	assert.Panics(t, func() { ModPow(big.NewInt(2), big.NewInt(3), big.NewInt(0)) })
	assert.Panics(t, func() { ModPow(big.NewInt(2), big.NewInt(-1), big.NewInt(5)) })
}

func TestModPowDoesNotAlias(t *testing.T) {
	base := big.NewInt(3)
	exp := big.NewInt(5)
	mod := big.NewInt(7)

	got := ModPow(base, exp, mod)
	assert.Equal(t, int64(3), base.Int64())
	assert.Equal(t, int64(5), exp.Int64())
	assert.Equal(t, int64(7), mod.Int64())
	assert.NotSame(t, base, got)
}

func TestModInverse(t *testing.T) {
	inv, err := ModInverse(big.NewInt(3), big.NewInt(11))
	require.NoError(t, err)
	assert.Equal(t, int64(4), inv.Int64())

	inv, err = ModInverse(big.NewInt(-3), big.NewInt(11))
	require.NoError(t, err)
	assert.Equal(t, int64(7), inv.Int64())

	e := big.NewInt(65537)
	phi, _ := new(big.Int).SetString("3233", 10)
	inv, err = ModInverse(e, phi)
	require.NoError(t, err)
	check := new(big.Int).Mul(inv, e)
	assert.Equal(t, int64(1), check.Mod(check, phi).Int64())
}

func TestModInverseFailures(t *testing.T) {
	_, err := ModInverse(big.NewInt(2), big.NewInt(4))
	assert.ErrorIs(t, err, keyerr.ErrNoInverseExists)

	_, err = ModInverse(big.NewInt(0), big.NewInt(9))
	assert.ErrorIs(t, err, keyerr.ErrNoInverseExists)

	_, err = ModInverse(big.NewInt(3), big.NewInt(1))
	assert.ErrorIs(t, err, keyerr.ErrNoInverseExists)
}

func TestGCDAndLCM(t *testing.T) {
	assert.Equal(t, int64(6), GCD(big.NewInt(54), big.NewInt(24)).Int64())
	assert.Equal(t, int64(6), GCD(big.NewInt(-54), big.NewInt(24)).Int64())
	assert.Equal(t, int64(216), LCM(big.NewInt(54), big.NewInt(24)).Int64())
	assert.Equal(t, int64(0), LCM(big.NewInt(0), big.NewInt(24)).Int64())
}

func TestDivMod(t *testing.T) {
	q, r, err := DivMod(big.NewInt(-7), big.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(-3), q.Int64())
	assert.Equal(t, int64(2), r.Int64())

	_, _, err = DivMod(big.NewInt(1), big.NewInt(0))
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestArithmetic(t *testing.T) {
	a, b := big.NewInt(12), big.NewInt(5)
	assert.Equal(t, int64(17), Add(a, b).Int64())
	assert.Equal(t, int64(7), Sub(a, b).Int64())
	assert.Equal(t, int64(60), Mul(a, b).Int64())
	assert.Equal(t, 4, BitLength(a))
	assert.True(t, IsZero(new(big.Int)))
	assert.Nil(t, Clone(nil))
	assert.Equal(t, int64(12), a.Int64())
}
