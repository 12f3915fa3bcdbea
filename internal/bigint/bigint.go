// Package bigint provides the arbitrary-precision arithmetic used by the key
// engine. Every function allocates its result; inputs are never modified and
// results never alias inputs.
package bigint

import (
	"errors"
	"math/big"

	"github.com/user/rsalab/internal/keyerr"
)

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
)

var ErrDivisionByZero = errors.New("bigint: division by zero")

// One returns a fresh 1.
func One() *big.Int { return big.NewInt(1) }

func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

func Mul(a, b *big.Int) *big.Int {
	return new(big.Int).Mul(a, b)
}

// DivMod performs Euclidean division: a = q*m + r with 0 <= r < |m|.
func DivMod(a, m *big.Int) (q, r *big.Int, err error) {
	if m.Sign() == 0 {
		return nil, nil, ErrDivisionByZero
	}
	q, r = new(big.Int), new(big.Int)
	q.DivMod(a, m, r)
	return q, r, nil
}

// Mod returns a mod m in [0, |m|). It panics if m is zero.
func Mod(a, m *big.Int) *big.Int {
	return new(big.Int).Mod(a, m)
}

func GCD(a, b *big.Int) *big.Int {
	x := new(big.Int).Abs(a)
	y := new(big.Int).Abs(b)
	return new(big.Int).GCD(nil, nil, x, y)
}

// LCM returns |a*b| / gcd(a, b), or 0 if either operand is 0.
func LCM(a, b *big.Int) *big.Int {
	if a.Sign() == 0 || b.Sign() == 0 {
		return new(big.Int)
	}
	g := GCD(a, b)
	l := new(big.Int).Quo(a, g)
	l.Mul(l, b)
	return l.Abs(l)
}

func BitLength(a *big.Int) int {
	return a.BitLen()
}

// ModInverse returns x with a*x ≡ 1 (mod m), computed with the extended
// Euclidean algorithm.
func ModInverse(a, m *big.Int) (*big.Int, error) {
	if m.Cmp(one) <= 0 {
		return nil, keyerr.NoInverse("modulus must be greater than 1")
	}

	oldR := new(big.Int).Mod(a, m)
	r := new(big.Int).Set(m)
	oldS := big.NewInt(1)
	s := big.NewInt(0)

	q := new(big.Int)
	tmp := new(big.Int)
	for r.Sign() != 0 {
		q.Quo(oldR, r)

		tmp.Mul(q, r)
		tmp.Sub(oldR, tmp)
		oldR.Set(r)
		r.Set(tmp)

		tmp.Mul(q, s)
		tmp.Sub(oldS, tmp)
		oldS.Set(s)
		s.Set(tmp)
	}

	if oldR.Cmp(one) != 0 {
		return nil, keyerr.NoInverse("gcd(a, m) = %s", oldR.String())
	}
	return oldS.Mod(oldS, m), nil
}

// ModPow returns base^exp mod m using a Montgomery ladder. The ladder runs
// over max(bitlen(exp), bitlen(m)) bits and performs one multiplication and
// one squaring per bit whatever its value; the bit only selects register
// indices. It panics if m <= 0 or exp < 0.
func ModPow(base, exp, m *big.Int) *big.Int {
	if m.Sign() <= 0 {
		panic("bigint: ModPow with non-positive modulus")
	}
	if exp.Sign() < 0 {
		panic("bigint: ModPow with negative exponent")
	}
	if m.Cmp(one) == 0 {
		return new(big.Int)
	}

	width := exp.BitLen()
	if mb := m.BitLen(); mb > width {
		width = mb
	}

	regs := [2]*big.Int{
		big.NewInt(1),
		new(big.Int).Mod(base, m),
	}
	prod := new(big.Int)
	for i := width - 1; i >= 0; i-- {
		b := exp.Bit(i)

		prod.Mul(regs[0], regs[1])
		regs[1-b].Mod(prod, m)

		prod.Mul(regs[b], regs[b])
		regs[b].Mod(prod, m)
	}
	return regs[0]
}

// IsZero reports whether a == 0.
func IsZero(a *big.Int) bool {
	return a.Cmp(zero) == 0
}

// Clone returns a copy of a, or nil for nil.
func Clone(a *big.Int) *big.Int {
	if a == nil {
		return nil
	}
	return new(big.Int).Set(a)
}
