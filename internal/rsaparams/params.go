// Package rsaparams derives the full RSA parameter set from raw key fields
// and checks the mathematical relationships between them. Supplied key
// material is checked, never repaired; only absent CRT values are computed.
package rsaparams

import (
	"context"
	"encoding/json"
	"io"
	"math/big"

	"github.com/user/rsalab/internal/bigint"
	"github.com/user/rsalab/internal/keyerr"
	"github.com/user/rsalab/internal/prime"
)

// Invariant names reported in InvalidKeyMaterial errors.
const (
	InvPositive   = "n, e, d, p, q > 0"
	InvExponent   = "1 < e < n"
	InvOddE       = "e is odd"
	InvModulus    = "n == p*q"
	InvDistinct   = "p != q"
	InvPPrime     = "p is prime"
	InvQPrime     = "q is prime"
	InvPrivateExp = "e*d == 1 mod lambda(n)"
	InvDp         = "dp == d mod (p-1)"
	InvDq         = "dq == d mod (q-1)"
	InvQinv       = "qinv == q^-1 mod p"
)

// PrivateInvariants lists the checks of DerivePrivate in the order they run.
func PrivateInvariants() []string {
	return []string{
		InvPositive, InvExponent, InvOddE, InvModulus, InvDistinct,
		InvPPrime, InvQPrime, InvPrivateExp, InvDp, InvDq, InvQinv,
	}
}

type PublicParams struct {
	N     *big.Int
	E     *big.Int
	NBits int
}

func (p *PublicParams) Fields() []NamedNumber {
	return []NamedNumber{
		{"n", NewNumber(p.N)},
		{"e", NewNumber(p.E)},
	}
}

func (p *PublicParams) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		N     Number `json:"n"`
		E     Number `json:"e"`
		NBits int    `json:"n_bits"`
	}{NewNumber(p.N), NewNumber(p.E), p.NBits})
}

type PrivateParams struct {
	N, E, D *big.Int
	P, Q    *big.Int
	Dp, Dq  *big.Int
	Qinv    *big.Int
}

func (p *PrivateParams) Public() *PublicParams {
	return &PublicParams{N: p.N, E: p.E, NBits: p.N.BitLen()}
}

func (p *PrivateParams) Fields() []NamedNumber {
	return []NamedNumber{
		{"n", NewNumber(p.N)},
		{"e", NewNumber(p.E)},
		{"d", NewNumber(p.D)},
		{"p", NewNumber(p.P)},
		{"q", NewNumber(p.Q)},
		{"dp", NewNumber(p.Dp)},
		{"dq", NewNumber(p.Dq)},
		{"qinv", NewNumber(p.Qinv)},
	}
}

func (p *PrivateParams) MarshalJSON() ([]byte, error) {
	out := make(map[string]Number, 8)
	for _, f := range p.Fields() {
		out[f.Name] = f.Value
	}
	return json.Marshal(out)
}

// DerivedParams is a pure function of p and q.
type DerivedParams struct {
	PhiN         *big.Int
	LambdaN      *big.Int
	PMinus1      *big.Int
	QMinus1      *big.Int
	KeySizeBits  int
	KeySizeBytes int
}

func (d *DerivedParams) Fields() []NamedNumber {
	return []NamedNumber{
		{"phi_n", NewNumber(d.PhiN)},
		{"lambda_n", NewNumber(d.LambdaN)},
		{"p_minus_1", NewNumber(d.PMinus1)},
		{"q_minus_1", NewNumber(d.QMinus1)},
	}
}

func (d *DerivedParams) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PhiN         Number `json:"phi_n"`
		LambdaN      Number `json:"lambda_n"`
		PMinus1      Number `json:"p_minus_1"`
		QMinus1      Number `json:"q_minus_1"`
		KeySizeBits  int    `json:"key_size_bits"`
		KeySizeBytes int    `json:"key_size_bytes"`
	}{
		NewNumber(d.PhiN), NewNumber(d.LambdaN),
		NewNumber(d.PMinus1), NewNumber(d.QMinus1),
		d.KeySizeBits, d.KeySizeBytes,
	})
}

// Derive computes the totients and sizes for the primes p and q.
func Derive(p, q *big.Int) *DerivedParams {
	pm1 := bigint.Sub(p, bigint.One())
	qm1 := bigint.Sub(q, bigint.One())
	bits := bigint.Mul(p, q).BitLen()
	return &DerivedParams{
		PhiN:         bigint.Mul(pm1, qm1),
		LambdaN:      bigint.LCM(pm1, qm1),
		PMinus1:      pm1,
		QMinus1:      qm1,
		KeySizeBits:  bits,
		KeySizeBytes: (bits + 7) / 8,
	}
}

// DerivePublic validates a public key's n and e.
func DerivePublic(n, e *big.Int) (*PublicParams, error) {
	if n == nil || e == nil || n.Sign() <= 0 || e.Sign() <= 0 {
		return nil, keyerr.InvalidMaterial(InvPositive)
	}
	if err := checkExponent(n, e); err != nil {
		return nil, err
	}
	return &PublicParams{
		N:     bigint.Clone(n),
		E:     bigint.Clone(e),
		NBits: n.BitLen(),
	}, nil
}

func checkExponent(n, e *big.Int) error {
	if e.Cmp(bigint.One()) <= 0 || e.Cmp(n) >= 0 {
		return keyerr.InvalidMaterial(InvExponent)
	}
	if e.Bit(0) == 0 {
		return keyerr.InvalidMaterial(InvOddE)
	}
	return nil
}

// PrivateInput carries raw private key fields. Dp, Dq and Qinv may be nil,
// in which case they are computed.
type PrivateInput struct {
	N, E, D, P, Q *big.Int
	Dp, Dq, Qinv  *big.Int
}

// Validator checks private key material.
type Validator struct {
	// Rounds of Miller-Rabin for p and q; values <= 0 mean prime.MinRounds.
	Rounds int
	// SkipPrimality is for callers that produced p and q themselves.
	SkipPrimality bool
	// Random supplies Miller-Rabin bases; nil means crypto/rand.
	Random io.Reader
}

// DerivePrivate recomputes and validates every private parameter, reporting
// the first invariant that fails. The primality checks stop with ctx.Err()
// once ctx is done.
func (v Validator) DerivePrivate(ctx context.Context, in PrivateInput) (*PrivateParams, *DerivedParams, error) {
	for _, x := range []*big.Int{in.N, in.E, in.D, in.P, in.Q} {
		if x == nil || x.Sign() <= 0 {
			return nil, nil, keyerr.InvalidMaterial(InvPositive)
		}
	}

	n, e, d, p, q := in.N, in.E, in.D, in.P, in.Q

	if err := checkExponent(n, e); err != nil {
		return nil, nil, err
	}
	if bigint.Mul(p, q).Cmp(n) != 0 {
		return nil, nil, keyerr.InvalidMaterial(InvModulus)
	}
	if p.Cmp(q) == 0 {
		return nil, nil, keyerr.InvalidMaterial(InvDistinct)
	}
	if !v.SkipPrimality {
		if err := v.checkPrime(ctx, p, InvPPrime); err != nil {
			return nil, nil, err
		}
		if err := v.checkPrime(ctx, q, InvQPrime); err != nil {
			return nil, nil, err
		}
	}

	derived := Derive(p, q)
	if bigint.Mod(bigint.Mul(d, e), derived.LambdaN).Cmp(bigint.One()) != 0 {
		return nil, nil, keyerr.InvalidMaterial(InvPrivateExp)
	}

	dp := bigint.Mod(d, derived.PMinus1)
	dq := bigint.Mod(d, derived.QMinus1)
	qinv, err := bigint.ModInverse(q, p)
	if err != nil {
		return nil, nil, keyerr.InvalidMaterial(InvQinv)
	}

	if in.Dp != nil && in.Dp.Cmp(dp) != 0 {
		return nil, nil, keyerr.InvalidMaterial(InvDp)
	}
	if in.Dq != nil && in.Dq.Cmp(dq) != 0 {
		return nil, nil, keyerr.InvalidMaterial(InvDq)
	}
	if in.Qinv != nil && in.Qinv.Cmp(qinv) != 0 {
		return nil, nil, keyerr.InvalidMaterial(InvQinv)
	}

	return &PrivateParams{
		N:    bigint.Clone(n),
		E:    bigint.Clone(e),
		D:    bigint.Clone(d),
		P:    bigint.Clone(p),
		Q:    bigint.Clone(q),
		Dp:   dp,
		Dq:   dq,
		Qinv: qinv,
	}, derived, nil
}

func (v Validator) checkPrime(ctx context.Context, x *big.Int, invariant string) error {
	rounds := v.Rounds
	if rounds <= 0 {
		rounds = prime.MinRounds
	}
	ok, err := prime.IsProbablePrime(ctx, x, rounds, v.Random)
	if err != nil {
		return err
	}
	if !ok {
		return keyerr.InvalidMaterial(invariant)
	}
	return nil
}
