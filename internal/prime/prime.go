// Package prime generates probable primes for RSA key material.
package prime

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/sync/errgroup"

	"github.com/user/rsalab/internal/bigint"
	"github.com/user/rsalab/internal/keyerr"
)

const (
	// MinRounds bounds the Miller-Rabin error probability by 4^-40 = 2^-80
	// for adversarial input; for random candidates the bound is far below 2^-128.
	MinRounds = 40

	DefaultMaxAttempts = 10000

	// MinBits is the smallest prime size the generator draws.
	MinBits = 16

	smallPrimeLimit = 2000
)

var (
	one   = big.NewInt(1)
	two   = big.NewInt(2)
	three = big.NewInt(3)
)

// smallPrimes holds every prime below smallPrimeLimit.
var smallPrimes = sieve(smallPrimeLimit)

func sieve(limit int) []uint64 {
	composite := make([]bool, limit)
	var primes []uint64
	for i := 2; i < limit; i++ {
		if composite[i] {
			continue
		}
		primes = append(primes, uint64(i))
		for j := i * i; j < limit; j += i {
			composite[j] = true
		}
	}
	return primes
}

// Generator draws random probable primes. A zero Generator is not usable;
// build one with NewGenerator.
type Generator struct {
	rounds      int
	maxAttempts int
	random      io.Reader
}

type Option func(*Generator)

// WithRounds sets the Miller-Rabin round count. Values below MinRounds are
// raised to MinRounds.
func WithRounds(rounds int) Option {
	return func(g *Generator) {
		if rounds > MinRounds {
			g.rounds = rounds
		}
	}
}

// WithMaxAttempts sets how many candidates are drawn before giving up.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithRandom replaces crypto/rand.Reader. Only tests should use this.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.random = r
		}
	}
}

func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rounds:      MinRounds,
		maxAttempts: DefaultMaxAttempts,
		random:      rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Rounds() int      { return g.rounds }
func (g *Generator) MaxAttempts() int { return g.maxAttempts }

// Generate returns a probable prime of exactly bits bits. The two top bits of
// every candidate are set, so the product of two such primes has exactly the
// sum of their bit lengths.
func (g *Generator) Generate(ctx context.Context, bits int) (*big.Int, error) {
	if bits < MinBits {
		return nil, fmt.Errorf("prime size %d is below the %d-bit minimum", bits, MinBits)
	}

	reader := newContextReader(ctx, g.random)
	buf := make([]byte, (bits+7)/8)

	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidate, err := drawCandidate(reader, buf, bits)
		if err != nil {
			return nil, err
		}

		if !passesTrialDivision(candidate) {
			continue
		}

		ok, err := millerRabin(ctx, reader, candidate, g.rounds)
		if err != nil {
			return nil, err
		}
		if ok {
			return candidate, nil
		}
	}

	return nil, keyerr.Exhausted(bits, g.maxAttempts)
}

// GeneratePair draws two primes concurrently. If either search fails the
// other is cancelled and its candidates are discarded.
func (g *Generator) GeneratePair(ctx context.Context, pBits, qBits int) (p, q *big.Int, err error) {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var genErr error
		p, genErr = g.Generate(egCtx, pBits)
		return genErr
	})
	eg.Go(func() error {
		var genErr error
		q, genErr = g.Generate(egCtx, qBits)
		return genErr
	})

	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return p, q, nil
}

// drawCandidate fills buf with fresh randomness and shapes it into an odd
// bits-bit integer with its two most significant bits set.
func drawCandidate(r io.Reader, buf []byte, bits int) (*big.Int, error) {
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	excess := uint(len(buf)*8 - bits)
	buf[0] &= byte(0xFF >> excess)

	top := uint(7 - excess)
	buf[0] |= 1 << top
	if top > 0 {
		buf[0] |= 1 << (top - 1)
	} else {
		buf[1] |= 0x80
	}
	buf[len(buf)-1] |= 1

	return new(big.Int).SetBytes(buf), nil
}

func passesTrialDivision(n *big.Int) bool {
	m := new(big.Int)
	sp := new(big.Int)
	for _, p := range smallPrimes {
		sp.SetUint64(p)
		if m.Mod(n, sp).Sign() == 0 {
			return n.Cmp(sp) == 0
		}
	}
	return true
}

// IsProbablePrime runs trial division followed by the given number of
// Miller-Rabin rounds with bases drawn from random (crypto/rand if nil).
// ctx is checked between rounds.
func IsProbablePrime(ctx context.Context, n *big.Int, rounds int, random io.Reader) (bool, error) {
	if n.Cmp(two) < 0 {
		return false, nil
	}
	if n.IsUint64() && n.Uint64() < smallPrimeLimit {
		v := n.Uint64()
		for _, p := range smallPrimes {
			if p == v {
				return true, nil
			}
		}
		return false, nil
	}
	if !passesTrialDivision(n) {
		return false, nil
	}
	if random == nil {
		random = rand.Reader
	}
	return millerRabin(ctx, random, n, rounds)
}

// millerRabin expects an odd n greater than smallPrimeLimit.
func millerRabin(ctx context.Context, random io.Reader, n *big.Int, rounds int) (bool, error) {
	nMinus1 := bigint.Sub(n, one)

	d := new(big.Int).Set(nMinus1)
	s := 0
	for d.Bit(0) == 0 {
		d.Rsh(d, 1)
		s++
	}

	// bases are drawn uniformly from [2, n-2]
	baseRange := bigint.Sub(n, three)
	sq := new(big.Int)

	for i := 0; i < rounds; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		a, err := rand.Int(random, baseRange)
		if err != nil {
			return false, err
		}
		a.Add(a, two)

		x := bigint.ModPow(a, d, n)
		if x.Cmp(one) == 0 || x.Cmp(nMinus1) == 0 {
			continue
		}

		witness := true
		for r := 1; r < s; r++ {
			sq.Mul(x, x)
			x.Mod(sq, n)
			if x.Cmp(nMinus1) == 0 {
				witness = false
				break
			}
			if x.Cmp(one) == 0 {
				break
			}
		}
		if witness {
			return false, nil
		}
	}
	return true, nil
}
