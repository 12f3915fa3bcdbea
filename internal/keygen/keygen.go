// Package keygen produces RSA key pairs from freshly generated primes.
package keygen

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/user/rsalab/internal/bigint"
	"github.com/user/rsalab/internal/keycodec"
	"github.com/user/rsalab/internal/keyerr"
	"github.com/user/rsalab/internal/prime"
	"github.com/user/rsalab/internal/rsaparams"
)

const (
	DefaultMinBits         = 512
	DefaultMaxBits         = 16384
	DefaultPublicExponent  = 65537
	DefaultMaxPairAttempts = 32
	DefaultTimeout         = 2 * time.Minute
)

// Presets are the key sizes offered to users; any size between MinBits and
// MaxBits works.
func Presets() []int {
	return []int{1024, 2048, 4096}
}

// State is a step of a single generation.
type State int

const (
	Idle State = iota
	GeneratingPrimes
	ComputingParameters
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case GeneratingPrimes:
		return "generating_primes"
	case ComputingParameters:
		return "computing_parameters"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is delivered to an Observer on every state transition.
type Event struct {
	State   State         `json:"state"`
	Bits    int           `json:"bits"`
	Attempt int           `json:"attempt,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Err     error         `json:"-"`
}

type Observer func(Event)

type Options struct {
	MinBits         int
	MaxBits         int
	PublicExponent  int
	MaxPairAttempts int
	Timeout         time.Duration
	Format          keycodec.PrivateFormat
	Primes          *prime.Generator
}

func DefaultOptions() Options {
	return Options{
		MinBits:         DefaultMinBits,
		MaxBits:         DefaultMaxBits,
		PublicExponent:  DefaultPublicExponent,
		MaxPairAttempts: DefaultMaxPairAttempts,
		Timeout:         DefaultTimeout,
		Format:          keycodec.FormatPKCS8,
	}
}

// Result is a verified key pair. Nothing in it is partial.
type Result struct {
	Private    *rsaparams.PrivateParams
	Derived    *rsaparams.DerivedParams
	PublicPEM  []byte
	PrivatePEM []byte
	Attempts   int
	Duration   time.Duration
}

type Generator struct {
	opts   Options
	primes *prime.Generator
	codec  keycodec.Codec
}

// New creates a generator, filling zero options with defaults.
func New(opts Options) *Generator {
	def := DefaultOptions()
	if opts.MinBits <= 0 {
		opts.MinBits = def.MinBits
	}
	if opts.MaxBits <= 0 {
		opts.MaxBits = def.MaxBits
	}
	if opts.PublicExponent <= 0 {
		opts.PublicExponent = def.PublicExponent
	}
	if opts.MaxPairAttempts <= 0 {
		opts.MaxPairAttempts = def.MaxPairAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Format == "" {
		opts.Format = def.Format
	}
	primes := opts.Primes
	if primes == nil {
		primes = prime.NewGenerator()
	}
	return &Generator{opts: opts, primes: primes, codec: keycodec.PEMCodec{}}
}

func (g *Generator) MinBits() int { return g.opts.MinBits }
func (g *Generator) MaxBits() int { return g.opts.MaxBits }

// CheckBits reports whether bits lies within the generator's size range.
func (g *Generator) CheckBits(bits int) error {
	if bits < g.opts.MinBits {
		return keyerr.TooSmall(bits, g.opts.MinBits)
	}
	if bits > g.opts.MaxBits {
		return keyerr.TooLarge(bits, g.opts.MaxBits)
	}
	return nil
}

// Generate creates a bits-bit key pair. A nil observer is allowed.
func (g *Generator) Generate(ctx context.Context, bits int, observe Observer) (*Result, error) {
	start := time.Now()
	notify := func(s State, attempt int, err error) {
		if observe != nil {
			observe(Event{State: s, Bits: bits, Attempt: attempt, Elapsed: time.Since(start), Err: err})
		}
	}
	notify(Idle, 0, nil)

	res, err := g.generate(ctx, bits, notify)
	if err != nil {
		err = g.classify(ctx, err)
		notify(Failed, 0, err)
		return nil, err
	}
	res.Duration = time.Since(start)
	notify(Done, res.Attempts, nil)
	return res, nil
}

func (g *Generator) generate(parent context.Context, bits int, notify func(State, int, error)) (*Result, error) {
	if err := g.CheckBits(bits); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(parent, g.opts.Timeout)
	defer cancel()

	e := big.NewInt(int64(g.opts.PublicExponent))
	pBits, qBits := bits/2, bits-bits/2

	for attempt := 1; attempt <= g.opts.MaxPairAttempts; attempt++ {
		notify(GeneratingPrimes, attempt, nil)

		p, q, err := g.primes.GeneratePair(ctx, pBits, qBits)
		if err != nil {
			return nil, err
		}
		if p.Cmp(q) == 0 {
			continue
		}
		if !coprimeToTotient(e, p, q) {
			continue
		}

		notify(ComputingParameters, attempt, nil)
		res, err := g.assemble(ctx, p, q, e)
		if err != nil {
			return nil, err
		}
		res.Attempts = attempt
		return res, nil
	}

	return nil, keyerr.TimedOut("no usable prime pair after %d attempts", g.opts.MaxPairAttempts)
}

func coprimeToTotient(e, p, q *big.Int) bool {
	one := bigint.One()
	return bigint.GCD(e, bigint.Sub(p, one)).Cmp(one) == 0 &&
		bigint.GCD(e, bigint.Sub(q, one)).Cmp(one) == 0
}

// assemble derives d and the CRT values, verifies them and encodes the pair.
func (g *Generator) assemble(ctx context.Context, p, q, e *big.Int) (*Result, error) {
	// p is conventionally the larger prime
	if p.Cmp(q) < 0 {
		p, q = q, p
	}

	n := bigint.Mul(p, q)
	lambda := rsaparams.Derive(p, q).LambdaN
	d, err := bigint.ModInverse(e, lambda)
	if err != nil {
		return nil, fmt.Errorf("failed to compute private exponent: %w", err)
	}

	priv, derived, err := rsaparams.Validator{SkipPrimality: true}.DerivePrivate(ctx, rsaparams.PrivateInput{
		N: n, E: e, D: d, P: p, Q: q,
	})
	if err != nil {
		return nil, fmt.Errorf("generated key failed verification: %w", err)
	}

	raw := &keycodec.RawKey{
		Private: true,
		N:       priv.N, E: priv.E, D: priv.D,
		P: priv.P, Q: priv.Q,
		Dp: priv.Dp, Dq: priv.Dq, Qinv: priv.Qinv,
	}
	privPEM, err := g.codec.EncodePrivate(raw, g.opts.Format)
	if err != nil {
		return nil, err
	}
	pubPEM, err := g.codec.EncodePublic(priv.N, priv.E)
	if err != nil {
		return nil, err
	}

	return &Result{
		Private:    priv,
		Derived:    derived,
		PublicPEM:  pubPEM,
		PrivatePEM: privPEM,
	}, nil
}

// classify maps deadline expiry to KeyGenerationTimedOut and leaves
// explicit cancellation as context.Canceled.
func (g *Generator) classify(parent context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled) && parent.Err() != nil:
		return parent.Err()
	case errors.Is(parent.Err(), context.DeadlineExceeded):
		return keyerr.TimedOut("key generation exceeded the caller's deadline")
	case errors.Is(err, context.DeadlineExceeded):
		return keyerr.TimedOut("key generation exceeded %s", g.opts.Timeout)
	}
	return err
}
