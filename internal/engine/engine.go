// Package engine is the command interface of the RSA key engine. Every
// surface (CLI, HTTP, validator) goes through it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/user/rsalab/internal/config"
	"github.com/user/rsalab/internal/keycodec"
	"github.com/user/rsalab/internal/keyerr"
	"github.com/user/rsalab/internal/keygen"
	"github.com/user/rsalab/internal/rsaparams"
	"github.com/user/rsalab/internal/security"
)

type Engine struct {
	keygen     *keygen.Generator
	codec      keycodec.Codec
	validator  rsaparams.Validator
	classifier *security.Classifier
	sem        *semaphore.Weighted
	limit      int
	log        *zap.Logger
}

// New creates an engine from cfg. A nil logger disables logging.
func New(cfg *config.Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	limit := cfg.MaxConcurrent()
	return &Engine{
		keygen:     keygen.New(cfg.KeygenOptions()),
		codec:      keycodec.PEMCodec{},
		validator:  rsaparams.Validator{Rounds: cfg.Engine.MillerRabinRounds},
		classifier: security.NewClassifier(cfg.Thresholds()),
		sem:        semaphore.NewWeighted(int64(limit)),
		limit:      limit,
		log:        log.Named("engine"),
	}
}

func (e *Engine) MinBits() int { return e.keygen.MinBits() }

// MaxBits is the largest modulus the engine generates or analyzes.
func (e *Engine) MaxBits() int { return e.keygen.MaxBits() }

// MaxConcurrent is the number of generations allowed to run at once.
func (e *Engine) MaxConcurrent() int { return e.limit }

func (e *Engine) Classifier() *security.Classifier { return e.classifier }

// GenerateRSAKey generates a bits-bit key pair.
func (e *Engine) GenerateRSAKey(ctx context.Context, bits int) (*KeyPair, error) {
	return e.GenerateRSAKeyObserved(ctx, bits, nil)
}

// GenerateRSAKeyObserved is GenerateRSAKey with generator state events
// delivered to observe.
func (e *Engine) GenerateRSAKeyObserved(ctx context.Context, bits int, observe keygen.Observer) (*KeyPair, error) {
	start := time.Now()
	pair, err := e.generate(ctx, bits, observe)
	e.logOutcome(CmdGenerateRSAKey, start, err, zap.Int("bits", bits))
	return pair, err
}

func (e *Engine) generate(ctx context.Context, bits int, observe keygen.Observer) (*KeyPair, error) {
	if err := e.keygen.CheckBits(bits); err != nil {
		return nil, err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	res, err := e.keygen.Generate(ctx, bits, observe)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		PublicKeyPEM:  string(res.PublicPEM),
		PrivateKeyPEM: string(res.PrivatePEM),
		Bits:          res.Derived.KeySizeBits,
	}, nil
}

// AnalyzeRSAKey decodes a PEM key and derives and checks all of its
// parameters.
func (e *Engine) AnalyzeRSAKey(ctx context.Context, key string) (*KeyAnalysis, error) {
	start := time.Now()
	a, err := e.analyze(ctx, key)
	fields := []zap.Field{}
	if a != nil {
		fields = append(fields, zap.String("key_type", string(a.KeyType)), zap.Int("bits", a.KeySize))
	}
	e.logOutcome(CmdAnalyzeRSAKey, start, err, fields...)
	return a, err
}

func (e *Engine) analyze(ctx context.Context, key string) (*KeyAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := e.codec.Decode([]byte(key))
	if err != nil {
		return nil, err
	}

	if raw.N != nil && raw.N.BitLen() > e.keygen.MaxBits() {
		return nil, keyerr.TooLarge(raw.N.BitLen(), e.keygen.MaxBits())
	}

	a := &KeyAnalysis{Encoding: raw.Encoding}
	if raw.Private {
		priv, derived, err := e.validator.DerivePrivate(ctx, rsaparams.PrivateInput{
			N: raw.N, E: raw.E, D: raw.D, P: raw.P, Q: raw.Q,
			Dp: raw.Dp, Dq: raw.Dq, Qinv: raw.Qinv,
		})
		if err != nil {
			return nil, err
		}
		a.KeyType = PrivateKey
		a.Private = priv
		a.Derived = derived
		a.Public = priv.Public()
	} else {
		pub, err := rsaparams.DerivePublic(raw.N, raw.E)
		if err != nil {
			return nil, err
		}
		a.KeyType = PublicKey
		a.Public = pub
	}

	a.KeySize = a.Public.NBits
	a.Security = e.classifier.Assess(a.KeySize, exponentValue(a.Public.E))
	a.Fingerprints, err = fingerprints(a.Public.N, a.Public.E)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint key: %w", err)
	}
	return a, nil
}

// logOutcome never receives key material, only sizes and error kinds.
func (e *Engine) logOutcome(cmd Command, start time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("command", string(cmd)),
		zap.Duration("duration", time.Since(start)),
	)
	if err != nil {
		e.log.Warn("command failed", append(fields,
			zap.String("error_kind", ErrorKind(err)),
			zap.String("invariant", keyerr.InvariantOf(err)),
		)...)
		return
	}
	e.log.Info("command completed", fields...)
}

// ErrorKind names err on the wire.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownCommand):
		return KindUnknownCommand
	case errors.Is(err, context.Canceled):
		return "Cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "DeadlineExceeded"
	}
	if k := keyerr.KindOf(err); k != keyerr.KindUnknown {
		return k.String()
	}
	return "Internal"
}
