package keygen

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/rsalab/internal/keycodec"
	"github.com/user/rsalab/internal/keyerr"
)

func TestGenerateRejectsSmallKeys(t *testing.T) {
	g := New(DefaultOptions())

	var events []Event
	_, err := g.Generate(context.Background(), 511, func(e Event) { events = append(events, e) })
	require.Error(t, err)
	assert.ErrorIs(t, err, keyerr.ErrKeyTooSmall)

	require.Len(t, events, 2)
	assert.Equal(t, Idle, events[0].State)
	assert.Equal(t, Failed, events[1].State)
	assert.Equal(t, err, events[1].Err)
}

func TestGenerateRejectsLargeKeys(t *testing.T) {
	g := New(DefaultOptions())

	var events []Event
	_, err := g.Generate(context.Background(), DefaultMaxBits+1, func(e Event) { events = append(events, e) })
	require.Error(t, err)
	assert.ErrorIs(t, err, keyerr.ErrUnsupportedKeyFormat)
	require.Len(t, events, 2)
	assert.Equal(t, Failed, events[1].State)

	assert.NoError(t, g.CheckBits(DefaultMaxBits))
	assert.ErrorIs(t, g.CheckBits(1<<17), keyerr.ErrUnsupportedKeyFormat)
}

func TestGenerateHonoursCallerDeadline(t *testing.T) {
	g := New(DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Generate(ctx, DefaultMaxBits, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, keyerr.ErrKeyGenerationTimedOut)
	assert.Contains(t, err.Error(), "caller's deadline")
	assert.Less(t, elapsed, 5*time.Second)
}

func TestGenerateMinimumSize(t *testing.T) {
	g := New(DefaultOptions())

	res, err := g.Generate(context.Background(), 512, nil)
	require.NoError(t, err)

	bits := res.Private.N.BitLen()
	assert.GreaterOrEqual(t, bits, 511)
	assert.LessOrEqual(t, bits, 512)
	assert.Equal(t, int64(65537), res.Private.E.Int64())
	assert.GreaterOrEqual(t, res.Attempts, 1)
}

func TestGenerate2048IsReadableByStdlib(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 2048-bit generation in short mode")
	}
	g := New(DefaultOptions())

	var (
		mu     sync.Mutex
		states []State
	)
	res, err := g.Generate(context.Background(), 2048, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, e.State)
	})
	require.NoError(t, err)
	assert.Equal(t, 2048, res.Derived.KeySizeBits)

	block, _ := pem.Decode(res.PrivatePEM)
	require.NotNil(t, block)
	assert.Equal(t, keycodec.LabelPrivateKey, block.Type)
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	key := parsed.(*rsa.PrivateKey)
	require.NoError(t, key.Validate())
	assert.Equal(t, 0, key.N.Cmp(res.Private.N))

	block, _ = pem.Decode(res.PublicPEM)
	require.NotNil(t, block)
	assert.Equal(t, keycodec.LabelPublicKey, block.Type)
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	require.NotEmpty(t, states)
	assert.Equal(t, Idle, states[0])
	assert.Contains(t, states, GeneratingPrimes)
	assert.Contains(t, states, ComputingParameters)
	assert.Equal(t, Done, states[len(states)-1])
}

func TestGeneratePKCS1Format(t *testing.T) {
	opts := DefaultOptions()
	opts.Format = keycodec.FormatPKCS1
	g := New(opts)

	res, err := g.Generate(context.Background(), 512, nil)
	require.NoError(t, err)

	block, _ := pem.Decode(res.PrivatePEM)
	require.NotNil(t, block)
	assert.Equal(t, keycodec.LabelRSAPrivateKey, block.Type)
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)
	assert.NoError(t, key.Validate())
}

func TestGenerateCancelled(t *testing.T) {
	g := New(DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, 1024, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, keyerr.KindUnknown, keyerr.KindOf(err))
}

func TestGenerateTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.Timeout = time.Nanosecond
	g := New(opts)

	_, err := g.Generate(context.Background(), 2048, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, keyerr.ErrKeyGenerationTimedOut)
}

func TestNewFillsDefaults(t *testing.T) {
	g := New(Options{})
	assert.Equal(t, DefaultMinBits, g.MinBits())
	assert.Equal(t, DefaultMaxBits, g.MaxBits())
	assert.Equal(t, DefaultPublicExponent, g.opts.PublicExponent)
	assert.Equal(t, DefaultMaxPairAttempts, g.opts.MaxPairAttempts)
	assert.Equal(t, DefaultTimeout, g.opts.Timeout)
	assert.Equal(t, keycodec.FormatPKCS8, g.opts.Format)
}

func TestStateText(t *testing.T) {
	assert.Equal(t, "generating_primes", GeneratingPrimes.String())
	b, err := Done.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "done", string(b))
	assert.Equal(t, []int{1024, 2048, 4096}, Presets())
}
