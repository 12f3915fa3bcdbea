package prime

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/rsalab/internal/keyerr"
)

func mersenne(p uint) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), p)
	return m.Sub(m, big.NewInt(1))
}

func TestSmallPrimeTable(t *testing.T) {
	assert.Equal(t, uint64(2), smallPrimes[0])
	assert.Equal(t, uint64(1999), smallPrimes[len(smallPrimes)-1])
	assert.Len(t, smallPrimes, 303)
}

func TestIsProbablePrime(t *testing.T) {
	tests := []struct {
		name string
		n    *big.Int
		want bool
	}{
		{"zero", big.NewInt(0), false},
		{"one", big.NewInt(1), false},
		{"two", big.NewInt(2), true},
		{"small prime", big.NewInt(1999), true},
		{"small composite", big.NewInt(1001), false},
		{"carmichael 561", big.NewInt(561), false},
		{"carmichael 41041", big.NewInt(41041), false},
		{"M127", mersenne(127), true},
		{"M521", mersenne(521), true},
		{"2^128-1", mersenne(128), false},
		{"semiprime", new(big.Int).Mul(mersenne(127), mersenne(61)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsProbablePrime(context.Background(), tt.n, MinRounds, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMillerRabinRejectsCarmichael(t *testing.T) {
	// trial division would catch these; exercise the witness loop directly
	for _, c := range []int64{561, 1105, 1729, 2465, 8911} {
		ok, err := millerRabin(context.Background(), rand.Reader, big.NewInt(c), MinRounds)
		require.NoError(t, err)
		assert.False(t, ok, "%d is composite", c)
	}
}

func TestIsProbablePrimeStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := IsProbablePrime(ctx, mersenne(521), MinRounds, nil)
	assert.ErrorIs(t, err, context.Canceled)

	// values settled by the small prime table need no rounds
	ok, err := IsProbablePrime(ctx, big.NewInt(1999), MinRounds, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

// countingReader cancels its context after the given number of reads, so
// the test observes a cancellation between Miller-Rabin rounds.
type countingReader struct {
	reads  int
	after  int
	cancel context.CancelFunc
}

func (r *countingReader) Read(p []byte) (int, error) {
	r.reads++
	if r.reads == r.after {
		r.cancel()
	}
	return rand.Read(p)
}

func TestMillerRabinChecksContextBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &countingReader{after: 3, cancel: cancel}

	_, err := millerRabin(ctx, r, mersenne(521), MinRounds)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, r.reads, MinRounds)
}

func TestGenerate(t *testing.T) {
	g := NewGenerator()
	for _, bits := range []int{16, 17, 64, 255, 256} {
		p, err := g.Generate(context.Background(), bits)
		require.NoError(t, err)
		assert.Equal(t, bits, p.BitLen())
		assert.Equal(t, uint(1), p.Bit(bits-1))
		assert.Equal(t, uint(1), p.Bit(bits-2))
		assert.True(t, p.ProbablyPrime(20), "%s is not prime", p)
	}
}

func TestGenerateRejectsTinySizes(t *testing.T) {
	_, err := NewGenerator().Generate(context.Background(), 8)
	assert.Error(t, err)
}

func TestGenerateExhausted(t *testing.T) {
	// all-ones candidates are 2^64-1, which is divisible by 3
	ones := bytes.NewReader(bytes.Repeat([]byte{0xFF}, 1024))
	g := NewGenerator(WithRandom(ones), WithMaxAttempts(5))

	_, err := g.Generate(context.Background(), 64)
	assert.ErrorIs(t, err, keyerr.ErrPrimeGenerationExhausted)
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGenerator().Generate(ctx, 512)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGeneratePair(t *testing.T) {
	p, q, err := NewGenerator().GeneratePair(context.Background(), 128, 129)
	require.NoError(t, err)
	assert.Equal(t, 128, p.BitLen())
	assert.Equal(t, 129, q.BitLen())
	assert.NotEqual(t, 0, p.Cmp(q))
}

func TestOptions(t *testing.T) {
	g := NewGenerator(WithRounds(10), WithMaxAttempts(-1))
	assert.Equal(t, MinRounds, g.Rounds())
	assert.Equal(t, DefaultMaxAttempts, g.MaxAttempts())

	g = NewGenerator(WithRounds(64), WithMaxAttempts(20))
	assert.Equal(t, 64, g.Rounds())
	assert.Equal(t, 20, g.MaxAttempts())
}

func TestContextReaderStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := newContextReader(ctx, rand.Reader)

	buf := make([]byte, 4096)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	cancel()
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, context.Canceled)
}
