package benchmark

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/pkg/sysinfo"
)

const sampleInterval = 100 * time.Millisecond

type Runner struct {
	config   Config
	gen      KeyGenerator
	progress chan<- ProgressUpdate
}

func NewRunner(config Config, gen KeyGenerator) *Runner {
	return &Runner{config: config, gen: gen}
}

// SetProgressChannel makes the runner publish progress on ch. Sends never
// block; updates are dropped when ch is full.
func (r *Runner) SetProgressChannel(ch chan<- ProgressUpdate) {
	r.progress = ch
}

func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	if err := r.config.Validate(r.gen.MinBits(), r.gen.MaxBits()); err != nil {
		return nil, err
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.config.Timeout)*time.Second)
		defer cancel()
	}

	var results []Result
	seen := make(map[int]bool)

	for _, size := range r.config.KeySizes {
		if seen[size] {
			if r.config.Verbose {
				fmt.Printf("Skipping duplicate key size %d\n", size)
			}
			continue
		}
		seen[size] = true

		if err := ctx.Err(); err != nil {
			return results, err
		}

		result := r.runSingleBenchmark(ctx, size)
		results = append(results, result)
	}

	return results, ctx.Err()
}

func (r *Runner) runSingleBenchmark(ctx context.Context, keySize int) Result {
	result := Result{
		KeySize:     keySize,
		Iterations:  r.config.Iterations,
		Parallel:    r.config.Parallel,
		ErrorKinds:  make(map[string]int),
		CompletedAt: time.Now(),
	}

	totalIterations := r.config.Iterations * r.config.Parallel
	var bar *progressbar.ProgressBar

	if r.config.ShowProgress {
		bar = progressbar.NewOptions(totalIterations,
			progressbar.OptionSetDescription(fmt.Sprintf("[RSA-%d]", keySize)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionOnCompletion(func() {
				fmt.Println()
			}),
		)
	}

	before := sysinfo.Sample(ctx, sampleInterval)

	var timings []time.Duration
	var failures int
	var completed int
	var mu sync.Mutex

	startTime := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < r.config.Parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < r.config.Iterations; j++ {
				select {
				case <-ctx.Done():
					return
				default:
				}

				iterStart := time.Now()
				_, err := r.gen.GenerateRSAKey(ctx, keySize)
				elapsed := time.Since(iterStart)

				mu.Lock()
				if err != nil {
					failures++
					result.ErrorKinds[engine.ErrorKind(err)]++
				} else {
					timings = append(timings, elapsed)
				}
				completed++
				update := ProgressUpdate{
					Current:    completed,
					Total:      totalIterations,
					Percentage: float64(completed) / float64(totalIterations) * 100,
					Rate:       float64(completed) / time.Since(startTime).Seconds(),
					KeySize:    keySize,
				}
				mu.Unlock()

				if r.progress != nil {
					select {
					case r.progress <- update:
					default:
					}
				}
				if bar != nil {
					bar.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	result.TotalTime = time.Since(startTime)
	// iterations skipped by cancellation count as errors
	result.Errors = totalIterations - len(timings)
	if skipped := result.Errors - failures; skipped > 0 {
		result.ErrorKinds["Cancelled"] += skipped
	}
	if len(result.ErrorKinds) == 0 {
		result.ErrorKinds = nil
	}

	// Calculate statistics
	if len(timings) > 0 {
		result.AverageTime = calculateAverage(timings)
		result.MinTime = calculateMin(timings)
		result.MaxTime = calculateMax(timings)
		result.StdDev = calculateStdDev(timings, result.AverageTime)
		result.KeysPerSecond = float64(len(timings)) / result.TotalTime.Seconds()
	}

	after := sysinfo.Sample(context.Background(), sampleInterval)
	result.CPUUsage, result.MemoryUsed = sysinfo.Delta(before, after)

	// Force garbage collection to get more accurate memory readings
	runtime.GC()

	return result
}

func calculateAverage(timings []time.Duration) time.Duration {
	if len(timings) == 0 {
		return 0
	}

	var sum time.Duration
	for _, t := range timings {
		sum += t
	}
	return sum / time.Duration(len(timings))
}

func calculateMin(timings []time.Duration) time.Duration {
	if len(timings) == 0 {
		return 0
	}

	min := timings[0]
	for _, t := range timings[1:] {
		if t < min {
			min = t
		}
	}
	return min
}

func calculateMax(timings []time.Duration) time.Duration {
	if len(timings) == 0 {
		return 0
	}

	max := timings[0]
	for _, t := range timings[1:] {
		if t > max {
			max = t
		}
	}
	return max
}

func calculateStdDev(timings []time.Duration, avg time.Duration) time.Duration {
	if len(timings) <= 1 {
		return 0
	}

	var sum float64
	avgFloat := float64(avg)

	for _, t := range timings {
		diff := float64(t) - avgFloat
		sum += diff * diff
	}

	variance := sum / float64(len(timings)-1)
	stdDev := math.Sqrt(variance)

	return time.Duration(stdDev)
}
