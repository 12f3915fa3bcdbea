package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/pkg/sysinfo"
)

type CSVFormatter struct{}

func (c *CSVFormatter) Format(w io.Writer, data Data) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	header := []string{
		"Timestamp",
		"KeySize",
		"Iterations",
		"Parallel",
		"TotalTime(ms)",
		"AverageTime(ms)",
		"MinTime(ms)",
		"MaxTime(ms)",
		"StdDev(ms)",
		"KeysPerSecond",
		"CPUUsage(%)",
		"MemoryUsed(MB)",
		"Errors",
		"OS",
		"Architecture",
		"CPUModel",
		"CPUCores",
		"TotalMemory(GB)",
	}

	if err := writer.Write(header); err != nil {
		return err
	}

	host := data.SystemInfo
	if host == nil {
		host = &sysinfo.SystemInfo{}
	}

	for _, result := range data.Results {
		row := []string{
			result.CompletedAt.Format(time.RFC3339),
			fmt.Sprintf("%d", result.KeySize),
			fmt.Sprintf("%d", result.Iterations),
			fmt.Sprintf("%d", result.Parallel),
			millis(result.TotalTime),
			millis(result.AverageTime),
			millis(result.MinTime),
			millis(result.MaxTime),
			millis(result.StdDev),
			fmt.Sprintf("%.2f", result.KeysPerSecond),
			fmt.Sprintf("%.2f", result.CPUUsage),
			fmt.Sprintf("%.2f", float64(result.MemoryUsed)/(1024*1024)),
			fmt.Sprintf("%d", result.Errors),
			host.OS,
			host.Architecture,
			host.CPUModel,
			fmt.Sprintf("%d", host.CPUCores),
			fmt.Sprintf("%.2f", float64(host.TotalMemory)/(1024*1024*1024)),
		}

		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

// FormatAnalysis writes one row per parameter.
func (c *CSVFormatter) FormatAnalysis(w io.Writer, a *engine.KeyAnalysis) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Section", "Name", "Decimal", "Hex"}); err != nil {
		return err
	}

	meta := [][]string{
		{"key", "type", string(a.KeyType), ""},
		{"key", "encoding", string(a.Encoding), ""},
		{"key", "size_bits", fmt.Sprintf("%d", a.KeySize), ""},
		{"security", "tier", string(a.Security.Tier), ""},
		{"fingerprint", "sha256", "", a.Fingerprints.SHA256},
		{"fingerprint", "sha1", "", a.Fingerprints.SHA1},
		{"fingerprint", "md5", "", a.Fingerprints.MD5},
	}
	if err := writer.WriteAll(meta); err != nil {
		return err
	}

	for _, s := range sections(a) {
		for _, f := range s.fields {
			if err := writer.Write([]string{s.name, f.Name, f.Value.Decimal, f.Value.Hex}); err != nil {
				return err
			}
		}
	}
	return writer.Error()
}

func millis(d time.Duration) string {
	return fmt.Sprintf("%.2f", float64(d.Nanoseconds())/1e6)
}
