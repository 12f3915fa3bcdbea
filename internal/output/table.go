package output

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/user/rsalab/internal/engine"
)

type TableFormatter struct{}

func (t *TableFormatter) Format(w io.Writer, data Data) error {
	fmt.Fprintln(w, "\nRSA Key Generation Benchmark")
	fmt.Fprintln(w, "============================")
	if data.SystemInfo != nil {
		fmt.Fprintf(w, "%s/%s, %s, %d cores\n", data.SystemInfo.OS, data.SystemInfo.Architecture,
			data.SystemInfo.CPUModel, data.SystemInfo.CPUCores)
	}
	fmt.Fprintln(w)

	table := newTable(w)
	table.SetHeader([]string{
		"Key Size",
		"Iterations",
		"Parallel",
		"Total Time",
		"Avg Time",
		"Min Time",
		"Max Time",
		"Std Dev",
		"Keys/Sec",
		"CPU %",
		"Memory MB",
		"Errors",
	})

	for _, result := range data.Results {
		table.Append([]string{
			fmt.Sprintf("%d", result.KeySize),
			fmt.Sprintf("%d", result.Iterations),
			fmt.Sprintf("%d", result.Parallel),
			formatDuration(result.TotalTime),
			formatDuration(result.AverageTime),
			formatDuration(result.MinTime),
			formatDuration(result.MaxTime),
			formatDuration(result.StdDev),
			fmt.Sprintf("%.2f", result.KeysPerSecond),
			fmt.Sprintf("%.1f", result.CPUUsage),
			fmt.Sprintf("%.2f", float64(result.MemoryUsed)/(1024*1024)),
			fmt.Sprintf("%d", result.Errors),
		})
	}

	table.Render()

	fmt.Fprintln(w, "\nSummary")
	fmt.Fprintln(w, "-------")

	totalKeys, totalSeconds := summary(data.Results)
	fmt.Fprintf(w, "Total keys generated: %d\n", totalKeys)
	fmt.Fprintf(w, "Total time: %s\n", formatDuration(time.Duration(totalSeconds*float64(time.Second))))
	if totalSeconds > 0 {
		fmt.Fprintf(w, "Overall throughput: %.2f keys/sec\n", float64(totalKeys)/totalSeconds)
	}

	return nil
}

func (t *TableFormatter) FormatAnalysis(w io.Writer, a *engine.KeyAnalysis) error {
	fmt.Fprintln(w, "\nRSA Key Analysis")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)

	overview := newTable(w)
	overview.SetHeader([]string{"Property", "Value"})
	overview.AppendBulk([][]string{
		{"Key type", string(a.KeyType)},
		{"Encoding", string(a.Encoding)},
		{"Key size", fmt.Sprintf("%d bits", a.KeySize)},
		{"Security", fmt.Sprintf("%s (%s)", a.Security.Tier, a.Security.Guidance)},
		{"SHA-256", a.Fingerprints.SHA256},
		{"SHA-1", a.Fingerprints.SHA1},
		{"MD5", a.Fingerprints.MD5},
	})
	if a.Fingerprints.SSH != "" {
		overview.Append([]string{"OpenSSH", a.Fingerprints.SSH})
	}
	overview.Render()

	for _, s := range sections(a) {
		fmt.Fprintf(w, "\n%s\n", s.title)
		params := newTable(w)
		params.SetHeader([]string{"Name", "Hex"})
		params.SetColWidth(60)
		for _, f := range s.fields {
			params.Append([]string{f.Name, f.Value.HexPairs()})
		}
		params.Render()
	}

	if len(a.Security.Vulnerabilities) > 0 {
		fmt.Fprintln(w, "\nVulnerabilities")
		for _, v := range a.Security.Vulnerabilities {
			fmt.Fprintf(w, "  - %s\n", v)
		}
	}
	if len(a.Security.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations")
		for _, r := range a.Security.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
	return nil
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000)
	} else if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	} else if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.2fm", d.Minutes())
}
