package output

import (
	"fmt"
	"io"

	"github.com/user/rsalab/internal/benchmark"
	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/internal/rsaparams"
	"github.com/user/rsalab/pkg/sysinfo"
)

// Data is a benchmark report.
type Data struct {
	SystemInfo *sysinfo.SystemInfo
	Results    []benchmark.Result
	Config     benchmark.Config
}

type Formatter interface {
	Format(w io.Writer, data Data) error
	FormatAnalysis(w io.Writer, a *engine.KeyAnalysis) error
}

func NewFormatter(format string) (Formatter, error) {
	switch format {
	case "table":
		return &TableFormatter{}, nil
	case "json":
		return &JSONFormatter{}, nil
	case "csv":
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

type section struct {
	name   string
	title  string
	fields []rsaparams.NamedNumber
}

// sections lists the parameter groups present in a.
func sections(a *engine.KeyAnalysis) []section {
	var out []section
	if a.Private != nil {
		out = append(out, section{"private", "Private parameters", a.Private.Fields()})
	} else {
		out = append(out, section{"public", "Public parameters", a.Public.Fields()})
	}
	if a.Derived != nil {
		out = append(out, section{"derived", "Derived parameters", a.Derived.Fields()})
	}
	return out
}

func summary(results []benchmark.Result) (totalKeys int, totalTime float64) {
	for _, result := range results {
		totalKeys += result.Generated()
		totalTime += result.TotalTime.Seconds()
	}
	return totalKeys, totalTime
}
