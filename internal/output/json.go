package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/user/rsalab/internal/engine"
)

type JSONFormatter struct{}

type JSONOutput struct {
	Timestamp  time.Time `json:"timestamp"`
	SystemInfo any       `json:"system_info"`
	Config     any       `json:"config"`
	Results    any       `json:"results"`
	Summary    struct {
		TotalKeys       int           `json:"total_keys"`
		TotalTime       time.Duration `json:"total_time"`
		TotalTimeString string        `json:"total_time_string"`
		Throughput      float64       `json:"throughput_keys_per_sec"`
	} `json:"summary"`
}

func (j *JSONFormatter) Format(w io.Writer, data Data) error {
	output := JSONOutput{
		Timestamp:  time.Now(),
		SystemInfo: data.SystemInfo,
		Config:     data.Config,
		Results:    data.Results,
	}

	totalKeys, totalSeconds := summary(data.Results)
	totalTime := time.Duration(totalSeconds * float64(time.Second))

	output.Summary.TotalKeys = totalKeys
	output.Summary.TotalTime = totalTime
	output.Summary.TotalTimeString = totalTime.String()
	if totalSeconds > 0 {
		output.Summary.Throughput = float64(totalKeys) / totalSeconds
	}

	return encode(w, output)
}

func (j *JSONFormatter) FormatAnalysis(w io.Writer, a *engine.KeyAnalysis) error {
	return encode(w, a)
}

func encode(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
