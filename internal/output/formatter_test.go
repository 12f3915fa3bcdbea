package output

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/rsalab/internal/benchmark"
	"github.com/user/rsalab/internal/engine"
	"github.com/user/rsalab/internal/keycodec"
	"github.com/user/rsalab/internal/rsaparams"
	"github.com/user/rsalab/internal/security"
	"github.com/user/rsalab/pkg/sysinfo"
)

func testData() Data {
	return Data{
		SystemInfo: &sysinfo.SystemInfo{
			OS:           "linux",
			Architecture: "amd64",
			CPUModel:     "Test CPU",
			CPUCores:     8,
			TotalMemory:  16000000000,
		},
		Results: []benchmark.Result{
			{
				KeySize:       2048,
				Iterations:    10,
				Parallel:      1,
				TotalTime:     5 * time.Second,
				AverageTime:   500 * time.Millisecond,
				MinTime:       400 * time.Millisecond,
				MaxTime:       600 * time.Millisecond,
				KeysPerSecond: 2.0,
				CPUUsage:      50.5,
				MemoryUsed:    1048576,
				CompletedAt:   time.Now(),
			},
		},
		Config: benchmark.Config{
			KeySizes:   []int{2048},
			Iterations: 10,
			Parallel:   1,
		},
	}
}

func privateAnalysis(t *testing.T) *engine.KeyAnalysis {
	t.Helper()
	priv, derived, err := rsaparams.Validator{}.DerivePrivate(context.Background(), rsaparams.PrivateInput{
		N: big.NewInt(3233), E: big.NewInt(17), D: big.NewInt(413),
		P: big.NewInt(61), Q: big.NewInt(53),
	})
	require.NoError(t, err)
	c := security.NewClassifier(security.DefaultThresholds())
	return &engine.KeyAnalysis{
		KeyType:  engine.PrivateKey,
		Encoding: keycodec.EncodingPKCS1,
		KeySize:  12,
		Public:   priv.Public(),
		Private:  priv,
		Derived:  derived,
		Security: c.Assess(12, 17),
		Fingerprints: engine.Fingerprints{
			SHA256: "AA:BB",
			SHA1:   "CC:DD",
			MD5:    "EE:FF",
		},
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format    string
		expectErr bool
	}{
		{"table", false},
		{"json", false},
		{"csv", false},
		{"xml", true},
		{"invalid", true},
	}

	for _, test := range tests {
		_, err := NewFormatter(test.format)
		if test.expectErr {
			assert.Error(t, err, test.format)
		} else {
			assert.NoError(t, err, test.format)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&JSONFormatter{}).Format(buf, testData()))

	var result map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Contains(t, result, "system_info")
	assert.Contains(t, result, "results")
	assert.Contains(t, result, "summary")

	summary := result["summary"].(map[string]any)
	assert.Equal(t, 10.0, summary["total_keys"])
	assert.Equal(t, 2.0, summary["throughput_keys_per_sec"])
}

func TestCSVFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&CSVFormatter{}).Format(buf, testData()))

	records, err := csv.NewReader(buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "KeySize", records[0][1])
	assert.Equal(t, "2048", records[1][1])
	assert.Equal(t, "500.00", records[1][5])
}

func TestCSVFormatterWithoutSystemInfo(t *testing.T) {
	data := testData()
	data.SystemInfo = nil
	buf := &bytes.Buffer{}
	assert.NoError(t, (&CSVFormatter{}).Format(buf, data))
}

func TestTableFormatter(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&TableFormatter{}).Format(buf, testData()))

	output := buf.String()
	assert.Contains(t, output, "RSA Key Generation Benchmark")
	assert.Contains(t, output, "2048")
	assert.Contains(t, output, "Summary")
	assert.Contains(t, output, "Total keys generated: 10")
}

func TestTableFormatAnalysis(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&TableFormatter{}).FormatAnalysis(buf, privateAnalysis(t)))

	output := buf.String()
	assert.Contains(t, output, "RSA Key Analysis")
	assert.Contains(t, output, "Private parameters")
	assert.Contains(t, output, "Derived parameters")
	assert.Contains(t, output, "0C A1")
	assert.Contains(t, output, "Vulnerabilities")
	assert.Contains(t, output, "AA:BB")
}

func TestJSONFormatAnalysis(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&JSONFormatter{}).FormatAnalysis(buf, privateAnalysis(t)))

	var result struct {
		KeyType string                      `json:"key_type"`
		Private map[string]rsaparams.Number `json:"private"`
		Derived map[string]any              `json:"derived"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, "private", result.KeyType)
	assert.Equal(t, "413", result.Private["d"].Decimal)
	assert.Contains(t, result.Derived, "lambda_n")
}

func TestCSVFormatAnalysis(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, (&CSVFormatter{}).FormatAnalysis(buf, privateAnalysis(t)))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	// header, 7 metadata rows, 8 private and 4 derived parameters
	assert.Len(t, records, 20)

	found := false
	for _, r := range records {
		if r[0] == "derived" && r[1] == "phi_n" {
			found = true
			assert.Equal(t, "3120", r[2])
		}
	}
	assert.True(t, found)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Nanosecond, "0.50µs"},
		{1500 * time.Microsecond, "1.50ms"},
		{2500 * time.Millisecond, "2.50s"},
		{150 * time.Second, "2.50m"},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, formatDuration(test.duration))
	}
}
