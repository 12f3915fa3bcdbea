package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBoundaries(t *testing.T) {
	c := NewClassifier(DefaultThresholds())

	tests := []struct {
		bits int
		want Tier
	}{
		{512, Low},
		{2047, Low},
		{2048, Medium},
		{3072, Medium},
		{4095, Medium},
		{4096, High},
		{8192, High},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.bits), "bits=%d", tt.bits)
	}
}

func TestClassifyCustomThresholds(t *testing.T) {
	c := NewClassifier(Thresholds{Medium: 3072, High: 7680})
	assert.Equal(t, Low, c.Classify(2048))
	assert.Equal(t, Medium, c.Classify(4096))
	assert.Equal(t, High, c.Classify(7680))
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{Medium: 4096, High: 4096}.Validate())
	assert.Error(t, Thresholds{Medium: 0, High: 4096}.Validate())
}

func TestAssess(t *testing.T) {
	c := NewClassifier(DefaultThresholds())

	info := c.Assess(4096, 65537)
	assert.Equal(t, High, info.Tier)
	assert.True(t, info.IsSecure)
	assert.Empty(t, info.Vulnerabilities)
	assert.Equal(t, DefaultGuidance()[High], info.Guidance)

	info = c.Assess(2048, 65537)
	assert.Equal(t, Medium, info.Tier)
	assert.True(t, info.IsSecure)
	assert.Len(t, info.Recommendations, 1)

	info = c.Assess(1024, 3)
	assert.Equal(t, Low, info.Tier)
	assert.False(t, info.IsSecure)
	assert.Len(t, info.Vulnerabilities, 2)
	assert.Equal(t, 2048, info.RecommendedMinimumBits)
}

func TestAssessFollowsConfiguredThresholds(t *testing.T) {
	c := NewClassifier(Thresholds{Medium: 3072, High: 7680})

	info := c.Assess(2048, 65537)
	assert.Equal(t, Low, info.Tier)
	assert.False(t, info.IsSecure)
	assert.Equal(t, 3072, info.RecommendedMinimumBits)
	assert.Contains(t, info.Recommendations, "use a modulus of at least 3072 bits")

	info = c.Assess(3072, 65537)
	assert.Equal(t, Medium, info.Tier)
	assert.True(t, info.IsSecure)
}
