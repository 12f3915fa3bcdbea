// Package security rates RSA keys by modulus size.
package security

import "fmt"

type Tier string

const (
	Low    Tier = "low"
	Medium Tier = "medium"
	High   Tier = "high"
)

const (
	DefaultMediumBits = 2048
	DefaultHighBits   = 4096

	recommendedExponent = 65537
)

// Thresholds are the lowest modulus sizes of the medium and high tiers.
type Thresholds struct {
	Medium int
	High   int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Medium: DefaultMediumBits, High: DefaultHighBits}
}

func (t Thresholds) Validate() error {
	if t.Medium <= 0 || t.High <= 0 {
		return fmt.Errorf("security thresholds must be positive")
	}
	if t.Medium >= t.High {
		return fmt.Errorf("medium threshold %d must be below high threshold %d", t.Medium, t.High)
	}
	return nil
}

func DefaultGuidance() map[Tier]string {
	return map[Tier]string{
		Low:    "Below current recommendations; suitable only for testing.",
		Medium: "Acceptable for most uses today.",
		High:   "Suitable for long-term protection.",
	}
}

// Info is the full assessment of a key.
type Info struct {
	Tier                   Tier     `json:"tier"`
	Guidance               string   `json:"guidance"`
	RecommendedMinimumBits int      `json:"recommended_minimum_bits"`
	IsSecure               bool     `json:"is_secure"`
	Vulnerabilities        []string `json:"vulnerabilities"`
	Recommendations        []string `json:"recommendations"`
}

type Classifier struct {
	Thresholds Thresholds
	Guidance   map[Tier]string
}

// NewClassifier returns a classifier with the default guidance texts.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{Thresholds: t, Guidance: DefaultGuidance()}
}

func (c *Classifier) Classify(bits int) Tier {
	switch {
	case bits < c.Thresholds.Medium:
		return Low
	case bits < c.Thresholds.High:
		return Medium
	default:
		return High
	}
}

// Assess classifies the modulus size and flags weak public exponents. Any
// modulus below the medium tier is reported as a vulnerability.
func (c *Classifier) Assess(bits int, e uint64) Info {
	tier := c.Classify(bits)
	minimum := c.Thresholds.Medium
	info := Info{
		Tier:                   tier,
		Guidance:               c.Guidance[tier],
		RecommendedMinimumBits: minimum,
		Vulnerabilities:        []string{},
		Recommendations:        []string{},
	}

	if bits < minimum {
		info.Vulnerabilities = append(info.Vulnerabilities,
			fmt.Sprintf("%d-bit modulus is within reach of factoring attacks", bits))
		info.Recommendations = append(info.Recommendations,
			fmt.Sprintf("use a modulus of at least %d bits", minimum))
	}
	if e != 0 && e < recommendedExponent {
		info.Vulnerabilities = append(info.Vulnerabilities,
			fmt.Sprintf("public exponent %d is small", e))
		info.Recommendations = append(info.Recommendations,
			fmt.Sprintf("use public exponent %d", recommendedExponent))
	}
	if tier == Medium {
		info.Recommendations = append(info.Recommendations,
			fmt.Sprintf("use %d bits for long-term protection", c.Thresholds.High))
	}

	info.IsSecure = len(info.Vulnerabilities) == 0
	return info
}
