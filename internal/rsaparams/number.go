package rsaparams

import (
	"math/big"
	"strings"
)

// Number is the display form of a big integer.
type Number struct {
	Decimal string `json:"decimal"`
	Hex     string `json:"hex"`
}

// NewNumber renders v in decimal and in uppercase hexadecimal zero-padded
// to an even digit count.
func NewNumber(v *big.Int) Number {
	if v == nil {
		return Number{}
	}
	return Number{Decimal: v.String(), Hex: hexEven(v)}
}

func hexEven(v *big.Int) string {
	sign := ""
	abs := v
	if v.Sign() < 0 {
		sign = "-"
		abs = new(big.Int).Abs(v)
	}
	h := strings.ToUpper(abs.Text(16))
	if len(h)%2 == 1 {
		h = "0" + h
	}
	return sign + h
}

// HexPairs returns the hex digits split into space separated bytes,
// e.g. "01 00 01".
func (n Number) HexPairs() string {
	h := strings.TrimPrefix(n.Hex, "-")
	if h == "" {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(h) + len(h)/2)
	if strings.HasPrefix(n.Hex, "-") {
		sb.WriteByte('-')
	}
	for i := 0; i < len(h); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(h[i : i+2])
	}
	return sb.String()
}

// NamedNumber is one labelled field of a parameter set, in display order.
type NamedNumber struct {
	Name  string
	Value Number
}
