// Package keyerr defines the failure kinds returned by the RSA key engine.
package keyerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedKeyEncoding
	KindUnsupportedKeyFormat
	KindInvalidKeyMaterial
	KindKeyTooSmall
	KindPrimeGenerationExhausted
	KindKeyGenerationTimedOut
	KindNoInverseExists
)

var kindNames = map[Kind]string{
	KindUnknown:                  "Unknown",
	KindMalformedKeyEncoding:     "MalformedKeyEncoding",
	KindUnsupportedKeyFormat:     "UnsupportedKeyFormat",
	KindInvalidKeyMaterial:       "InvalidKeyMaterial",
	KindKeyTooSmall:              "KeyTooSmall",
	KindPrimeGenerationExhausted: "PrimeGenerationExhausted",
	KindKeyGenerationTimedOut:    "KeyGenerationTimedOut",
	KindNoInverseExists:          "NoInverseExists",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the single concrete error type of the engine. Invariant is only
// set for KindInvalidKeyMaterial.
type Error struct {
	Kind      Kind
	Invariant string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Invariant != "" {
		msg += fmt.Sprintf(" (%s)", e.Invariant)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of message or invariant.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrMalformedKeyEncoding     = &Error{Kind: KindMalformedKeyEncoding}
	ErrUnsupportedKeyFormat     = &Error{Kind: KindUnsupportedKeyFormat}
	ErrInvalidKeyMaterial       = &Error{Kind: KindInvalidKeyMaterial}
	ErrKeyTooSmall              = &Error{Kind: KindKeyTooSmall}
	ErrPrimeGenerationExhausted = &Error{Kind: KindPrimeGenerationExhausted}
	ErrKeyGenerationTimedOut    = &Error{Kind: KindKeyGenerationTimedOut}
	ErrNoInverseExists          = &Error{Kind: KindNoInverseExists}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: pkgerrors.Errorf(format, args...)}
}

func Malformed(format string, args ...any) error {
	return newf(KindMalformedKeyEncoding, format, args...)
}

func Unsupported(format string, args ...any) error {
	return newf(KindUnsupportedKeyFormat, format, args...)
}

// InvalidMaterial reports the first key invariant that did not hold.
func InvalidMaterial(invariant string) error {
	return &Error{
		Kind:      KindInvalidKeyMaterial,
		Invariant: invariant,
		Err:       pkgerrors.New("invariant violated"),
	}
}

func TooSmall(bits, min int) error {
	return newf(KindKeyTooSmall, "%d bits requested, minimum is %d", bits, min)
}

// TooLarge is reported as UnsupportedKeyFormat: the engine declines moduli
// above its configured ceiling.
func TooLarge(bits, max int) error {
	return newf(KindUnsupportedKeyFormat, "%d-bit modulus exceeds the %d-bit maximum", bits, max)
}

func Exhausted(bits, attempts int) error {
	return newf(KindPrimeGenerationExhausted, "no %d-bit prime after %d candidates", bits, attempts)
}

func TimedOut(format string, args ...any) error {
	return newf(KindKeyGenerationTimedOut, format, args...)
}

func NoInverse(format string, args ...any) error {
	return newf(KindNoInverseExists, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// InvariantOf returns the failed invariant name of an InvalidKeyMaterial error.
func InvariantOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Invariant
	}
	return ""
}
