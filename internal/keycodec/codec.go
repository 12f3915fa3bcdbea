// Package keycodec decodes and encodes PEM-armored RSA keys in the PKCS#1,
// PKCS#8 and SubjectPublicKeyInfo layouts. It performs no trust decisions.
package keycodec

import (
	"bytes"
	"encoding/pem"
	"fmt"
	"math/big"

	"github.com/user/rsalab/internal/keyerr"
)

const (
	LabelPublicKey        = "PUBLIC KEY"
	LabelRSAPublicKey     = "RSA PUBLIC KEY"
	LabelPrivateKey       = "PRIVATE KEY"
	LabelRSAPrivateKey    = "RSA PRIVATE KEY"
	labelEncryptedPrivate = "ENCRYPTED PRIVATE KEY"
)

// Encoding names the DER layout a key was found in.
type Encoding string

const (
	EncodingSPKI        Encoding = "SPKI"
	EncodingPKCS1Public Encoding = "PKCS#1 public"
	EncodingPKCS1       Encoding = "PKCS#1"
	EncodingPKCS8       Encoding = "PKCS#8"
)

// PrivateFormat selects the layout of an encoded private key.
type PrivateFormat string

const (
	FormatPKCS8 PrivateFormat = "pkcs8"
	FormatPKCS1 PrivateFormat = "pkcs1"
)

func ParsePrivateFormat(s string) (PrivateFormat, error) {
	switch PrivateFormat(s) {
	case FormatPKCS8, "":
		return FormatPKCS8, nil
	case FormatPKCS1:
		return FormatPKCS1, nil
	default:
		return "", fmt.Errorf("unknown private key format %q (want pkcs8 or pkcs1)", s)
	}
}

// RawKey holds the integer fields of a decoded key exactly as encoded.
// Nothing in it has been validated. For private keys Dp, Dq and Qinv are nil
// when the encoding omitted them.
type RawKey struct {
	Label    string
	Encoding Encoding
	Private  bool

	N, E    *big.Int
	D, P, Q *big.Int

	Dp, Dq, Qinv *big.Int
}

// HasCRT reports whether the encoding carried dp, dq and qinv.
func (k *RawKey) HasCRT() bool {
	return k.Dp != nil && k.Dq != nil && k.Qinv != nil
}

func (k *RawKey) complete() bool {
	for _, v := range []*big.Int{k.N, k.E, k.D, k.P, k.Q} {
		if v == nil {
			return false
		}
	}
	return k.HasCRT()
}

// Codec is the contract for key wire formats. PEMCodec is the only
// implementation; JWK or raw DER codecs would satisfy the same interface.
type Codec interface {
	Decode(data []byte) (*RawKey, error)
	EncodePublic(n, e *big.Int) ([]byte, error)
	EncodePrivate(key *RawKey, format PrivateFormat) ([]byte, error)
}

type PEMCodec struct{}

var _ Codec = PEMCodec{}

var pemStart = []byte("-----BEGIN")

// Decode parses exactly one PEM block. Surrounding whitespace is allowed,
// anything else is MalformedKeyEncoding.
func (PEMCodec) Decode(data []byte) (*RawKey, error) {
	if i := bytes.Index(data, pemStart); i > 0 && len(bytes.TrimSpace(data[:i])) > 0 {
		return nil, keyerr.Malformed("unexpected data before BEGIN")
	}

	block, rest := pem.Decode(data)
	if block == nil {
		return nil, keyerr.Malformed("no PEM block found")
	}
	if len(bytes.TrimSpace(rest)) > 0 {
		return nil, keyerr.Malformed("unexpected data after END %s", block.Type)
	}
	if _, encrypted := block.Headers["Proc-Type"]; encrypted || block.Type == labelEncryptedPrivate {
		return nil, keyerr.Unsupported("encrypted PEM keys are not supported")
	}

	var (
		key *RawKey
		err error
	)
	switch block.Type {
	case LabelPublicKey:
		key = &RawKey{Encoding: EncodingSPKI}
		key.N, key.E, err = ParsePKIXPublicKey(block.Bytes)
	case LabelRSAPublicKey:
		key = &RawKey{Encoding: EncodingPKCS1Public}
		key.N, key.E, err = ParsePKCS1PublicKey(block.Bytes)
	case LabelPrivateKey:
		key, err = ParsePKCS8PrivateKey(block.Bytes)
		if key != nil {
			key.Encoding = EncodingPKCS8
		}
	case LabelRSAPrivateKey:
		key, err = ParsePKCS1PrivateKey(block.Bytes)
		if key != nil {
			key.Encoding = EncodingPKCS1
		}
	default:
		return nil, keyerr.Unsupported("PEM block %q is not an RSA key", block.Type)
	}
	if err != nil {
		return nil, err
	}

	key.Label = block.Type
	return key, nil
}

func (PEMCodec) EncodePublic(n, e *big.Int) ([]byte, error) {
	der, err := MarshalPKIXPublicKey(n, e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: LabelPublicKey, Bytes: der}), nil
}

func (PEMCodec) EncodePrivate(key *RawKey, format PrivateFormat) ([]byte, error) {
	var (
		der   []byte
		label string
		err   error
	)
	switch format {
	case FormatPKCS8, "":
		der, err = MarshalPKCS8PrivateKey(key)
		label = LabelPrivateKey
	case FormatPKCS1:
		der, err = MarshalPKCS1PrivateKey(key)
		label = LabelRSAPrivateKey
	default:
		return nil, fmt.Errorf("unknown private key format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: label, Bytes: der}), nil
}
