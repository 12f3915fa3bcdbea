package keycodec

import (
	encasn1 "encoding/asn1"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/user/rsalab/internal/keyerr"
)

var (
	oidRSAEncryption = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidRSAPSS        = encasn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	oidECPublicKey   = encasn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidEd25519       = encasn1.ObjectIdentifier{1, 3, 101, 112}
	oidX25519        = encasn1.ObjectIdentifier{1, 3, 101, 110}
	oidDSA           = encasn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1}
)

var algorithmNames = map[string]string{
	oidRSAPSS.String():      "RSASSA-PSS",
	oidECPublicKey.String(): "EC",
	oidEd25519.String():     "Ed25519",
	oidX25519.String():      "X25519",
	oidDSA.String():         "DSA",
}

func algorithmName(oid encasn1.ObjectIdentifier) string {
	if name, ok := algorithmNames[oid.String()]; ok {
		return name
	}
	return oid.String()
}

// readSequence reads one SEQUENCE that must span all of der.
func readSequence(der []byte, what string) (cryptobyte.String, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) {
		return nil, keyerr.Malformed("%s: expected SEQUENCE", what)
	}
	if !input.Empty() {
		return nil, keyerr.Malformed("%s: trailing data after SEQUENCE", what)
	}
	return seq, nil
}

func readInt(s *cryptobyte.String, what, field string) (*big.Int, error) {
	v := new(big.Int)
	if !s.ReadASN1Integer(v) {
		return nil, keyerr.Malformed("%s: invalid INTEGER %s", what, field)
	}
	return v, nil
}

// readAlgorithm reads an AlgorithmIdentifier and fails with
// UnsupportedKeyFormat unless it names rsaEncryption.
func readAlgorithm(s *cryptobyte.String, what string) error {
	var algo cryptobyte.String
	if !s.ReadASN1(&algo, cbasn1.SEQUENCE) {
		return keyerr.Malformed("%s: expected AlgorithmIdentifier", what)
	}
	var oid encasn1.ObjectIdentifier
	if !algo.ReadASN1ObjectIdentifier(&oid) {
		return keyerr.Malformed("%s: invalid algorithm OID", what)
	}
	if !oid.Equal(oidRSAEncryption) {
		return keyerr.Unsupported("%s: %s key is not an RSA key", what, algorithmName(oid))
	}
	// rsaEncryption parameters are NULL; some encoders leave them out
	if !algo.Empty() {
		var null cryptobyte.String
		if !algo.ReadASN1(&null, cbasn1.NULL) || len(null) != 0 || !algo.Empty() {
			return keyerr.Malformed("%s: unexpected rsaEncryption parameters", what)
		}
	}
	return nil
}

// ParsePKCS1PublicKey parses an RSAPublicKey SEQUENCE { n, e }.
func ParsePKCS1PublicKey(der []byte) (n, e *big.Int, err error) {
	const what = "PKCS#1 public key"
	seq, err := readSequence(der, what)
	if err != nil {
		return nil, nil, err
	}
	if n, err = readInt(&seq, what, "n"); err != nil {
		return nil, nil, err
	}
	if e, err = readInt(&seq, what, "e"); err != nil {
		return nil, nil, err
	}
	if !seq.Empty() {
		return nil, nil, keyerr.Malformed("%s: unexpected fields after e", what)
	}
	return n, e, nil
}

// ParsePKIXPublicKey parses a SubjectPublicKeyInfo carrying an RSA key.
func ParsePKIXPublicKey(der []byte) (n, e *big.Int, err error) {
	const what = "SubjectPublicKeyInfo"
	seq, err := readSequence(der, what)
	if err != nil {
		return nil, nil, err
	}
	if err := readAlgorithm(&seq, what); err != nil {
		return nil, nil, err
	}
	var bits encasn1.BitString
	if !seq.ReadASN1BitString(&bits) {
		return nil, nil, keyerr.Malformed("%s: invalid subjectPublicKey BIT STRING", what)
	}
	if bits.BitLength%8 != 0 {
		return nil, nil, keyerr.Malformed("%s: subjectPublicKey is not byte aligned", what)
	}
	if !seq.Empty() {
		return nil, nil, keyerr.Malformed("%s: unexpected fields after subjectPublicKey", what)
	}
	return ParsePKCS1PublicKey(bits.Bytes)
}

// ParsePKCS1PrivateKey parses an RSAPrivateKey. The CRT fields dp, dq, qinv
// are optional: when all three are absent they are returned as nil.
func ParsePKCS1PrivateKey(der []byte) (*RawKey, error) {
	const what = "PKCS#1 private key"
	seq, err := readSequence(der, what)
	if err != nil {
		return nil, err
	}

	var version int64
	if !seq.ReadASN1Integer(&version) {
		return nil, keyerr.Malformed("%s: invalid version", what)
	}
	switch version {
	case 0:
	case 1:
		return nil, keyerr.Unsupported("%s: multi-prime keys are not supported", what)
	default:
		return nil, keyerr.Malformed("%s: unknown version %d", what, version)
	}

	key := &RawKey{Private: true}
	for _, f := range []struct {
		name string
		dst  **big.Int
	}{
		{"n", &key.N}, {"e", &key.E}, {"d", &key.D}, {"p", &key.P}, {"q", &key.Q},
	} {
		if *f.dst, err = readInt(&seq, what, f.name); err != nil {
			return nil, err
		}
	}

	if seq.Empty() {
		return key, nil
	}
	for _, f := range []struct {
		name string
		dst  **big.Int
	}{
		{"dp", &key.Dp}, {"dq", &key.Dq}, {"qinv", &key.Qinv},
	} {
		if *f.dst, err = readInt(&seq, what, f.name); err != nil {
			return nil, err
		}
	}
	if !seq.Empty() {
		return nil, keyerr.Malformed("%s: unexpected fields after qinv", what)
	}
	return key, nil
}

// ParsePKCS8PrivateKey unwraps a PrivateKeyInfo (v1) or OneAsymmetricKey (v2)
// holding an RSA private key.
func ParsePKCS8PrivateKey(der []byte) (*RawKey, error) {
	const what = "PKCS#8 private key"
	seq, err := readSequence(der, what)
	if err != nil {
		return nil, err
	}

	var version int64
	if !seq.ReadASN1Integer(&version) {
		return nil, keyerr.Malformed("%s: invalid version", what)
	}
	if version != 0 && version != 1 {
		return nil, keyerr.Malformed("%s: unknown version %d", what, version)
	}
	if err := readAlgorithm(&seq, what); err != nil {
		return nil, err
	}

	var inner cryptobyte.String
	if !seq.ReadASN1(&inner, cbasn1.OCTET_STRING) {
		return nil, keyerr.Malformed("%s: expected privateKey OCTET STRING", what)
	}
	if !seq.SkipOptionalASN1(cbasn1.Tag(0).ContextSpecific().Constructed()) ||
		!seq.SkipOptionalASN1(cbasn1.Tag(1).ContextSpecific()) {
		return nil, keyerr.Malformed("%s: invalid optional fields", what)
	}
	if !seq.Empty() {
		return nil, keyerr.Malformed("%s: trailing fields", what)
	}

	return ParsePKCS1PrivateKey(inner)
}

func MarshalPKCS1PublicKey(n, e *big.Int) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(n)
		b.AddASN1BigInt(e)
	})
	return b.Bytes()
}

func MarshalPKIXPublicKey(n, e *big.Int) ([]byte, error) {
	pkcs1, err := MarshalPKCS1PublicKey(n, e)
	if err != nil {
		return nil, err
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		addRSAAlgorithm(b)
		b.AddASN1BitString(pkcs1)
	})
	return b.Bytes()
}

// MarshalPKCS1PrivateKey requires every field, CRT values included.
func MarshalPKCS1PrivateKey(key *RawKey) ([]byte, error) {
	if !key.complete() {
		return nil, keyerr.Malformed("private key is missing fields")
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(0)
		for _, v := range []*big.Int{key.N, key.E, key.D, key.P, key.Q, key.Dp, key.Dq, key.Qinv} {
			b.AddASN1BigInt(v)
		}
	})
	return b.Bytes()
}

func MarshalPKCS8PrivateKey(key *RawKey) ([]byte, error) {
	pkcs1, err := MarshalPKCS1PrivateKey(key)
	if err != nil {
		return nil, err
	}

	var b cryptobyte.Builder
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(0)
		addRSAAlgorithm(b)
		b.AddASN1OctetString(pkcs1)
	})
	return b.Bytes()
}

func addRSAAlgorithm(b *cryptobyte.Builder) {
	b.AddASN1(cbasn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(oidRSAEncryption)
		b.AddASN1NULL()
	})
}
