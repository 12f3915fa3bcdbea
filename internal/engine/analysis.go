package engine

import (
	"crypto/md5"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"math"
	"math/big"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/user/rsalab/internal/keycodec"
	"github.com/user/rsalab/internal/rsaparams"
	"github.com/user/rsalab/internal/security"
)

type KeyType string

const (
	PublicKey  KeyType = "public"
	PrivateKey KeyType = "private"
)

// Fingerprints are digests of the SubjectPublicKeyInfo DER, plus the
// OpenSSH SHA256 form.
type Fingerprints struct {
	SHA256 string `json:"sha256"`
	SHA1   string `json:"sha1"`
	MD5    string `json:"md5"`
	SSH    string `json:"ssh,omitempty"`
}

// KeyAnalysis is the result of analyze_rsa_key. Private and Derived are
// only set for private keys.
type KeyAnalysis struct {
	KeyType      KeyType                  `json:"key_type"`
	Encoding     keycodec.Encoding        `json:"encoding"`
	KeySize      int                      `json:"key_size"`
	Public       *rsaparams.PublicParams  `json:"public"`
	Private      *rsaparams.PrivateParams `json:"private,omitempty"`
	Derived      *rsaparams.DerivedParams `json:"derived,omitempty"`
	Security     security.Info            `json:"security"`
	Fingerprints Fingerprints             `json:"fingerprints"`
}

// KeyPair is the result of generate_rsa_key.
type KeyPair struct {
	PublicKeyPEM  string `json:"public_key_pem"`
	PrivateKeyPEM string `json:"private_key_pem"`
	Bits          int    `json:"bits"`
}

func fingerprints(n, e *big.Int) (Fingerprints, error) {
	der, err := keycodec.MarshalPKIXPublicKey(n, e)
	if err != nil {
		return Fingerprints{}, err
	}
	s256 := sha256.Sum256(der)
	s1 := sha1.Sum(der)
	m5 := md5.Sum(der)

	fp := Fingerprints{
		SHA256: colonHex(s256[:]),
		SHA1:   colonHex(s1[:]),
		MD5:    colonHex(m5[:]),
	}
	// OpenSSH only carries exponents that fit an int
	if e.IsInt64() && e.Int64() <= math.MaxInt32 {
		if pub, err := ssh.NewPublicKey(&rsa.PublicKey{N: n, E: int(e.Int64())}); err == nil {
			fp.SSH = ssh.FingerprintSHA256(pub)
		}
	}
	return fp, nil
}

func colonHex(b []byte) string {
	const digits = "0123456789ABCDEF"
	var sb strings.Builder
	sb.Grow(len(b) * 3)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteByte(digits[c>>4])
		sb.WriteByte(digits[c&0x0f])
	}
	return sb.String()
}

func exponentValue(e *big.Int) uint64 {
	if e.IsUint64() {
		return e.Uint64()
	}
	return math.MaxUint64
}
