package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/roach88/factsync/internal/fact"
)

// KeyBits is the RSA modulus size used by Generate.
const KeyBits = 2048

// FactSignature is one principal's signature over a fact. It is comparable,
// so a set of signatures can be kept as a map or deduplicated with ==.
type FactSignature struct {
	PublicKey string `json:"publicKey" yaml:"publicKey" cbor:"publicKey"`
	Signature string `json:"signature" yaml:"signature" cbor:"signature"`
}

// KeyPair holds PEM-encoded key material.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
}

// Generate creates a fresh RSA key pair.
func Generate() (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return encodeKeyPair(key)
}

func encodeKeyPair(key *rsa.PrivateKey) (*KeyPair, error) {
	pub, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return &KeyPair{
		PublicKey:  pub,
		PrivateKey: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	}, nil
}

// EncodePublicKey renders a public key as a PKIX PEM block.
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePrivateKey decodes a PKCS#8 PEM private key.
func ParsePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil || block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("private key: no PRIVATE KEY PEM block")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key: expected RSA, got %T", parsed)
	}
	return key, nil
}

// ParsePublicKey decodes a PKIX PEM public key.
func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("public key: no PUBLIC KEY PEM block")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key: expected RSA, got %T", parsed)
	}
	return key, nil
}

// Sign recomputes the fact's digest and signs it. A fact whose content does
// not hash to its reference fails with *fact.IntegrityError before any key
// material is touched.
func Sign(f fact.Fact, privateKeyPEM string) (FactSignature, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return FactSignature{}, err
	}
	return signWithKey(f, key)
}

func signWithKey(f fact.Fact, key *rsa.PrivateKey) (FactSignature, error) {
	if err := f.Verify(); err != nil {
		return FactSignature{}, err
	}
	digest, err := f.Digest()
	if err != nil {
		return FactSignature{}, err
	}

	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA512, digest)
	if err != nil {
		return FactSignature{}, fmt.Errorf("sign %s: %w", f.Reference(), err)
	}
	pub, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		return FactSignature{}, err
	}
	return FactSignature{
		PublicKey: pub,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// Verify reports whether sig is a valid signature over f's content. The
// digest is always recomputed; f's stated reference is not trusted, so a
// fact whose content changed after signing fails even if its reference
// was left untouched.
func Verify(f fact.Fact, sig FactSignature) bool {
	pub, err := ParsePublicKey(sig.PublicKey)
	if err != nil {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return false
	}
	digest, err := f.Digest()
	if err != nil {
		return false
	}
	return rsa.VerifyPKCS1v15(pub, crypto.SHA512, digest, raw) == nil
}
