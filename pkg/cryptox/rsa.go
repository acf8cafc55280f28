package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// MinRSABits is the smallest modulus accepted for signing keys.
const MinRSABits = 2048

// ErrWeakKey is returned when an RSA key is smaller than MinRSABits.
var ErrWeakKey = errors.New("cryptox: RSA key size must be at least 2048 bits")

// RSAKeyPair holds a generated key together with its PEM encodings.
// PrivatePEM is PKCS8 ("PRIVATE KEY"), PublicPEM is SPKI ("PUBLIC KEY").
type RSAKeyPair struct {
	Private    *rsa.PrivateKey
	PrivatePEM []byte
	PublicPEM  []byte
}

// GenerateRSAKeyPair creates a new RSA key of the given size and encodes both halves.
func GenerateRSAKeyPair(bits int) (*RSAKeyPair, error) {
	if bits < MinRSABits {
		return nil, ErrWeakKey
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate RSA key: %w", err)
	}

	privPEM, err := EncodeRSAPrivateKeyPEM(privateKey)
	if err != nil {
		return nil, err
	}
	pubPEM, err := EncodeRSAPublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}

	return &RSAKeyPair{Private: privateKey, PrivatePEM: privPEM, PublicPEM: pubPEM}, nil
}

// EncodeRSAPrivateKeyPEM marshals a private key as a PKCS8 PEM block.
func EncodeRSAPrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal PKCS8 key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodeRSAPublicKeyPEM marshals a public key as an SPKI PEM block.
func EncodeRSAPublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParseRSAPrivateKeyPEM accepts PKCS8 and, for older records, PKCS1 encodings.
func ParseRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("cryptox: invalid private key PEM")
	}

	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse PKCS8 key: %w", err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("cryptox: PKCS8 key is not RSA")
		}
		return checkStrength(key)
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse PKCS1 key: %w", err)
		}
		return checkStrength(key)
	default:
		return nil, fmt.Errorf("cryptox: unsupported private key type %q", block.Type)
	}
}

// ParseRSAPublicKeyPEM decodes an SPKI "PUBLIC KEY" block.
func ParseRSAPublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.New("cryptox: invalid public key PEM")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptox: parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("cryptox: public key is not RSA")
	}
	return key, nil
}

func checkStrength(key *rsa.PrivateKey) (*rsa.PrivateKey, error) {
	if key.N.BitLen() < MinRSABits {
		return nil, ErrWeakKey
	}
	return key, nil
}
