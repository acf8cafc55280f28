package jwtx

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// JWK is an RSA public key in JSON Web Key format (RFC 7517).
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS is a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// NewRSAJWK builds a signing JWK for pub.
func NewRSAJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: AlgorithmRS256,
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// PEMToJWK converts an SPKI public key PEM into a JWK. kid is derived from
// the PEM when empty.
func PEMToJWK(publicPEM []byte, kid string) (JWK, error) {
	pub, err := cryptox.ParseRSAPublicKeyPEM(publicPEM)
	if err != nil {
		return JWK{}, err
	}
	if kid == "" {
		kid = KIDFromPublicPEM(publicPEM)
	}
	return NewRSAJWK(kid, pub), nil
}

// PublicKey rebuilds the RSA public key described by the JWK.
func (j JWK) PublicKey() (*rsa.PublicKey, error) {
	if j.Kty != "RSA" {
		return nil, fmt.Errorf("jwtx: unsupported key type %q", j.Kty)
	}
	nb, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("jwtx: decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("jwtx: decode exponent: %w", err)
	}
	e := new(big.Int).SetBytes(eb)
	if len(nb) == 0 || !e.IsInt64() || e.Int64() < 3 || e.Int64() > 1<<31-1 {
		return nil, errors.New("jwtx: invalid RSA parameters")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}, nil
}

// PEM converts the JWK back to an SPKI PEM.
func (j JWK) PEM() ([]byte, error) {
	pub, err := j.PublicKey()
	if err != nil {
		return nil, err
	}
	return cryptox.EncodeRSAPublicKeyPEM(pub)
}

// Find returns the key with the given kid.
func (s JWKS) Find(kid string) (JWK, bool) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JWK{}, false
}
