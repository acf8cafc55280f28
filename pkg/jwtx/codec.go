package jwtx

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
)

// AlgorithmRS256 is the only signing algorithm issued or accepted.
const AlgorithmRS256 = "RS256"

// KeyPair is a freshly generated RSA signing key with its identifier.
type KeyPair struct {
	KID        string
	Private    *rsa.PrivateKey
	PrivatePEM []byte
	PublicPEM  []byte
}

// GenerateKeyPair creates an RSA key (at least 2048 bits) and derives its kid.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	pair, err := cryptox.GenerateRSAKeyPair(bits)
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		KID:        KIDFromPublicPEM(pair.PublicPEM),
		Private:    pair.Private,
		PrivatePEM: pair.PrivatePEM,
		PublicPEM:  pair.PublicPEM,
	}, nil
}

// KIDFromPublicPEM is the first 16 hex characters of SHA-256(publicPEM).
// The same public key always yields the same kid.
func KIDFromPublicPEM(publicPEM []byte) string {
	sum := sha256.Sum256(publicPEM)
	return hex.EncodeToString(sum[:])[:16]
}

// Encode signs claims as a compact RS256 JWT with kid in the header.
func Encode(claims Claims, kid string, key *rsa.PrivateKey) (string, error) {
	if key == nil {
		return "", errors.New("jwtx: nil signing key")
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(claims))
	t.Header["kid"] = kid
	signed, err := t.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// Decode verifies the RS256 signature of token against pub and checks exp
// against now. The exp claim is mandatory. Every failure is an error.
func Decode(token string, pub *rsa.PublicKey, now time.Time) (Claims, error) {
	if pub == nil {
		return nil, ErrUnknownKID
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmRS256}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	claims := jwt.MapClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if alg, _ := t.Header["alg"].(string); alg != AlgorithmRS256 {
			return nil, fmt.Errorf("jwtx: unexpected alg %q", alg)
		}
		return pub, nil
	})
	switch {
	case err == nil && parsed.Valid:
		return Claims(claims), nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrMalformed
	case err != nil:
		return nil, fmt.Errorf("jwtx: verify: %w", err)
	default:
		return nil, ErrInvalidSig
	}
}

// PeekKID reads the kid header without verifying anything.
func PeekKID(token string) (string, error) {
	t, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", ErrMalformed
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return "", ErrMissingKID
	}
	return kid, nil
}
