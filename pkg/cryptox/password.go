package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id parameters used by HashSecret.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

const argon2idPrefix = "$argon2id$"

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// ErrUnknownHash is returned by VerifyHash for values without a recognised prefix.
var ErrUnknownHash = errors.New("cryptox: unrecognised hash format")

// IsHashed reports whether s carries a bcrypt or argon2id prefix marker.
func IsHashed(s string) bool {
	if strings.HasPrefix(s, argon2idPrefix) {
		return true
	}
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// HashSecret produces a PHC-format argon2id hash of secret.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, keyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Limits on argon2id parameters read from stored hashes. Anything outside
// them is rejected before any key derivation runs.
const (
	maxArgon2Memory     = 256 * 1024 // KiB
	maxArgon2Iterations = 16
	minArgon2KeyLength  = 16
	maxArgon2KeyLength  = 64
)

// ErrMalformedHash is returned for hashes that carry a known prefix but
// cannot be used.
var ErrMalformedHash = errors.New("cryptox: malformed hash")

// VerifyHash checks plain against an argon2id or bcrypt hash.
// A mismatch is (false, nil); a malformed hash is an error.
func VerifyHash(plain, encoded string) (bool, error) {
	if strings.HasPrefix(encoded, argon2idPrefix) {
		return verifyArgon2id(plain, encoded)
	}
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(encoded, p) {
			err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain))
			if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				return false, nil
			}
			if err != nil {
				return false, fmt.Errorf("%w: bcrypt: %v", ErrMalformedHash, err)
			}
			return true, nil
		}
	}
	return false, ErrUnknownHash
}

// ValidateHash checks that encoded is a usable argon2id or bcrypt hash
// without verifying anything against it.
func ValidateHash(encoded string) error {
	if strings.HasPrefix(encoded, argon2idPrefix) {
		_, err := parseArgon2id(encoded)
		return err
	}
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(encoded, p) {
			if _, err := bcrypt.Cost([]byte(encoded)); err != nil {
				return fmt.Errorf("%w: bcrypt: %v", ErrMalformedHash, err)
			}
			return nil
		}
	}
	return ErrUnknownHash
}

type argon2idHash struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// parseArgon2id parses $argon2id$v=19$m=X,t=Y,p=Z$salt$hash.
func parseArgon2id(encoded string) (argon2idHash, error) {
	var h argon2idHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return h, fmt.Errorf("%w: argon2id: expected 6 parts", ErrMalformedHash)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return h, fmt.Errorf("%w: argon2id: wrong version", ErrMalformedHash)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.iterations, &h.parallelism); err != nil {
		return h, fmt.Errorf("%w: argon2id parameters: %v", ErrMalformedHash, err)
	}
	switch {
	case h.iterations == 0 || h.iterations > maxArgon2Iterations:
		return h, fmt.Errorf("%w: argon2id: t=%d out of range", ErrMalformedHash, h.iterations)
	case h.parallelism == 0:
		return h, fmt.Errorf("%w: argon2id: p must be positive", ErrMalformedHash)
	case h.memory < 8*uint32(h.parallelism) || h.memory > maxArgon2Memory:
		return h, fmt.Errorf("%w: argon2id: m=%d out of range", ErrMalformedHash, h.memory)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(h.salt) == 0 {
		return h, fmt.Errorf("%w: argon2id salt", ErrMalformedHash)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return h, fmt.Errorf("%w: argon2id hash: %v", ErrMalformedHash, err)
	}
	if len(h.key) < minArgon2KeyLength || len(h.key) > maxArgon2KeyLength {
		return h, fmt.Errorf("%w: argon2id: %d byte hash", ErrMalformedHash, len(h.key))
	}
	return h, nil
}

func verifyArgon2id(plain, encoded string) (bool, error) {
	h, err := parseArgon2id(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(plain), h.salt, h.iterations, h.memory, h.parallelism, uint32(len(h.key))) // #nosec G115
	return ConstantTimeEqual(got, h.key), nil
}
