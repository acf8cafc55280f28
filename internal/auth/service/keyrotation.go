package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/idp/pkg/jwtx"
	"github.com/aussiebroadwan/idp/pkg/slogx"
)

// KeyRotationService exposes signing key administration on top of the key
// manager: manual rotation, listing, and interval-based rotation.
type KeyRotationService struct {
	KeyManager *jwtx.KeyManager

	// Interval is the maximum age of the default purpose's active key.
	// Zero disables automatic rotation.
	Interval time.Duration

	Now func() time.Time
}

// KeyInfo is the public metadata of a signing key.
type KeyInfo struct {
	KID       string    `json:"kid"`
	Purpose   string    `json:"purpose"`
	Algorithm string    `json:"alg"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func keyInfo(k *jwtx.Key) KeyInfo {
	return KeyInfo{
		KID:       k.KID,
		Purpose:   k.Purpose,
		Algorithm: jwtx.AlgorithmRS256,
		Active:    k.Active,
		CreatedAt: k.CreatedAt,
	}
}

// RotateKey activates a fresh key for purpose, the default one when empty.
func (s *KeyRotationService) RotateKey(ctx context.Context, purpose string) (*KeyInfo, error) {
	if purpose == "" {
		purpose = s.KeyManager.DefaultPurpose()
	}
	key, err := s.KeyManager.RotateKey(ctx, purpose)
	if err != nil {
		return nil, fmt.Errorf("rotate %s key: %w", purpose, err)
	}
	slogx.FromContext(ctx).Info("signing key rotated", slog.String("kid", key.KID), slog.String("purpose", purpose))

	info := keyInfo(key)
	return &info, nil
}

// ListKeys returns every known key, newest first.
func (s *KeyRotationService) ListKeys() []KeyInfo {
	keys := s.KeyManager.ListKeys()
	out := make([]KeyInfo, len(keys))
	for i, k := range keys {
		out[i] = keyInfo(k)
	}
	return out
}

// RotateIfDue rotates the default purpose key once it is older than
// Interval. It reports whether a rotation happened.
func (s *KeyRotationService) RotateIfDue(ctx context.Context) (bool, error) {
	if s.Interval <= 0 {
		return false, nil
	}
	purpose := s.KeyManager.DefaultPurpose()
	active, err := s.KeyManager.ActiveKey(ctx, purpose)
	if err != nil {
		return false, err
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	if now.Sub(active.CreatedAt) < s.Interval {
		return false, nil
	}

	if _, err := s.RotateKey(ctx, purpose); err != nil {
		return false, err
	}
	return true, nil
}
