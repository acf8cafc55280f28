package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/idp/internal/auth/domain"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
)

// KeyStoreAdapter exposes a SigningKeys collection as a jwtx.KeyStore, so
// jwtx never imports the domain or store packages.
type KeyStoreAdapter struct {
	keys SigningKeys
}

func NewKeyStoreAdapter(keys SigningKeys) *KeyStoreAdapter {
	return &KeyStoreAdapter{keys: keys}
}

func (a *KeyStoreAdapter) ListSigningKeys(ctx context.Context) ([]jwtx.SigningKeyRecord, error) {
	keys, err := a.keys.ListSigningKeys(ctx)
	if err != nil {
		return nil, err
	}
	return toRecords(keys), nil
}

func (a *KeyStoreAdapter) ListActiveSigningKeys(ctx context.Context, purpose string) ([]jwtx.SigningKeyRecord, error) {
	keys, err := a.keys.ListActiveSigningKeys(ctx, purpose)
	if err != nil {
		return nil, err
	}
	return toRecords(keys), nil
}

func (a *KeyStoreAdapter) GetSigningKeyByKID(ctx context.Context, kid string) (jwtx.SigningKeyRecord, error) {
	key, err := a.keys.GetSigningKeyByKID(ctx, kid)
	if errors.Is(err, ErrNotFound) {
		return jwtx.SigningKeyRecord{}, jwtx.ErrKeyNotFound
	}
	if err != nil {
		return jwtx.SigningKeyRecord{}, err
	}
	return toRecord(key), nil
}

func (a *KeyStoreAdapter) ActivateSigningKey(ctx context.Context, rec jwtx.SigningKeyRecord) error {
	return a.keys.ActivateSigningKey(ctx, domain.SigningKey{
		ID:         rec.ID,
		KID:        rec.KID,
		Purpose:    rec.Purpose,
		Algorithm:  rec.Algorithm,
		PublicKey:  rec.PublicKey,
		PrivateKey: rec.PrivateKey,
		Encrypted:  rec.Encrypted,
		Active:     rec.Active,
		CreatedAt:  rec.CreatedAt,
	})
}

func toRecords(keys []domain.SigningKey) []jwtx.SigningKeyRecord {
	out := make([]jwtx.SigningKeyRecord, len(keys))
	for i, k := range keys {
		out[i] = toRecord(k)
	}
	return out
}

func toRecord(k domain.SigningKey) jwtx.SigningKeyRecord {
	return jwtx.SigningKeyRecord{
		ID:         k.ID,
		KID:        k.KID,
		Purpose:    k.Purpose,
		Algorithm:  k.Algorithm,
		PublicKey:  k.PublicKey,
		PrivateKey: k.PrivateKey,
		Encrypted:  k.Encrypted,
		Active:     k.Active,
		CreatedAt:  k.CreatedAt,
	}
}
