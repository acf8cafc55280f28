package jwtx

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/idx"
)

// DefaultPurpose is the key purpose used for OAuth2 / OIDC tokens.
const DefaultPurpose = "oauth"

// SigningKeyRecord is the persisted form of a signing key. It lives here
// rather than in the domain package so jwtx stays free of store imports.
type SigningKeyRecord struct {
	ID        string
	KID       string
	Purpose   string
	Algorithm string
	PublicKey []byte
	// PrivateKey is a PKCS8 PEM, or AES-GCM sealed PEM when Encrypted is set.
	PrivateKey []byte
	Encrypted  bool
	Active     bool
	CreatedAt  time.Time
}

// KeyStore is the key collection the manager reads and writes.
type KeyStore interface {
	// ListSigningKeys returns every key, active or not.
	ListSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)

	// ListActiveSigningKeys returns active keys for purpose.
	ListActiveSigningKeys(ctx context.Context, purpose string) ([]SigningKeyRecord, error)

	// GetSigningKeyByKID returns ErrKeyNotFound for unknown kids.
	GetSigningKeyByKID(ctx context.Context, kid string) (SigningKeyRecord, error)

	// ActivateSigningKey inserts rec as the active key for rec.Purpose and
	// deactivates every other active key of that purpose in one atomic step.
	ActivateSigningKey(ctx context.Context, rec SigningKeyRecord) error
}

// Key is a cached signing key. Values are never mutated once cached; a
// deactivation replaces the pointer.
type Key struct {
	KID       string
	Purpose   string
	Active    bool
	CreatedAt time.Time
	Public    *rsa.PublicKey

	private *rsa.PrivateKey
	jwk     JWK
}

// KeyManagerOptions configures a KeyManager.
type KeyManagerOptions struct {
	Store KeyStore

	// RSABits is the modulus size of generated keys. Defaults to 2048.
	RSABits int

	// Cipher seals private keys at rest when set.
	Cipher *cryptox.KeyCipher

	// DefaultPurpose defaults to DefaultPurpose.
	DefaultPurpose string

	Logger *slog.Logger
	Now    func() time.Time
}

// KeyManager owns the signing key lifecycle per purpose. The store is the
// source of truth; the in-memory cache is refreshed on miss, after rotation
// and through Refresh.
type KeyManager struct {
	store          KeyStore
	bits           int
	cipher         *cryptox.KeyCipher
	defaultPurpose string
	logger         *slog.Logger
	now            func() time.Time

	mu     sync.RWMutex
	keys   map[string]*Key   // kid -> key
	active map[string]string // purpose -> kid

	rotateMu sync.Mutex
}

// NewKeyManager builds a manager. Call Initialize before use.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil {
		return nil, errors.New("jwtx: Store is required")
	}
	if opts.RSABits == 0 {
		opts.RSABits = cryptox.MinRSABits
	}
	if opts.RSABits < cryptox.MinRSABits {
		return nil, cryptox.ErrWeakKey
	}
	if opts.DefaultPurpose == "" {
		opts.DefaultPurpose = DefaultPurpose
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &KeyManager{
		store:          opts.Store,
		bits:           opts.RSABits,
		cipher:         opts.Cipher,
		defaultPurpose: opts.DefaultPurpose,
		logger:         opts.Logger,
		now:            opts.Now,
		keys:           make(map[string]*Key),
		active:         make(map[string]string),
	}, nil
}

// Initialize loads every key record and generates an active key for the
// default purpose when none exists.
func (km *KeyManager) Initialize(ctx context.Context) error {
	if err := km.Refresh(ctx); err != nil {
		return err
	}

	km.mu.RLock()
	_, ok := km.active[km.defaultPurpose]
	km.mu.RUnlock()
	if ok {
		return nil
	}

	km.logger.Info("no active signing key, generating one", "purpose", km.defaultPurpose)
	_, err := km.RotateKey(ctx, km.defaultPurpose)
	return err
}

// Refresh re-reads all key records from the store, picking up rotations made
// by other processes sharing it.
//
// It holds the rotation lock so a snapshot taken before a rotation cannot
// overwrite the rotated cache.
func (km *KeyManager) Refresh(ctx context.Context) error {
	km.rotateMu.Lock()
	defer km.rotateMu.Unlock()

	records, err := km.store.ListSigningKeys(ctx)
	if err != nil {
		return fmt.Errorf("jwtx: list signing keys: %w", err)
	}

	keys := make(map[string]*Key, len(records))
	active := make(map[string]string)
	for _, rec := range records {
		key, err := km.load(rec)
		if err != nil {
			km.logger.Error("skipping unreadable signing key", "kid", rec.KID, "error", err)
			continue
		}
		keys[key.KID] = key
		if !key.Active {
			continue
		}
		// More than one active key can only come from an older racing
		// writer; the newest wins.
		if cur, ok := active[key.Purpose]; ok {
			km.logger.Warn("multiple active signing keys", "purpose", key.Purpose, "kids", []string{cur, key.KID})
			if keys[cur].CreatedAt.After(key.CreatedAt) {
				continue
			}
		}
		active[key.Purpose] = key.KID
	}

	km.mu.Lock()
	km.keys = keys
	km.active = active
	km.mu.Unlock()
	return nil
}

// RotateKey generates a fresh key for purpose, makes it the only active key
// of that purpose and returns it. Previous keys stay verifiable.
func (km *KeyManager) RotateKey(ctx context.Context, purpose string) (*Key, error) {
	if purpose == "" {
		purpose = km.defaultPurpose
	}

	km.rotateMu.Lock()
	defer km.rotateMu.Unlock()

	pair, err := GenerateKeyPair(km.bits)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate key: %w", err)
	}

	rec := SigningKeyRecord{
		ID:         idx.New().String(),
		KID:        pair.KID,
		Purpose:    purpose,
		Algorithm:  AlgorithmRS256,
		PublicKey:  pair.PublicPEM,
		PrivateKey: pair.PrivatePEM,
		Active:     true,
		CreatedAt:  km.now().UTC(),
	}
	if km.cipher != nil {
		sealed, err := km.cipher.Encrypt(pair.PrivatePEM)
		if err != nil {
			return nil, fmt.Errorf("jwtx: seal private key: %w", err)
		}
		rec.PrivateKey = sealed
		rec.Encrypted = true
	}

	if err := km.store.ActivateSigningKey(ctx, rec); err != nil {
		return nil, fmt.Errorf("jwtx: activate signing key: %w", err)
	}

	key := &Key{
		KID:       pair.KID,
		Purpose:   purpose,
		Active:    true,
		CreatedAt: rec.CreatedAt,
		Public:    &pair.Private.PublicKey,
		private:   pair.Private,
		jwk:       NewRSAJWK(pair.KID, &pair.Private.PublicKey),
	}

	km.mu.Lock()
	for kid, k := range km.keys {
		if k.Purpose == purpose && k.Active {
			km.keys[kid] = k.deactivated()
		}
	}
	km.keys[key.KID] = key
	km.active[purpose] = key.KID
	km.mu.Unlock()

	km.logger.Info("rotated signing key", "purpose", purpose, "kid", key.KID)
	return key, nil
}

// GetKey resolves kid from the cache, then from the store. It returns
// (nil, nil) when the kid is unknown.
func (km *KeyManager) GetKey(ctx context.Context, kid string) (*Key, error) {
	km.mu.RLock()
	key, ok := km.keys[kid]
	km.mu.RUnlock()
	if ok {
		return key, nil
	}

	rec, err := km.store.GetSigningKeyByKID(ctx, kid)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jwtx: get signing key: %w", err)
	}
	key, err = km.load(rec)
	if err != nil {
		return nil, err
	}

	km.mu.Lock()
	km.keys[key.KID] = key
	km.mu.Unlock()
	return key, nil
}

// ActiveKey returns the active key for purpose, pulling from the store when
// the cache has none.
func (km *KeyManager) ActiveKey(ctx context.Context, purpose string) (*Key, error) {
	if purpose == "" {
		purpose = km.defaultPurpose
	}

	km.mu.RLock()
	kid, ok := km.active[purpose]
	key := km.keys[kid]
	km.mu.RUnlock()
	if ok && key != nil {
		return key, nil
	}

	records, err := km.store.ListActiveSigningKeys(ctx, purpose)
	if err != nil {
		return nil, fmt.Errorf("jwtx: list active keys: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoActiveKey
	}
	slices.SortFunc(records, func(a, b SigningKeyRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	key, err = km.load(records[0])
	if err != nil {
		return nil, err
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	// A rotation may have filled the slot while the store was read.
	if cur, ok := km.active[purpose]; ok {
		if k := km.keys[cur]; k != nil {
			return k, nil
		}
	}
	km.keys[key.KID] = key
	km.active[purpose] = key.KID
	return key, nil
}

// CreateToken signs payload with the active key of purpose. iat and exp are
// set from expiresIn ("<int><s|m|h|d>"); jti is added when missing.
func (km *KeyManager) CreateToken(ctx context.Context, payload Claims, expiresIn, purpose string) (string, error) {
	ttl, err := ParseExpiry(expiresIn)
	if err != nil {
		return "", err
	}
	key, err := km.ActiveKey(ctx, purpose)
	if err != nil {
		return "", err
	}
	if key.private == nil {
		return "", fmt.Errorf("%w: private key for %s unavailable", ErrNoActiveKey, key.KID)
	}

	now := km.now()
	claims := payload.Clone()
	claims[ClaimIssuedAt] = now.Unix()
	claims[ClaimExpiresAt] = now.Add(ttl).Unix()
	if _, ok := claims[ClaimJTI]; !ok {
		claims[ClaimJTI] = NewJTI()
	}
	return Encode(claims, key.KID, key.private)
}

// VerifyToken returns the claims of a valid token, or nil. Malformed
// tokens, unknown kids, bad signatures and expiry are not told apart.
func (km *KeyManager) VerifyToken(ctx context.Context, token string) Claims {
	kid, err := PeekKID(token)
	if err != nil {
		km.logger.DebugContext(ctx, "token rejected", "reason", err)
		return nil
	}
	key, err := km.GetKey(ctx, kid)
	if err != nil || key == nil {
		km.logger.DebugContext(ctx, "token rejected", "reason", ErrUnknownKID, "kid", kid, "error", err)
		return nil
	}
	claims, err := Decode(token, key.Public, km.now())
	if err != nil {
		km.logger.DebugContext(ctx, "token rejected", "reason", err, "kid", kid)
		return nil
	}
	return claims
}

// JWKS publishes the active key of every purpose. Retired keys still verify
// locally but are not advertised.
func (km *KeyManager) JWKS() JWKS {
	km.mu.RLock()
	defer km.mu.RUnlock()

	out := JWKS{Keys: make([]JWK, 0, len(km.active))}
	for _, kid := range km.active {
		if key, ok := km.keys[kid]; ok {
			out.Keys = append(out.Keys, key.jwk)
		}
	}
	slices.SortFunc(out.Keys, func(a, b JWK) int { return strings.Compare(a.Kid, b.Kid) })
	return out
}

// ListKeys returns every cached key, newest first.
func (km *KeyManager) ListKeys() []*Key {
	km.mu.RLock()
	out := make([]*Key, 0, len(km.keys))
	for _, k := range km.keys {
		out = append(out, k)
	}
	km.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Key) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

// IsReady reports whether the default purpose has an active key cached.
func (km *KeyManager) IsReady() bool {
	km.mu.RLock()
	defer km.mu.RUnlock()
	_, ok := km.active[km.defaultPurpose]
	return ok
}

// DefaultPurpose returns the purpose used when none is given.
func (km *KeyManager) DefaultPurpose() string { return km.defaultPurpose }

// JWK returns the public JWK of the key.
func (k *Key) JWK() JWK { return k.jwk }

func (k *Key) deactivated() *Key {
	cp := *k
	cp.Active = false
	cp.private = nil
	return &cp
}

// load parses a record. Private material is only opened for active keys.
func (km *KeyManager) load(rec SigningKeyRecord) (*Key, error) {
	if rec.Algorithm != "" && rec.Algorithm != AlgorithmRS256 {
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q", rec.Algorithm)
	}
	pub, err := cryptox.ParseRSAPublicKeyPEM(rec.PublicKey)
	if err != nil {
		return nil, err
	}
	key := &Key{
		KID:       rec.KID,
		Purpose:   rec.Purpose,
		Active:    rec.Active,
		CreatedAt: rec.CreatedAt,
		Public:    pub,
		jwk:       NewRSAJWK(rec.KID, pub),
	}
	if !rec.Active {
		return key, nil
	}

	privPEM := rec.PrivateKey
	if rec.Encrypted {
		if km.cipher == nil {
			return nil, fmt.Errorf("jwtx: key %s is encrypted but no cipher is configured", rec.KID)
		}
		privPEM, err = km.cipher.Decrypt(rec.PrivateKey)
		if err != nil {
			return nil, err
		}
	}
	key.private, err = cryptox.ParseRSAPrivateKeyPEM(privPEM)
	if err != nil {
		return nil, err
	}
	if !key.private.PublicKey.Equal(pub) {
		return nil, fmt.Errorf("jwtx: key %s private and public halves differ", rec.KID)
	}
	return key, nil
}
