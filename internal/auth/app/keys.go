package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/aussiebroadwan/idp/pkg/jwtx"
)

// InitAuthKeys builds the KeyManager over the signing key collection and
// makes sure an active key exists for the default purpose.
//
// Keys always live in the store. With the memory driver that means every
// restart generates a fresh key and invalidates outstanding tokens; with
// sqlite they survive restarts. When AUTH_KEY_ENCRYPTION_KEY is set the
// private halves are sealed with AES-GCM before they are written.
func InitAuthKeys(ctx context.Context, cfg Config, keys store.SigningKeys, logger *slog.Logger) (*jwtx.KeyManager, error) {
	var cipher *cryptox.KeyCipher
	if cfg.KeyEncryptionKey != "" {
		c, err := cryptox.NewKeyCipher([]byte(cfg.KeyEncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize key cipher: %w", err)
		}
		cipher = c
		logger.Info("signing keys are encrypted at rest")
	} else if cfg.Storage != StorageMemory {
		logger.Warn("AUTH_KEY_ENCRYPTION_KEY not set, private keys are stored unencrypted")
	}

	keyManager, err := jwtx.NewKeyManager(jwtx.KeyManagerOptions{
		Store:   store.NewKeyStoreAdapter(keys),
		RSABits: cfg.RSABits,
		Cipher:  cipher,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key manager: %w", err)
	}

	if err := keyManager.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to load signing keys: %w", err)
	}

	active, err := keyManager.ActiveKey(ctx, keyManager.DefaultPurpose())
	if err != nil {
		return nil, fmt.Errorf("no active signing key: %w", err)
	}

	logger.Info("signing keys loaded",
		"kid", active.KID,
		"purpose", keyManager.DefaultPurpose(),
		"num_keys", len(keyManager.ListKeys()),
		"storage", cfg.Storage,
	)
	if cfg.Storage == StorageMemory {
		logger.Warn("memory storage: signing keys and tokens do not survive a restart")
	}

	return keyManager, nil
}
