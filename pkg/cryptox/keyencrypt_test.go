package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestKeyCipher_RoundTrip(t *testing.T) {
	t.Parallel()

	c, err := cryptox.NewKeyCipher([]byte("test-master-key-for-encryption-12345"))
	require.NoError(t, err)

	pair, err := cryptox.GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	sealed, err := c.Encrypt(pair.PrivatePEM)
	require.NoError(t, err)
	require.NotEqual(t, pair.PrivatePEM, sealed)

	again, err := c.Encrypt(pair.PrivatePEM)
	require.NoError(t, err)
	require.NotEqual(t, sealed, again, "nonce must differ per encryption")

	opened, err := c.Decrypt(sealed)
	require.NoError(t, err)
	require.Equal(t, pair.PrivatePEM, opened)
}

func TestKeyCipher_WrongKey(t *testing.T) {
	t.Parallel()

	a, err := cryptox.NewKeyCipher([]byte("key-a"))
	require.NoError(t, err)
	b, err := cryptox.NewKeyCipher([]byte("key-b"))
	require.NoError(t, err)

	sealed, err := a.Encrypt([]byte("private"))
	require.NoError(t, err)

	_, err = b.Decrypt(sealed)
	require.Error(t, err)

	_, err = a.Decrypt([]byte("short"))
	require.Error(t, err)
}

func TestNewKeyCipher_Empty(t *testing.T) {
	t.Parallel()

	_, err := cryptox.NewKeyCipher(nil)
	require.Error(t, err)
}
