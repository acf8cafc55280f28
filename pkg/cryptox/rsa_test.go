package cryptox_test

import (
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/aussiebroadwan/idp/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateRSAKeyPair(t *testing.T) {
	t.Parallel()

	pair, err := cryptox.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	require.Equal(t, 2048, pair.Private.N.BitLen())

	block, _ := pem.Decode(pair.PrivatePEM)
	require.NotNil(t, block)
	require.Equal(t, "PRIVATE KEY", block.Type)

	block, _ = pem.Decode(pair.PublicPEM)
	require.NotNil(t, block)
	require.Equal(t, "PUBLIC KEY", block.Type)

	pub, err := cryptox.ParseRSAPublicKeyPEM(pair.PublicPEM)
	require.NoError(t, err)
	require.True(t, pub.Equal(&pair.Private.PublicKey))

	priv, err := cryptox.ParseRSAPrivateKeyPEM(pair.PrivatePEM)
	require.NoError(t, err)
	require.True(t, priv.Equal(pair.Private))
}

func TestGenerateRSAKeyPair_RejectsWeakSizes(t *testing.T) {
	t.Parallel()

	for _, bits := range []int{0, 512, 1024, 2047} {
		_, err := cryptox.GenerateRSAKeyPair(bits)
		require.ErrorIs(t, err, cryptox.ErrWeakKey, "bits=%d", bits)
	}
}

func TestParseRSAPrivateKeyPEM_PKCS1(t *testing.T) {
	t.Parallel()

	pair, err := cryptox.GenerateRSAKeyPair(2048)
	require.NoError(t, err)

	pkcs1 := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(pair.Private),
	})

	key, err := cryptox.ParseRSAPrivateKeyPEM(pkcs1)
	require.NoError(t, err)
	require.True(t, key.Equal(pair.Private))
}

func TestParseRSAPublicKeyPEM_Invalid(t *testing.T) {
	t.Parallel()

	_, err := cryptox.ParseRSAPublicKeyPEM([]byte("not a pem"))
	require.Error(t, err)

	pair, err := cryptox.GenerateRSAKeyPair(2048)
	require.NoError(t, err)
	_, err = cryptox.ParseRSAPublicKeyPEM(pair.PrivatePEM)
	require.Error(t, err)
}
