package cryptox_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/aussiebroadwan/dbaccess-devtools/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateES256Key(t *testing.T) {
	pemBytes, err := cryptox.GenerateES256Key()
	require.NoError(t, err)

	block, _ := pem.Decode(pemBytes)
	require.NotNil(t, block)
	require.Equal(t, "PRIVATE KEY", block.Type)

	key, err := cryptox.ParseES256PrivateKey(pemBytes)
	require.NoError(t, err)
	require.Equal(t, elliptic.P256(), key.Curve)
}

func TestParseES256PrivateKeyAcceptsSEC1(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	sec1 := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	parsed, err := cryptox.ParseES256PrivateKey(sec1)
	require.NoError(t, err)
	require.True(t, key.Equal(parsed))
}

func TestParseES256PrivateKeyRejects(t *testing.T) {
	t.Run("garbage", func(t *testing.T) {
		_, err := cryptox.ParseES256PrivateKey([]byte("not a pem"))
		require.ErrorContains(t, err, "invalid PEM")
	})

	t.Run("wrong curve", func(t *testing.T) {
		key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)
		der, err := x509.MarshalPKCS8PrivateKey(key)
		require.NoError(t, err)

		_, err = cryptox.ParseES256PrivateKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
		require.ErrorIs(t, err, cryptox.ErrNotP256)
	})

	t.Run("rsa key", func(t *testing.T) {
		rsaPEM, err := cryptox.GenerateRSAKeyPKCS8(2048)
		require.NoError(t, err)

		_, err = cryptox.ParseES256PrivateKey(rsaPEM)
		require.ErrorIs(t, err, cryptox.ErrNotP256)
	})

	t.Run("unexpected block type", func(t *testing.T) {
		pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte{0x30, 0x00}})

		_, err := cryptox.ParseES256PrivateKey(pkcs1)
		require.ErrorContains(t, err, "unsupported PEM type")
	})
}

func TestPublicKeyEncodings(t *testing.T) {
	pemBytes, err := cryptox.GenerateES256Key()
	require.NoError(t, err)
	key, err := cryptox.ParseES256PrivateKey(pemBytes)
	require.NoError(t, err)

	der, err := cryptox.MarshalPublicKeyDER(&key.PublicKey)
	require.NoError(t, err)

	pub, err := cryptox.ParsePublicKeyDER(der)
	require.NoError(t, err)
	require.True(t, key.PublicKey.Equal(pub))

	pubPEM, err := cryptox.MarshalPublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	block, _ := pem.Decode(pubPEM)
	require.NotNil(t, block)
	require.Equal(t, "PUBLIC KEY", block.Type)
	require.Equal(t, der, block.Bytes)

	_, err = cryptox.ParsePublicKeyDER([]byte{0x01, 0x02})
	require.Error(t, err)
}
