package keys_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/keys"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) *keys.Provider {
	t.Helper()
	return keys.NewProvider(keys.DefaultPaths(filepath.Join(t.TempDir(), "devtools", "jwt")))
}

func TestEnsureKeyPairCreatesFiles(t *testing.T) {
	p := newProvider(t)
	require.False(t, p.Exists())

	created, err := p.EnsureKeyPair(context.Background())
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, p.Exists())

	paths := p.Paths()
	for path, mode := range map[string]os.FileMode{
		paths.PrivatePEM: 0o600,
		paths.PublicPEM:  0o644,
		paths.PublicDER:  0o644,
	} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		require.Equal(t, mode, info.Mode().Perm(), path)
	}

	dirInfo, err := os.Stat(paths.Dir)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	pemBytes, err := os.ReadFile(paths.PublicPEM)
	require.NoError(t, err)
	require.Contains(t, string(pemBytes), "-----BEGIN PUBLIC KEY-----")
}

func TestEnsureKeyPairIsIdempotent(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	_, err := p.EnsureKeyPair(ctx)
	require.NoError(t, err)
	first, err := os.ReadFile(p.Paths().PrivatePEM)
	require.NoError(t, err)

	created, err := p.EnsureKeyPair(ctx)
	require.NoError(t, err)
	require.False(t, created)

	second, err := os.ReadFile(p.Paths().PrivatePEM)
	require.NoError(t, err)
	require.Equal(t, sha256.Sum256(first), sha256.Sum256(second))
}

func TestEnsureKeyPairRebuildsMissingPublicFiles(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	_, err := p.EnsureKeyPair(ctx)
	require.NoError(t, err)
	require.NoError(t, os.Remove(p.Paths().PublicDER))

	created, err := p.EnsureKeyPair(ctx)
	require.NoError(t, err)
	require.False(t, created)

	priv, err := p.LoadPrivateKey()
	require.NoError(t, err)
	pub, err := p.LoadPublicKey()
	require.NoError(t, err)
	require.True(t, priv.PublicKey.Equal(pub))
}

func TestEnsureKeyPairHonoursCancelledContext(t *testing.T) {
	p := newProvider(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.EnsureKeyPair(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, p.Exists())
}

func TestLoadPrivateKeyNotFound(t *testing.T) {
	p := newProvider(t)

	_, err := p.LoadPrivateKey()
	require.ErrorIs(t, err, keys.ErrKeyNotFound)

	var keyErr *keys.KeyError
	require.True(t, errors.As(err, &keyErr))
	require.Equal(t, p.Paths().PrivatePEM, keyErr.Path)

	_, err = p.LoadPublicKey()
	require.ErrorIs(t, err, keys.ErrKeyNotFound)
}

func TestLoadPrivateKeyParseError(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, os.MkdirAll(p.Paths().Dir, 0o700))
	require.NoError(t, os.WriteFile(p.Paths().PrivatePEM, []byte("definitely not a key"), 0o600))
	require.NoError(t, os.WriteFile(p.Paths().PublicDER, []byte{0x30, 0x01}, 0o644))

	_, err := p.LoadPrivateKey()
	require.ErrorIs(t, err, keys.ErrKeyParse)

	_, err = p.LoadPublicKey()
	require.ErrorIs(t, err, keys.ErrKeyParse)

	// a broken private key is reported, never silently replaced
	_, err = p.EnsureKeyPair(context.Background())
	require.ErrorIs(t, err, keys.ErrKeyParse)
}

func TestRoundTripAfterReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "jwt")
	_, err := keys.NewProvider(keys.DefaultPaths(dir)).EnsureKeyPair(context.Background())
	require.NoError(t, err)

	// fresh provider, nothing cached
	reloaded := keys.NewProvider(keys.DefaultPaths(dir))
	priv, err := reloaded.LoadPrivateKey()
	require.NoError(t, err)
	pub, err := reloaded.LoadPublicKey()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("round trip"))
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)
	require.True(t, ecdsa.VerifyASN1(pub, digest[:], sig))
}

func TestRemove(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, p.Remove())

	_, err := p.EnsureKeyPair(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.Remove())
	require.False(t, p.Exists())

	_, err = os.Stat(p.Paths().PublicDER)
	require.True(t, os.IsNotExist(err))
}
