// Package keys owns the single static P-256 key pair the dbaccess API is
// configured to trust. The pair lives as three files in one directory:
// the PKCS8 private key, the public key as PEM and the public key as DER,
// the last being what the API actually loads.
package keys

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/dbaccess-devtools/pkg/cryptox"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/slogx"
)

const (
	PrivateKeyFile   = "ec256-private.pem"
	PublicKeyPEMFile = "ec256-public.pem"
	PublicKeyDERFile = "ec256-public.der"

	dirMode     fs.FileMode = 0o700
	privateMode fs.FileMode = 0o600
	publicMode  fs.FileMode = 0o644
)

// Paths locates the key files.
type Paths struct {
	Dir        string
	PrivatePEM string
	PublicPEM  string
	PublicDER  string
}

// DefaultPaths lays the three files out under dir with their fixed names.
func DefaultPaths(dir string) Paths {
	return Paths{
		Dir:        dir,
		PrivatePEM: filepath.Join(dir, PrivateKeyFile),
		PublicPEM:  filepath.Join(dir, PublicKeyPEMFile),
		PublicDER:  filepath.Join(dir, PublicKeyDERFile),
	}
}

// Provider creates and loads the key pair. It holds no key material;
// every load goes back to disk so an out-of-band deletion is noticed.
type Provider struct {
	paths Paths
}

func NewProvider(paths Paths) *Provider {
	return &Provider{paths: paths}
}

func (p *Provider) Paths() Paths { return p.paths }

// Exists reports whether the private key file is present. Public files
// are derived and can always be rebuilt from it.
func (p *Provider) Exists() bool {
	_, err := os.Stat(p.paths.PrivatePEM)
	return err == nil
}

// EnsureKeyPair generates a key pair when the private key is missing and
// reports whether it did. An existing private key is never rewritten; if
// only the public files are gone they are rebuilt from it.
func (p *Provider) EnsureKeyPair(ctx context.Context) (bool, error) {
	logger := slogx.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		return false, err
	}

	if p.Exists() {
		key, err := p.LoadPrivateKey()
		if err != nil {
			return false, err
		}
		repaired, err := p.repairPublic(key)
		if err != nil {
			return false, err
		}
		if repaired {
			logger.Warn("public key files were missing and have been rebuilt", "dir", p.paths.Dir)
		}
		return false, nil
	}

	if err := os.MkdirAll(p.paths.Dir, dirMode); err != nil {
		return false, fmt.Errorf("keys: create key dir: %w", err)
	}

	privPEM, err := cryptox.GenerateES256Key()
	if err != nil {
		return false, fmt.Errorf("keys: generate: %w", err)
	}
	key, err := cryptox.ParseES256PrivateKey(privPEM)
	if err != nil {
		return false, fmt.Errorf("keys: generate: %w", err)
	}

	// Public files go first so a crash never leaves a private key whose
	// public half the API cannot find.
	if err := p.writePublic(key); err != nil {
		return false, err
	}
	if err := os.WriteFile(p.paths.PrivatePEM, privPEM, privateMode); err != nil {
		return false, fmt.Errorf("keys: write private key: %w", err)
	}

	logger.Info("generated key pair", "dir", p.paths.Dir)
	return true, nil
}

// LoadPrivateKey reads and parses the private key.
func (p *Provider) LoadPrivateKey() (*ecdsa.PrivateKey, error) {
	data, err := p.read(p.paths.PrivatePEM)
	if err != nil {
		return nil, err
	}
	key, err := cryptox.ParseES256PrivateKey(data)
	if err != nil {
		return nil, &KeyError{Path: p.paths.PrivatePEM, Err: fmt.Errorf("%w: %w", ErrKeyParse, err)}
	}
	return key, nil
}

// LoadPublicKey reads the DER public key, the same file the API reads.
func (p *Provider) LoadPublicKey() (*ecdsa.PublicKey, error) {
	data, err := p.read(p.paths.PublicDER)
	if err != nil {
		return nil, err
	}
	pub, err := cryptox.ParsePublicKeyDER(data)
	if err != nil {
		return nil, &KeyError{Path: p.paths.PublicDER, Err: fmt.Errorf("%w: %w", ErrKeyParse, err)}
	}
	return pub, nil
}

// Remove deletes all three key files. Missing files are not an error.
func (p *Provider) Remove() error {
	for _, path := range []string{p.paths.PrivatePEM, p.paths.PublicPEM, p.paths.PublicDER} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("keys: remove %s: %w", path, err)
		}
	}
	return nil
}

func (p *Provider) read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &KeyError{Path: path, Err: ErrKeyNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("keys: read %s: %w", path, err)
	}
	return data, nil
}

func (p *Provider) writePublic(key *ecdsa.PrivateKey) error {
	pubPEM, err := cryptox.MarshalPublicKeyPEM(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("keys: encode public key: %w", err)
	}
	pubDER, err := cryptox.MarshalPublicKeyDER(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("keys: encode public key: %w", err)
	}
	if err := os.WriteFile(p.paths.PublicPEM, pubPEM, publicMode); err != nil {
		return fmt.Errorf("keys: write public key: %w", err)
	}
	if err := os.WriteFile(p.paths.PublicDER, pubDER, publicMode); err != nil {
		return fmt.Errorf("keys: write public key: %w", err)
	}
	return nil
}

func (p *Provider) repairPublic(key *ecdsa.PrivateKey) (bool, error) {
	_, pemErr := os.Stat(p.paths.PublicPEM)
	_, derErr := os.Stat(p.paths.PublicDER)
	if pemErr == nil && derErr == nil {
		return false, nil
	}
	return true, p.writePublic(key)
}
