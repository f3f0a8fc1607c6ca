// Package token mints the JWTs used to exercise the dbaccess API by hand:
// valid ES256 tokens for the seeded test users, and a closed set of
// deliberately broken ones, each of which the API must refuse.
package token

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/keys"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/jwtx"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/slogx"
)

// KeySource is the part of keys.Provider the issuer needs.
type KeySource interface {
	Exists() bool
	EnsureKeyPair(ctx context.Context) (bool, error)
	LoadPrivateKey() (*ecdsa.PrivateKey, error)
}

// Issued is a freshly signed valid token and the claims inside it.
type Issued struct {
	Token      string
	Claims     jwtx.Claims
	KeyID      string
	KeyCreated bool
}

type Issuer struct {
	cfg  Config
	keys KeySource

	// Now is the issuer's clock. Tests pin it.
	Now func() time.Time
}

func NewIssuer(cfg Config, src KeySource) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Issuer{
		cfg:  cfg.clone(),
		keys: src,
		Now:  time.Now,
	}, nil
}

// Config returns a copy of the issuer's configuration.
func (i *Issuer) Config() Config { return i.cfg.clone() }

// Issue signs a token for subject valid for the configured TTL.
func (i *Issuer) Issue(ctx context.Context, subject string) (Issued, error) {
	if !i.cfg.Allowed(subject) {
		return Issued{}, fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}

	key, created, err := i.signingKey(ctx)
	if err != nil {
		return Issued{}, err
	}
	signer, err := jwtx.NewSignerES256FromKey("", key)
	if err != nil {
		return Issued{}, fmt.Errorf("token: signer: %w", err)
	}

	claims := jwtx.NewClaims(subject, i.cfg.TTL, i.cfg.Issuer, i.cfg.Audience, i.now())
	tok, err := signer.Sign(claims)
	if err != nil {
		return Issued{}, fmt.Errorf("token: sign: %w", err)
	}

	slogx.FromContext(ctx).Info("issued token",
		"subject", subject,
		"kid", signer.KID(),
		"expires_at", claims.ExpiresAt.Time,
	)

	return Issued{
		Token:      tok,
		Claims:     claims,
		KeyID:      signer.KID(),
		KeyCreated: created,
	}, nil
}

// signingKey applies the key policy and returns the private key, plus
// whether this call had to create it.
func (i *Issuer) signingKey(ctx context.Context) (*ecdsa.PrivateKey, bool, error) {
	var created bool
	switch i.cfg.KeyPolicy {
	case KeyPolicyRequire:
		if !i.keys.Exists() {
			return nil, false, ErrKeysMissing
		}
	default:
		var err error
		created, err = i.keys.EnsureKeyPair(ctx)
		if err != nil {
			return nil, false, fmt.Errorf("token: provision keys: %w", err)
		}
	}

	key, err := i.keys.LoadPrivateKey()
	if errors.Is(err, keys.ErrKeyNotFound) {
		return nil, false, fmt.Errorf("%w: %w", ErrKeysMissing, err)
	}
	if err != nil {
		return nil, false, fmt.Errorf("token: load key: %w", err)
	}
	return key, created, nil
}

func (i *Issuer) now() time.Time {
	return i.Now().UTC()
}
