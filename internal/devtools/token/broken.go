package token

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/pkg/cryptox"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/jwtx"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ParseErrorToken has two segments, so no JWS parser can split it.
	ParseErrorToken = "invalid.token"

	DisallowedSubject = "not-allowed"
	BlankSubject      = "  "

	LongTTL = 15 * time.Minute

	expiredWindow = time.Hour
	expiredAgo    = 5 * time.Minute
	throwawayBits = 2048
)

// Broken is a deliberately invalid token. Subject, IssuedAt and ExpiresAt
// describe what went into it and are zero when the variant has no claims.
type Broken struct {
	Variant   Variant
	Token     string
	Algorithm string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Label is the variant name shown with the token.
func (b Broken) Label() string { return b.Variant.String() }

// IssueBroken builds the token for v. A malformed result is the point, so
// errors only come from infrastructure: key policy, unreadable keys, or
// the system random source.
func (i *Issuer) IssueBroken(ctx context.Context, v Variant) (Broken, error) {
	now := i.now()
	out := Broken{Variant: v, Algorithm: jwtx.AlgorithmES256}

	var claims jwt.Claims
	switch v {
	case VariantExpired:
		c := jwtx.NewClaimsWindow(i.subject(0), now.Add(-expiredWindow), now.Add(-expiredAgo), i.cfg.Issuer, i.cfg.Audience)
		claims = c
		out.Subject, out.IssuedAt, out.ExpiresAt = c.Subject, c.IssuedAt.Time, c.ExpiresAt.Time

	case VariantLongTTL:
		c := jwtx.NewClaims(i.subject(1), LongTTL, i.cfg.Issuer, i.cfg.Audience, now)
		claims = c
		out.Subject, out.IssuedAt, out.ExpiresAt = c.Subject, c.IssuedAt.Time, c.ExpiresAt.Time

	case VariantInvalidSubject:
		c := jwtx.NewClaims(DisallowedSubject, i.cfg.TTL, i.cfg.Issuer, i.cfg.Audience, now)
		claims = c
		out.Subject, out.IssuedAt, out.ExpiresAt = c.Subject, c.IssuedAt.Time, c.ExpiresAt.Time

	case VariantBadSignature:
		return i.badSignature(ctx, now)

	case VariantParseError:
		out.Token = ParseErrorToken
		out.Algorithm = ""
		return out, nil

	case VariantNullSubject:
		c := jwtx.NewClaims("", i.cfg.TTL, i.cfg.Issuer, i.cfg.Audience, now)
		// RegisteredClaims omits an empty sub; the API must see an explicit null.
		claims = jwt.MapClaims{
			"sub": nil,
			"iat": c.IssuedAt,
			"exp": c.ExpiresAt,
			"iss": c.Issuer,
			"aud": c.Audience,
		}
		out.IssuedAt, out.ExpiresAt = c.IssuedAt.Time, c.ExpiresAt.Time

	case VariantBlankSubject:
		c := jwtx.NewClaims(BlankSubject, i.cfg.TTL, i.cfg.Issuer, i.cfg.Audience, now)
		claims = c
		out.Subject, out.IssuedAt, out.ExpiresAt = c.Subject, c.IssuedAt.Time, c.ExpiresAt.Time

	default:
		return Broken{}, fmt.Errorf("%w: %s", ErrUnknownVariant, v)
	}

	key, _, err := i.signingKey(ctx)
	if err != nil {
		return Broken{}, err
	}
	signer, err := jwtx.NewSignerES256FromKey("", key)
	if err != nil {
		return Broken{}, fmt.Errorf("token: signer: %w", err)
	}
	out.Token, err = signer.Sign(claims)
	if err != nil {
		return Broken{}, fmt.Errorf("token: sign %s: %w", v, err)
	}

	slogx.FromContext(ctx).Info("issued broken token", "variant", v.String())
	return out, nil
}

// badSignature signs a valid-looking claim set with a throwaway RSA key
// that is generated per call and never written anywhere.
func (i *Issuer) badSignature(ctx context.Context, now time.Time) (Broken, error) {
	pemKey, err := cryptox.GenerateRSAKeyPKCS8(throwawayBits)
	if err != nil {
		return Broken{}, fmt.Errorf("token: throwaway key: %w", err)
	}
	signer, err := jwtx.NewSignerRS256("", pemKey)
	if err != nil {
		return Broken{}, fmt.Errorf("token: throwaway key: %w", err)
	}

	c := jwtx.NewClaims(i.subject(0), i.cfg.TTL, i.cfg.Issuer, i.cfg.Audience, now)
	tok, err := signer.Sign(c)
	if err != nil {
		return Broken{}, fmt.Errorf("token: sign %s: %w", VariantBadSignature, err)
	}

	slogx.FromContext(ctx).Info("issued broken token", "variant", VariantBadSignature.String())
	return Broken{
		Variant:   VariantBadSignature,
		Token:     tok,
		Algorithm: jwtx.AlgorithmRS256,
		Subject:   c.Subject,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// subject picks a configured subject by position, wrapping around when
// fewer are configured.
func (i *Issuer) subject(n int) string {
	return i.cfg.Subjects[n%len(i.cfg.Subjects)]
}
