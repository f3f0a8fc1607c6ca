package jwtx

import (
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the registered claims the dbaccess API reads: sub, iat, exp,
// iss and aud. There are no private claims; anything extra would be
// ignored by the API and only make test tokens harder to read.
type Claims struct {
	jwt.RegisteredClaims
}

// NewClaims builds a claim set valid from now for ttl.
func NewClaims(subject string, ttl time.Duration, issuer string, audience []string, now time.Time) Claims {
	return NewClaimsWindow(subject, now, now.Add(ttl), issuer, audience)
}

// NewClaimsWindow builds a claim set with explicit iat and exp. Used for
// tokens whose lifetime is deliberately wrong.
func NewClaimsWindow(subject string, issuedAt, expiresAt time.Time, issuer string, audience []string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

// TTL returns exp - iat, or zero when either is missing.
func (c *Claims) TTL() time.Duration {
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(c.IssuedAt.Time)
}

// ValidateSubject rejects an absent, null or whitespace-only subject.
func (c *Claims) ValidateSubject() error {
	if strings.TrimSpace(c.Subject) == "" {
		return ErrMissingSubject
	}
	return nil
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateExpiryAt ensures the token hasn't expired (exp) and isn't
// before nbf at now, with a grace period for clock skew.
func (c *Claims) ValidateExpiryAt(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}

// ValidateMaxTTL rejects tokens whose lifetime exceeds limit. The API caps
// lifetimes at five minutes no matter what exp says.
func (c *Claims) ValidateMaxTTL(limit time.Duration) error {
	if limit <= 0 {
		return nil
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if c.TTL() > limit {
		return ErrTTLTooLong
	}
	return nil
}
