package jwtx

import (
	"errors"
	"time"
)

// VerifyOptions captures common expectations used by verifiers.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience values the token must contain (claims.aud). Empty means "don't care".
	Audience []string

	// Leeway allows small clock skew when validating exp/nbf.
	Leeway time.Duration

	// RequireKID enforces presence of the "kid" header. Without it a
	// kid-less token is checked against the set's only key.
	RequireKID bool

	// RequireSubject rejects tokens with a missing or blank sub.
	RequireSubject bool

	// MaxTTL caps exp - iat. Zero disables the check.
	MaxTTL time.Duration

	// Now overrides the clock, mostly for tests.
	Now func() time.Time
}

func (o VerifyOptions) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrMissingSubject = errors.New("jwtx: missing subject")
	ErrIssuer         = errors.New("jwtx: issuer mismatch")
	ErrAudience       = errors.New("jwtx: audience mismatch")
	ErrExpired        = errors.New("jwtx: token expired")
	ErrNotYetValid    = errors.New("jwtx: token not yet valid")
	ErrTTLTooLong     = errors.New("jwtx: token lifetime too long")
	ErrInvalidClaim   = errors.New("jwtx: invalid claims")
)
