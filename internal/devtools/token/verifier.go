package token

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/pkg/jwtx"
)

// Reason is the message the dbaccess API attaches to a refused token.
type Reason string

const (
	ReasonInvalidToken         Reason = "Invalid token"
	ReasonUnsupportedAlgorithm Reason = "Unsupported JWS algorithm RS256, must be ES256"
	ReasonInvalidSignature     Reason = "Invalid signature"
	ReasonMissingSubject       Reason = "Missing subject"
	ReasonExpired              Reason = "Token expired"
	ReasonTTLTooLong           Reason = "Token TTL too long"
	ReasonInvalidIssuer        Reason = "Invalid issuer"
	ReasonInvalidAudience      Reason = "Invalid audience"
	ReasonNotAllowed           Reason = "Forbidden"
)

// Status is the HTTP status the API answers with for this reason.
func (r Reason) Status() int {
	if r == ReasonNotAllowed {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// Rejection is returned by Verifier.Verify for a token the API would refuse.
type Rejection struct {
	Reason Reason
	Err    error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("token rejected: %s", r.Reason)
}

func (r *Rejection) Unwrap() error { return r.Err }

// Verifier applies the API's acceptance rules locally, against the same
// DER public key the API loads. Checks run in the API's order, so the
// reported reason is the one the API would give.
type Verifier struct {
	cfg Config
	v   *jwtx.ES256Verifier

	// Now is the verifier's clock. Tests pin it.
	Now func() time.Time
}

func NewVerifier(cfg Config, pub *ecdsa.PublicKey) (*Verifier, error) {
	if pub == nil {
		return nil, errors.New("token: verifier needs a public key")
	}
	ks := jwtx.NewKeySet()
	if _, err := ks.AddPublicKey("", pub); err != nil {
		return nil, fmt.Errorf("token: verifier key: %w", err)
	}

	v := &Verifier{cfg: cfg.clone(), Now: time.Now}
	v.v = jwtx.NewVerifierES256(ks, jwtx.VerifyOptions{
		Issuer:         cfg.Issuer,
		Audience:       cfg.Audience,
		RequireSubject: true,
		MaxTTL:         MaxTTL,
		Now:            func() time.Time { return v.Now() },
	})
	return v, nil
}

// Verify returns the token's claims, or a *Rejection.
func (v *Verifier) Verify(token string) (*jwtx.Claims, error) {
	claims, err := v.v.Verify(token)
	if err != nil {
		return nil, &Rejection{Reason: reasonFor(err), Err: err}
	}
	// The API consults its user allowlist only once the token itself is good.
	if !v.cfg.Allowed(claims.Subject) {
		return nil, &Rejection{
			Reason: ReasonNotAllowed,
			Err:    fmt.Errorf("%w: %q", ErrUnknownSubject, claims.Subject),
		}
	}
	return claims, nil
}

func reasonFor(err error) Reason {
	switch {
	case errors.Is(err, jwtx.ErrAlgMismatch):
		return ReasonUnsupportedAlgorithm
	case errors.Is(err, jwtx.ErrInvalidSig), errors.Is(err, jwtx.ErrUnknownKID):
		return ReasonInvalidSignature
	case errors.Is(err, jwtx.ErrMissingSubject):
		return ReasonMissingSubject
	case errors.Is(err, jwtx.ErrExpired):
		return ReasonExpired
	case errors.Is(err, jwtx.ErrTTLTooLong):
		return ReasonTTLTooLong
	case errors.Is(err, jwtx.ErrIssuer):
		return ReasonInvalidIssuer
	case errors.Is(err, jwtx.ErrAudience):
		return ReasonInvalidAudience
	default:
		return ReasonInvalidToken
	}
}
