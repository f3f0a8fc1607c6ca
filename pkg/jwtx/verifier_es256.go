package jwtx

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ES256Verifier validates JWTs signed using ES256 (ECDSA P-256 with SHA-256).
//
// Claim checks run in a fixed order (subject, expiry, lifetime, issuer,
// audience) so the first reported failure matches what the dbaccess API
// would report for the same token.
type ES256Verifier struct {
	keys *KeySet
	opts VerifyOptions
}

// NewVerifierES256 creates a verifier using a KeySet of ECDSA P-256 public keys.
func NewVerifierES256(keys *KeySet, opts VerifyOptions) *ES256Verifier {
	return &ES256Verifier{keys: keys, opts: opts}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *ES256Verifier) Verify(tokenStr string) (*Claims, error) {
	// Claims are validated below, in our order, not the library's.
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, v.keyFunc)
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}

	if v.opts.RequireSubject {
		if err := claims.ValidateSubject(); err != nil {
			return nil, err
		}
	}
	if err := claims.ValidateExpiryAt(v.opts.now(), v.opts.Leeway); err != nil {
		return nil, err
	}
	if err := claims.ValidateMaxTTL(v.opts.MaxTTL); err != nil {
		return nil, err
	}
	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return nil, err
	}

	return claims, nil
}

func (v *ES256Verifier) keyFunc(t *jwt.Token) (any, error) {
	// Checked here rather than with WithValidMethods so the caller can
	// tell a wrong algorithm apart from a bad signature.
	if t.Method.Alg() != jwt.SigningMethodES256.Alg() {
		return nil, fmt.Errorf("%w: got %s", ErrAlgMismatch, t.Method.Alg())
	}

	var pub any
	var err error
	kid, _ := t.Header["kid"].(string)
	switch {
	case kid != "":
		pub, err = v.keys.Get(kid)
	case v.opts.RequireKID:
		return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
	default:
		pub, err = v.keys.Sole()
	}
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrUnknownKID, kid, err)
	}

	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("jwtx: invalid ECDSA key type")
	}
	return ecdsaPub, nil
}

// classifyParseError maps golang-jwt parse failures onto our sentinels
// while keeping the library error in the chain.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, ErrAlgMismatch), errors.Is(err, ErrUnknownKID):
		return err
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidSig, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// alg header names something golang-jwt has never heard of
		return fmt.Errorf("%w: %w", ErrAlgMismatch, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
