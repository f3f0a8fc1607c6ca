package jwtx

import (
	"crypto/ecdsa"

	"github.com/golang-jwt/jwt/v5"
)

// Supported JWT signing algorithms
const (
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
)

// Signer is our interface for anything that can sign JWTs.
//
// Sign accepts any jwt.Claims so callers can hand over a hand-built
// jwt.MapClaims when they need a shape our Claims struct cannot express
// (an explicit null, for example).
type Signer interface {
	Alg() string
	KID() string
	Sign(jwt.Claims) (string, error)
	PublicJWK() JWK
	Validate() error
}

// NewSignerRS256 creates an RS256 signer from PKCS8 PEM bytes. An empty kid is
// replaced with the key's RFC 7638 thumbprint.
func NewSignerRS256(kid string, pemKey []byte) (Signer, error) {
	s, err := newRS256Signer(kid, pemKey)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewSignerES256FromKey wraps an already parsed P-256 key. An empty kid is
// replaced with the key's RFC 7638 thumbprint.
func NewSignerES256FromKey(kid string, key *ecdsa.PrivateKey) (Signer, error) {
	s, err := newES256SignerFromKey(kid, key)
	if err != nil {
		return nil, err
	}
	return s, nil
}
