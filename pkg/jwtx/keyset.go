package jwtx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	ErrNoKey        = errors.New("jwtx: key not found")
	ErrAmbiguousKey = errors.New("jwtx: key set holds more than one key")
)

// KeySet holds public verification keys in memory, indexed by kid.
type KeySet struct {
	mu  sync.RWMutex
	jks JWKS
	pub map[string]any // kid: *rsa.PublicKey | *ecdsa.PublicKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{
		pub: make(map[string]any),
	}
}

// AddPublicKey registers a raw public key. An empty kid is replaced by
// the key's thumbprint, which is also what our signers put in the header.
func (k *KeySet) AddPublicKey(kid string, pub any) (JWK, error) {
	var j JWK
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		j = NewES256JWK(kid, "sig", AlgorithmES256, key)
	case *rsa.PublicKey:
		j = NewRSAJWK(kid, "sig", AlgorithmRS256, key)
	default:
		return JWK{}, fmt.Errorf("jwtx: unsupported public key type %T", pub)
	}
	if j.Kid == "" {
		j.Kid = j.Thumbprint()
	}
	return j, k.AddJWK(j)
}

// AddJWK adds a JWK to the KeySet and parses it into a usable crypto key.
func (k *KeySet) AddJWK(j JWK) error {
	key, err := parseJWKToKey(j)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pub[j.Kid] = key
	k.jks.Keys = append(k.jks.Keys, j)
	return nil
}

// Get returns the public key for the given kid.
func (k *KeySet) Get(kid string) (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if pk, ok := k.pub[kid]; ok {
		return pk, nil
	}
	return nil, ErrNoKey
}

// Sole returns the only key in the set. Tokens minted by older tooling
// carry no kid, and with a single trusted key there is nothing to choose.
func (k *KeySet) Sole() (any, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	switch len(k.pub) {
	case 0:
		return nil, ErrNoKey
	case 1:
		for _, pk := range k.pub {
			return pk, nil
		}
	}
	return nil, ErrAmbiguousKey
}

// PublicJWKS returns a snapshot of the KeySet's JWKS.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return JWKS{Keys: append([]JWK(nil), k.jks.Keys...)}
}

// parseJWKToKey converts a JWK into a crypto.PublicKey.
func parseJWKToKey(j JWK) (any, error) {
	switch j.Kty {
	case "RSA":
		nb, err := base64.RawURLEncoding.DecodeString(j.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(j.E)
		if err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(nb)
		e := new(big.Int).SetBytes(eb).Int64()
		return &rsa.PublicKey{N: n, E: int(e)}, nil

	case "EC":
		// Only P-256 is supported for now
		if j.Crv != "P-256" {
			return nil, errors.New("jwtx: unsupported EC curve " + j.Crv)
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, err
		}
		yb, err := base64.RawURLEncoding.DecodeString(j.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(xb),
			Y:     new(big.Int).SetBytes(yb),
		}, nil

	default:
		return nil, errors.New("jwtx: unsupported kty " + j.Kty)
	}
}
