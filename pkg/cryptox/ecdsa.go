package cryptox

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// PEM block types written and accepted for P-256 keys.
const (
	pemTypePKCS8      = "PRIVATE KEY"
	pemTypeSEC1       = "EC PRIVATE KEY"
	pemTypePublicKey  = "PUBLIC KEY"
	curveNameP256     = "P-256"
	errPrefixECDSAKey = "cryptox: ecdsa key"
)

// ErrNotP256 is returned when a parsed key is ECDSA but on another curve,
// or not ECDSA at all.
var ErrNotP256 = errors.New("cryptox: not a P-256 ECDSA key")

// GenerateES256Key generates a new ECDSA P-256 private key.
// ES256 uses the P-256 curve (also known as secp256r1 or prime256v1).
// Returns the private key in PEM format (PKCS8).
func GenerateES256Key() ([]byte, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate ECDSA key: %w", err)
	}
	return MarshalES256PrivateKey(privateKey)
}

// MarshalES256PrivateKey encodes key as an unencrypted PKCS8 PEM block.
func MarshalES256PrivateKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal PKCS8 key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePKCS8, Bytes: der}), nil
}

// ParseES256PrivateKey reads a P-256 private key from PEM. Both PKCS8
// ("PRIVATE KEY") and SEC1 ("EC PRIVATE KEY") blocks are accepted, the
// latter is what OpenSSL's "traditional" format produces.
func ParseES256PrivateKey(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("%s: invalid PEM", errPrefixECDSAKey)
	}

	var key *ecdsa.PrivateKey
	switch block.Type {
	case pemTypeSEC1:
		k, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: parse SEC1: %w", errPrefixECDSAKey, err)
		}
		key = k
	case pemTypePKCS8:
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: parse PKCS8: %w", errPrefixECDSAKey, err)
		}
		k, ok := priv.(*ecdsa.PrivateKey)
		if !ok {
			return nil, ErrNotP256
		}
		key = k
	default:
		return nil, fmt.Errorf("%s: unsupported PEM type %q", errPrefixECDSAKey, block.Type)
	}

	if key.Curve.Params().Name != curveNameP256 {
		return nil, ErrNotP256
	}
	return key, nil
}

// MarshalPublicKeyDER encodes pub as a DER SubjectPublicKeyInfo. This is
// the binary form the dbaccess API loads its verification key from.
func MarshalPublicKeyDER(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to marshal public key: %w", err)
	}
	return der, nil
}

// MarshalPublicKeyPEM is MarshalPublicKeyDER wrapped in a "PUBLIC KEY" block.
func MarshalPublicKeyPEM(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := MarshalPublicKeyDER(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: der}), nil
}

// ParsePublicKeyDER reads a DER SubjectPublicKeyInfo holding a P-256 key.
func ParsePublicKeyDER(der []byte) (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("cryptox: parse public key: %w", err)
	}
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok || key.Curve.Params().Name != curveNameP256 {
		return nil, ErrNotP256
	}
	return key, nil
}
