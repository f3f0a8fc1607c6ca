package jwtx_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/pkg/cryptox"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestRS256Signer(t *testing.T) {
	pemKey, err := cryptox.GenerateRSAKeyPKCS8(2048)
	require.NoError(t, err)

	signer, err := jwtx.NewSignerRS256("", pemKey)
	require.NoError(t, err)
	require.NoError(t, signer.Validate())
	require.Equal(t, "RS256", signer.Alg())
	require.Equal(t, signer.PublicJWK().Thumbprint(), signer.KID())

	token, err := signer.Sign(jwtx.NewClaims("alice", time.Minute, exampleIssuer, nil, time.Now()))
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	// signature is genuine RS256, just not something the API trusts
	pub := signer.PublicJWK()
	ks := jwtx.NewKeySet()
	require.NoError(t, ks.AddJWK(pub))
	rsaPub, err := ks.Get(signer.KID())
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return rsaPub, nil },
		jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)
}

func TestRS256SignerRejectsGarbage(t *testing.T) {
	_, err := jwtx.NewSignerRS256("k", []byte("garbage"))
	require.ErrorContains(t, err, "invalid PEM")

	ecPEM, err := cryptox.GenerateES256Key()
	require.NoError(t, err)
	_, err = jwtx.NewSignerRS256("k", ecPEM)
	require.ErrorContains(t, err, "not RSA")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	_, err = jwtx.NewSignerRS256("k", pkcs1)
	require.ErrorContains(t, err, "requires PKCS8")
}
