package token_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/keys"
	"github.com/aussiebroadwan/dbaccess-devtools/internal/devtools/token"
	"github.com/aussiebroadwan/dbaccess-devtools/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	provider *keys.Provider
	issuer   *token.Issuer
	verifier *token.Verifier
}

func newFixture(t *testing.T, mutate ...func(*token.Config)) *fixture {
	t.Helper()
	cfg := token.DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	provider := keys.NewProvider(keys.DefaultPaths(filepath.Join(t.TempDir(), "jwt")))
	issuer, err := token.NewIssuer(cfg, provider)
	require.NoError(t, err)
	return &fixture{provider: provider, issuer: issuer}
}

// withVerifier loads the DER public key from disk, the way the API does.
func (f *fixture) withVerifier(t *testing.T) *token.Verifier {
	t.Helper()
	pub, err := f.provider.LoadPublicKey()
	require.NoError(t, err)
	v, err := token.NewVerifier(f.issuer.Config(), pub)
	require.NoError(t, err)
	f.verifier = v
	return v
}

func decodePayload(t *testing.T, tok string) map[string]any {
	t.Helper()
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func decodeHeader(t *testing.T, tok string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(strings.Split(tok, ".")[0])
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestIssueForEverySubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, subject := range token.DefaultSubjects {
		t.Run(subject, func(t *testing.T) {
			issued, err := f.issuer.Issue(ctx, subject)
			require.NoError(t, err)

			payload := decodePayload(t, issued.Token)
			iat, exp := payload["iat"].(float64), payload["exp"].(float64)
			require.Equal(t, float64(300), exp-iat)
			require.Equal(t, "dbaccess-api", payload["iss"])
			require.Equal(t, []any{"dbaccess-client"}, payload["aud"])
			require.Equal(t, subject, payload["sub"])

			require.Equal(t, subject, issued.Claims.Subject)
			require.Equal(t, 5*time.Minute, issued.Claims.TTL())
			require.Equal(t, "ES256", decodeHeader(t, issued.Token)["alg"])
		})
	}
}

func TestIssueVerifiesUnderMatchingKeyOnly(t *testing.T) {
	f := newFixture(t)
	issued, err := f.issuer.Issue(context.Background(), "alice")
	require.NoError(t, err)

	claims, err := f.withVerifier(t).Verify(issued.Token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)

	otherPEM, err := cryptox.GenerateES256Key()
	require.NoError(t, err)
	other, err := cryptox.ParseES256PrivateKey(otherPEM)
	require.NoError(t, err)

	v, err := token.NewVerifier(token.DefaultConfig(), &other.PublicKey)
	require.NoError(t, err)
	_, err = v.Verify(issued.Token)

	var rej *token.Rejection
	require.True(t, errors.As(err, &rej))
	require.Equal(t, token.ReasonInvalidSignature, rej.Reason)
}

func TestIssueUnknownSubject(t *testing.T) {
	f := newFixture(t)

	_, err := f.issuer.Issue(context.Background(), "mallory")
	require.ErrorIs(t, err, token.ErrUnknownSubject)
	require.False(t, f.provider.Exists(), "rejected subject must not provision keys")
}

func TestKeyPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("auto provisions once", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.issuer.Issue(ctx, "bob")
		require.NoError(t, err)
		require.True(t, first.KeyCreated)

		second, err := f.issuer.Issue(ctx, "bob")
		require.NoError(t, err)
		require.False(t, second.KeyCreated)
		require.Equal(t, first.KeyID, second.KeyID)
	})

	t.Run("require refuses without keys", func(t *testing.T) {
		f := newFixture(t, func(c *token.Config) { c.KeyPolicy = token.KeyPolicyRequire })

		_, err := f.issuer.Issue(ctx, "bob")
		require.ErrorIs(t, err, token.ErrKeysMissing)
		require.False(t, f.provider.Exists())

		_, err = f.provider.EnsureKeyPair(ctx)
		require.NoError(t, err)

		issued, err := f.issuer.Issue(ctx, "bob")
		require.NoError(t, err)
		require.False(t, issued.KeyCreated)
	})

	t.Run("require still allows keyless variants", func(t *testing.T) {
		f := newFixture(t, func(c *token.Config) { c.KeyPolicy = token.KeyPolicyRequire })

		_, err := f.issuer.IssueBroken(ctx, token.VariantParseError)
		require.NoError(t, err)
		_, err = f.issuer.IssueBroken(ctx, token.VariantBadSignature)
		require.NoError(t, err)

		_, err = f.issuer.IssueBroken(ctx, token.VariantExpired)
		require.ErrorIs(t, err, token.ErrKeysMissing)
	})
}

func TestBrokenVariantsAreRejectedForTheirReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.provider.EnsureKeyPair(ctx)
	require.NoError(t, err)
	v := f.withVerifier(t)

	for _, variant := range token.Variants() {
		t.Run(variant.String(), func(t *testing.T) {
			broken, err := f.issuer.IssueBroken(ctx, variant)
			require.NoError(t, err)
			require.Equal(t, variant, broken.Variant)
			require.Equal(t, variant.String(), broken.Label())
			require.NotEmpty(t, broken.Token)
			require.NotEmpty(t, variant.Describe())

			_, err = v.Verify(broken.Token)
			var rej *token.Rejection
			require.True(t, errors.As(err, &rej), "variant %s must not verify", variant)
			require.Equal(t, variant.Expect(), rej.Reason)
		})
	}
}

func TestBrokenExpired(t *testing.T) {
	f := newFixture(t)
	broken, err := f.issuer.IssueBroken(context.Background(), token.VariantExpired)
	require.NoError(t, err)

	payload := decodePayload(t, broken.Token)
	exp := time.Unix(int64(payload["exp"].(float64)), 0)
	require.True(t, exp.Before(time.Now()))
	require.Equal(t, "alice", payload["sub"])
	require.Equal(t, float64(55*60), payload["exp"].(float64)-payload["iat"].(float64))
}

func TestBrokenLongTTL(t *testing.T) {
	f := newFixture(t)
	broken, err := f.issuer.IssueBroken(context.Background(), token.VariantLongTTL)
	require.NoError(t, err)

	payload := decodePayload(t, broken.Token)
	require.Equal(t, float64(15*60), payload["exp"].(float64)-payload["iat"].(float64))
	require.Equal(t, "bob", payload["sub"])
}

func TestBrokenBadSignature(t *testing.T) {
	f := newFixture(t)
	broken, err := f.issuer.IssueBroken(context.Background(), token.VariantBadSignature)
	require.NoError(t, err)
	require.Equal(t, "RS256", broken.Algorithm)
	require.Equal(t, "RS256", decodeHeader(t, broken.Token)["alg"])

	// claims themselves are fine; only the signature is untrusted
	payload := decodePayload(t, broken.Token)
	require.Equal(t, "alice", payload["sub"])
	require.False(t, f.provider.Exists(), "bad_signature never touches the EC key")

	_, err = f.provider.EnsureKeyPair(context.Background())
	require.NoError(t, err)
	pub, err := f.provider.LoadPublicKey()
	require.NoError(t, err)

	_, err = jwt.Parse(broken.Token, func(*jwt.Token) (any, error) { return pub, nil })
	require.Error(t, err)

	v, err := token.NewVerifier(token.DefaultConfig(), pub)
	require.NoError(t, err)
	_, err = v.Verify(broken.Token)
	var rej *token.Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, "Unsupported JWS algorithm RS256, must be ES256", string(rej.Reason))
}

func TestBrokenParseError(t *testing.T) {
	f := newFixture(t)
	broken, err := f.issuer.IssueBroken(context.Background(), token.VariantParseError)
	require.NoError(t, err)

	require.Less(t, len(strings.Split(broken.Token, ".")), 3)

	_, _, err = jwt.NewParser().ParseUnverified(broken.Token, jwt.MapClaims{})
	require.ErrorIs(t, err, jwt.ErrTokenMalformed)
}

func TestBrokenNullSubjectIsExplicitNull(t *testing.T) {
	f := newFixture(t)
	broken, err := f.issuer.IssueBroken(context.Background(), token.VariantNullSubject)
	require.NoError(t, err)

	payload := decodePayload(t, broken.Token)
	sub, present := payload["sub"]
	require.True(t, present)
	require.Nil(t, sub)
	require.Equal(t, []any{"dbaccess-client"}, payload["aud"])
}

func TestBrokenBlankSubject(t *testing.T) {
	f := newFixture(t)
	broken, err := f.issuer.IssueBroken(context.Background(), token.VariantBlankSubject)
	require.NoError(t, err)
	require.Equal(t, "  ", decodePayload(t, broken.Token)["sub"])
}

func TestIssueBrokenUnknownVariant(t *testing.T) {
	f := newFixture(t)
	_, err := f.issuer.IssueBroken(context.Background(), token.Variant(99))
	require.ErrorIs(t, err, token.ErrUnknownVariant)
}

func TestParseVariant(t *testing.T) {
	for _, v := range token.Variants() {
		got, err := token.ParseVariant(v.String())
		require.NoError(t, err)
		require.Equal(t, v, got)
	}

	got, err := token.ParseVariant(" Bad-Signature ")
	require.NoError(t, err)
	require.Equal(t, token.VariantBadSignature, got)

	_, err = token.ParseVariant("truncated")
	require.ErrorIs(t, err, token.ErrUnknownVariant)

	require.Equal(t, "Variant(42)", token.Variant(42).String())
	require.Len(t, token.Variants(), 7)
}

func TestVerifierClaimOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.issuer.Issue(ctx, "charlie")
	require.NoError(t, err)

	v := f.withVerifier(t)
	v.Now = func() time.Time { return time.Now().Add(10 * time.Minute) }

	_, err = v.Verify(issued.Token)
	var rej *token.Rejection
	require.True(t, errors.As(err, &rej))
	require.Equal(t, token.ReasonExpired, rej.Reason)
	require.Equal(t, 401, rej.Reason.Status())

	_, err = v.Verify("")
	require.True(t, errors.As(err, &rej))
	require.Equal(t, token.ReasonInvalidToken, rej.Reason)

	require.Equal(t, 403, token.ReasonNotAllowed.Status())
}

func TestVerifierWithOtherIssuerConfig(t *testing.T) {
	f := newFixture(t, func(c *token.Config) { c.Issuer = "staging-api" })
	issued, err := f.issuer.Issue(context.Background(), "alice")
	require.NoError(t, err)

	pub, err := f.provider.LoadPublicKey()
	require.NoError(t, err)
	v, err := token.NewVerifier(token.DefaultConfig(), pub)
	require.NoError(t, err)

	_, err = v.Verify(issued.Token)
	var rej *token.Rejection
	require.True(t, errors.As(err, &rej))
	require.Equal(t, token.ReasonInvalidIssuer, rej.Reason)
}

func TestConfig(t *testing.T) {
	require.NoError(t, token.DefaultConfig().Validate())

	bad := token.Config{KeyPolicy: "sometimes"}
	err := bad.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "issuer is empty")
	require.ErrorContains(t, err, "ttl must be positive")
	require.ErrorContains(t, err, "unknown key policy")

	_, err = token.NewIssuer(bad, nil)
	require.Error(t, err)

	long := token.DefaultConfig()
	long.TTL = time.Hour
	require.ErrorContains(t, long.Validate(), "ttl 1h0m0s exceeds the 5m0s the API accepts")
	_, err = token.NewIssuer(long, nil)
	require.Error(t, err)

	short := token.DefaultConfig()
	short.TTL = time.Minute
	require.NoError(t, short.Validate())

	p, err := token.ParseKeyPolicy("REQUIRE")
	require.NoError(t, err)
	require.Equal(t, token.KeyPolicyRequire, p)

	// the issuer keeps its own copy
	cfg := token.DefaultConfig()
	issuer, err := token.NewIssuer(cfg, nil)
	require.NoError(t, err)
	cfg.Subjects[0] = "eve"
	require.Equal(t, "alice", issuer.Config().Subjects[0])
}
