package token

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// KeyPolicy decides what Issue does when no key pair exists yet.
type KeyPolicy string

const (
	// KeyPolicyAuto generates the key pair on first use.
	KeyPolicyAuto KeyPolicy = "auto"
	// KeyPolicyRequire refuses to issue until keys are generated explicitly.
	KeyPolicyRequire KeyPolicy = "require"
)

func ParseKeyPolicy(s string) (KeyPolicy, error) {
	switch p := KeyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case KeyPolicyAuto, KeyPolicyRequire:
		return p, nil
	default:
		return "", fmt.Errorf("token: unknown key policy %q (want auto or require)", s)
	}
}

const (
	DefaultIssuer   = "dbaccess-api"
	DefaultAudience = "dbaccess-client"
	DefaultTTL      = 5 * time.Minute

	// MaxTTL is the longest lifetime the dbaccess API accepts.
	MaxTTL = 5 * time.Minute
)

// DefaultSubjects are the users seeded into the API's allowlist.
var DefaultSubjects = []string{"alice", "bob", "charlie"}

// Config is the claim shape shared by the issuer and the verifier. Treat a
// Config as a value: NewIssuer and NewVerifier take their own copy.
type Config struct {
	Issuer    string
	Audience  []string
	Subjects  []string
	TTL       time.Duration
	KeyPolicy KeyPolicy
}

func DefaultConfig() Config {
	return Config{
		Issuer:    DefaultIssuer,
		Audience:  []string{DefaultAudience},
		Subjects:  slices.Clone(DefaultSubjects),
		TTL:       DefaultTTL,
		KeyPolicy: KeyPolicyAuto,
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Issuer) == "" {
		errs = append(errs, errors.New("issuer is empty"))
	}
	if len(c.Audience) == 0 {
		errs = append(errs, errors.New("audience is empty"))
	}
	if len(c.Subjects) == 0 {
		errs = append(errs, errors.New("no subjects configured"))
	}
	for _, s := range c.Subjects {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, errors.New("blank subject configured"))
			break
		}
	}
	switch {
	case c.TTL <= 0:
		errs = append(errs, fmt.Errorf("ttl must be positive, got %s", c.TTL))
	case c.TTL > MaxTTL:
		errs = append(errs, fmt.Errorf("ttl %s exceeds the %s the API accepts", c.TTL, MaxTTL))
	}
	if _, err := ParseKeyPolicy(string(c.KeyPolicy)); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("token: invalid config: %w", err)
	}
	return nil
}

// Allowed reports whether subject is one of the configured test users.
func (c Config) Allowed(subject string) bool {
	return slices.Contains(c.Subjects, subject)
}

func (c Config) clone() Config {
	c.Audience = slices.Clone(c.Audience)
	c.Subjects = slices.Clone(c.Subjects)
	return c
}
