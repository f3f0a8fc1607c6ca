package cryptox

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PrometheusBcryptCost matches what `htpasswd -B` and the Prometheus docs use.
const PrometheusBcryptCost = 10

// HashPrometheusPassword returns a bcrypt hash suitable for the
// basic_auth_users section of a Prometheus web config.
func HashPrometheusPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("cryptox: empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PrometheusBcryptCost)
	if err != nil {
		return "", fmt.Errorf("cryptox: bcrypt: %w", err)
	}
	return string(hash), nil
}
