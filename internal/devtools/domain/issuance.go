package domain

import (
	"time"

	"github.com/aussiebroadwan/dbaccess-devtools/pkg/idx"
)

// KindValid marks a normally issued token. Broken tokens use their
// variant name as the kind.
const KindValid = "valid"

// Issuance is the history entry for one minted token. The token itself is
// never stored, only its fingerprint, so the history can match a token
// pasted from a request log without becoming a token store.
type Issuance struct {
	ID          idx.ID
	Kind        string
	Subject     string
	Algorithm   string
	IssuedAt    *time.Time // nil when the token carries no claims
	ExpiresAt   *time.Time
	Fingerprint string
	CreatedAt   time.Time
}

// Valid reports whether this entry is a normally issued token.
func (i Issuance) Valid() bool { return i.Kind == KindValid }

// ExpiredAt reports whether the token's exp is at or before t.
func (i Issuance) ExpiredAt(t time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(t)
}
