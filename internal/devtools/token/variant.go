package token

import (
	"fmt"
	"strings"
)

// Variant is one kind of deliberately broken token.
type Variant int

const (
	VariantExpired Variant = iota + 1
	VariantLongTTL
	VariantInvalidSubject
	VariantBadSignature
	VariantParseError
	VariantNullSubject
	VariantBlankSubject
)

var variantNames = map[Variant]string{
	VariantExpired:        "expired",
	VariantLongTTL:        "long_ttl",
	VariantInvalidSubject: "invalid_subject",
	VariantBadSignature:   "bad_signature",
	VariantParseError:     "parse_error",
	VariantNullSubject:    "null_subject",
	VariantBlankSubject:   "blank_subject",
}

// Variants lists every broken variant in menu order.
func Variants() []Variant {
	return []Variant{
		VariantExpired,
		VariantLongTTL,
		VariantInvalidSubject,
		VariantBadSignature,
		VariantParseError,
		VariantNullSubject,
		VariantBlankSubject,
	}
}

// ParseVariant accepts the snake_case name, case-insensitively, with
// dashes allowed in place of underscores.
func ParseVariant(s string) (Variant, error) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, v := range Variants() {
		if variantNames[v] == name {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Describe is the one-line purpose shown next to the token.
func (v Variant) Describe() string {
	switch v {
	case VariantExpired:
		return "expired an hour-long window five minutes ago"
	case VariantLongTTL:
		return "lifetime of 15 minutes, above the API's 5 minute cap"
	case VariantInvalidSubject:
		return "subject is not in the API's user allowlist"
	case VariantBadSignature:
		return "signed RS256 with a throwaway RSA key instead of the EC key"
	case VariantParseError:
		return "not a JWT at all"
	case VariantNullSubject:
		return "subject claim present but null"
	case VariantBlankSubject:
		return "subject is whitespace only"
	default:
		return ""
	}
}

// Expect is how the dbaccess API is supposed to refuse this variant.
func (v Variant) Expect() Reason {
	switch v {
	case VariantExpired:
		return ReasonExpired
	case VariantLongTTL:
		return ReasonTTLTooLong
	case VariantInvalidSubject:
		return ReasonNotAllowed
	case VariantBadSignature:
		return ReasonUnsupportedAlgorithm
	case VariantParseError:
		return ReasonInvalidToken
	case VariantNullSubject, VariantBlankSubject:
		return ReasonMissingSubject
	default:
		return ""
	}
}
