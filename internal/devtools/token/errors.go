package token

import "errors"

var (
	ErrKeysMissing    = errors.New("token: signing keys missing")
	ErrUnknownSubject = errors.New("token: unknown subject")
	ErrUnknownVariant = errors.New("token: unknown broken variant")
)
