package keys

import (
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound = errors.New("keys: key file not found")
	ErrKeyParse    = errors.New("keys: key file could not be parsed")
)

// KeyError ties a key failure to the file that caused it. Unwrap yields
// the package sentinel, so errors.Is(err, ErrKeyNotFound) keeps working.
type KeyError struct {
	Path string
	Err  error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err, e.Path)
}

func (e *KeyError) Unwrap() error { return e.Err }
