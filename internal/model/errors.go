package model

import (
	"errors"
	"strings"
)

// Error kinds surfaced to callers. Concrete errors wrap one of these together
// with the underlying cause, so errors.Is works against both.
var (
	ErrInvalidStoreID         = errors.New("invalid store id")
	ErrConfigNotFound         = errors.New("database configuration not found")
	ErrUnsupportedBackendType = errors.New("unsupported database type")
	ErrConnection             = errors.New("connection error")
	ErrUnsupportedOperation   = errors.New("unsupported operation")
	ErrFieldCipher            = errors.New("field cipher failure")
	ErrMissingCredential      = errors.New("missing required credential")
)

// ValidStoreID rejects empty identifiers and the sentinel strings that
// clients send when a store has not been selected yet.
func ValidStoreID(storeID string) bool {
	switch strings.TrimSpace(storeID) {
	case "", "undefined", "null":
		return false
	}
	return true
}
