package registry

import "errors"

var (
	// ErrRegistryNotFound is returned when a required registry file is missing.
	ErrRegistryNotFound = errors.New("registry: file not found")

	// ErrMalformedRegistry is returned when a registry file cannot be decoded.
	ErrMalformedRegistry = errors.New("registry: malformed")
)
