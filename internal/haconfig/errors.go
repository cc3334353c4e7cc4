package haconfig

import "errors"

var (
	// ErrBridgeNotFound is returned when no HomeKit entry has the requested title.
	ErrBridgeNotFound = errors.New("haconfig: bridge not found")

	// ErrAmbiguousBridge is returned when several HomeKit entries share a title.
	ErrAmbiguousBridge = errors.New("haconfig: bridge title is not unique")

	// ErrInvalidDocument is returned when the file does not have the expected structure.
	ErrInvalidDocument = errors.New("haconfig: invalid document")

	// ErrFilterMismatch is returned by Verify when a bridge's filter differs from what was written.
	ErrFilterMismatch = errors.New("haconfig: filter mismatch")
)
