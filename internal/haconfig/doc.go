// Package haconfig reads and rewrites Home Assistant's persisted integration
// entries (.storage/core.config_entries).
//
// The file belongs to Home Assistant, so edits are surgical. A Document keeps
// every object's key order and every value's raw bytes; only the filter
// fields of the HomeKit entries that are explicitly changed are re-encoded.
// Serialising an unmodified Document reproduces its input when that input
// uses Home Assistant's own layout (indented JSON, trailing newline).
//
// HomeKit bridges are located by domain "homekit" and an exact title match.
package haconfig
