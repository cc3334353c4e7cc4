package assign

import (
	"errors"
	"fmt"
)

// ErrCapacityExceeded is wrapped by every *CapacityError.
var ErrCapacityExceeded = errors.New("assign: bridge capacity exceeded")

// ConfigError reports a malformed or ambiguous bridge/area configuration.
type ConfigError struct {
	Area    string
	Bridges []string
	Msg     string
}

func (e *ConfigError) Error() string {
	if e.Area == "" {
		return "bridge config: " + e.Msg
	}
	return fmt.Sprintf("bridge config: area %q %s %q", e.Area, e.Msg, e.Bridges)
}

// CapacityError reports a bridge holding more entities than the limit.
type CapacityError struct {
	Bridge string
	Count  int
	Limit  int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("bridge %q has %d entities, exceeds limit of %d by %d", e.Bridge, e.Count, e.Limit, e.Count-e.Limit)
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}
