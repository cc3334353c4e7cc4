package filter

import (
	"errors"
	"fmt"
)

// ErrInvalidPattern is wrapped by every *PatternError.
var ErrInvalidPattern = errors.New("filter: invalid pattern")

// PatternError reports an excluded pattern that does not compile.
type PatternError struct {
	Pattern string
	Index   int
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("excluded_patterns[%d] %q: %v", e.Index, e.Pattern, e.Err)
}

// Unwrap lets errors.Is match both ErrInvalidPattern and the regexp error.
func (e *PatternError) Unwrap() []error {
	return []error{ErrInvalidPattern, e.Err}
}
