package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTimeout is wrapped by a *ControlError when the operation ran out of time.
	ErrTimeout = errors.New("service: timed out")

	// ErrUnitFailed is wrapped by a *ControlError when systemd reports the
	// unit as failed while starting.
	ErrUnitFailed = errors.New("service: unit failed")
)

// ControlError reports a failed stop, start or status call.
type ControlError struct {
	Op     string
	Unit   string
	Output string
	Err    error
}

func (e *ControlError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Unit, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *ControlError) Unwrap() error {
	return e.Err
}
