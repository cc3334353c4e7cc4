package apply

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBusy is returned when another apply holds the lock.
	ErrBusy = errors.New("apply: another apply is in progress")

	// ErrInvalidTransition is returned when the guard rejects an edge.
	ErrInvalidTransition = errors.New("apply: invalid state transition")

	// ErrInterrupted is wrapped when the context is cancelled mid-cycle.
	ErrInterrupted = errors.New("apply: interrupted")

	// ErrBackupCorrupt is returned when a backup no longer matches its digest.
	ErrBackupCorrupt = errors.New("apply: backup digest mismatch")

	// ErrEmptyBridge is returned before the cycle starts when an artifact
	// bridge lists no entities.
	ErrEmptyBridge = errors.New("apply: bridge has no entities")
)

// Error is returned by Run when the cycle does not complete. It records how
// far the cycle got and what state the system was left in.
type Error struct {
	Transition     string
	LastState      State
	BackupPath     string
	BackupRestored bool
	ServiceRunning bool
	Err            error
}

func (e *Error) Error() string {
	backup := "no backup taken"
	switch {
	case e.BackupRestored:
		backup = "backup restored"
	case e.BackupPath != "":
		backup = "backup not restored (" + e.BackupPath + ")"
	}

	service := "service running"
	if !e.ServiceRunning {
		service = "service NOT running"
	}

	return fmt.Sprintf("transition %s failed (last state %s); %s; %s: %v",
		e.Transition, e.LastState, backup, service, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// LookupMismatchError reports artifact bridges with no matching HomeKit entry.
type LookupMismatchError struct {
	Bridges []string
	Err     error
}

func (e *LookupMismatchError) Error() string {
	return fmt.Sprintf("bridges not usable in core.config_entries: %s (create them in Home Assistant first): %v",
		strings.Join(quoteAll(e.Bridges), ", "), e.Err)
}

func (e *LookupMismatchError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed read, backup, write, validation or restore.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func quoteAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%q", v)
	}
	return out
}
