package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Controller stops and starts the service whose configuration is rewritten.
type Controller interface {
	// Stop blocks until the service is stopped or ctx is done.
	Stop(ctx context.Context) error

	// Start blocks until the service reports active or ctx is done.
	Start(ctx context.Context) error

	// IsActive reports whether the service is running.
	IsActive(ctx context.Context) (bool, error)
}

// Config describes how to reach systemd.
type Config struct {
	// Unit is the systemd unit name.
	Unit string

	// Systemctl is the systemctl binary. Default: "systemctl"
	Systemctl string

	// UseSudo runs systemctl through sudo -n.
	UseSudo bool

	// PollInterval is how often Start re-checks is-active. Default: 1s
	PollInterval time.Duration
}

// Logger defines the logging interface for the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Systemd controls a unit through systemctl.
type Systemd struct {
	config Config
	logger Logger
}

// NewSystemd creates a controller, filling in defaults for zero values.
func NewSystemd(cfg Config) *Systemd {
	if cfg.Systemctl == "" {
		cfg.Systemctl = "systemctl"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Systemd{config: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the controller.
func (s *Systemd) SetLogger(logger Logger) {
	s.logger = logger
}

// Stop runs systemctl stop, which returns once the unit has stopped.
func (s *Systemd) Stop(ctx context.Context) error {
	s.logger.Info("stopping service", "unit", s.config.Unit)
	start := time.Now()

	if _, err := s.run(ctx, "stop"); err != nil {
		return err
	}

	s.logger.Info("service stopped", "unit", s.config.Unit, "duration", time.Since(start))
	return nil
}

// Start runs systemctl start, then waits for is-active to report active.
// A unit reported as failed ends the wait at once with ErrUnitFailed.
func (s *Systemd) Start(ctx context.Context) error {
	s.logger.Info("starting service", "unit", s.config.Unit)
	start := time.Now()

	if _, err := s.run(ctx, "start"); err != nil {
		return err
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		state, err := s.state(ctx)
		if err != nil {
			return err
		}
		switch state {
		case "active":
			s.logger.Info("service started", "unit", s.config.Unit, "duration", time.Since(start))
			return nil
		case "failed":
			return s.controlError("start", "", ErrUnitFailed)
		}

		select {
		case <-ctx.Done():
			return s.controlError("start", "", ctx.Err())
		case <-ticker.C:
		}
	}
}

// IsActive runs systemctl is-active. Any state other than "active" is
// reported as not running; only failures to run systemctl are errors.
func (s *Systemd) IsActive(ctx context.Context) (bool, error) {
	state, err := s.state(ctx)
	if err != nil {
		return false, err
	}
	return state == "active", nil
}

// state returns the word printed by systemctl is-active. A non-zero exit
// is expected for every state but "active".
func (s *Systemd) state(ctx context.Context) (string, error) {
	out, err := s.run(ctx, "is-active")
	state := strings.TrimSpace(out)

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", err
	}

	s.logger.Debug("service state", "unit", s.config.Unit, "state", state)
	return state, nil
}

// run executes one systemctl verb against the unit.
func (s *Systemd) run(ctx context.Context, verb string) (string, error) {
	name, args := s.command(verb)

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // binary and unit come from the operator's config
	// Own process group so a timeout also reaps sudo's child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return string(out), s.controlError(verb, string(out), ctxErr)
		}
		return string(out), s.controlError(verb, string(out), err)
	}
	return string(out), nil
}

func (s *Systemd) command(verb string) (string, []string) {
	args := []string{verb, s.config.Unit}
	if s.config.UseSudo {
		return "sudo", append([]string{"-n", s.config.Systemctl}, args...)
	}
	return s.config.Systemctl, args
}

func (s *Systemd) controlError(op, output string, err error) *ControlError {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return &ControlError{Op: op, Unit: s.config.Unit, Output: output, Err: err}
}
