package apply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homekit-bridge-manager/internal/assign"
	"github.com/nerrad567/homekit-bridge-manager/internal/atomicfile"
	"github.com/nerrad567/homekit-bridge-manager/internal/haconfig"
	"github.com/nerrad567/homekit-bridge-manager/internal/mapping"
	"github.com/nerrad567/homekit-bridge-manager/internal/service"
)

// preflight is the transition name used for failures before the cycle starts.
const preflight = "pre-flight"

// probeTimeout bounds the status check made after a failed stop.
const probeTimeout = 10 * time.Second

// Options configures a Machine.
type Options struct {
	// ConfigPath is the core.config_entries file to rewrite.
	ConfigPath string

	// Capacity is the per-bridge limit checked before anything is touched.
	// Zero means assign.DefaultCapacity.
	Capacity int

	StopTimeout  time.Duration
	StartTimeout time.Duration

	DryRun bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Logger defines the logging interface for the apply cycle.
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

// Machine runs apply cycles. A Machine is not safe for concurrent use;
// cross-process exclusion comes from the lock file.
type Machine struct {
	ctl    service.Controller
	opts   Options
	logger Logger

	// write and verify are swapped in tests to fail the mutate and
	// validate transitions.
	write  func(path string, data []byte, mode os.FileMode) error
	verify func(data []byte, expected map[string][]string) error

	state    State
	report   *Report
	backup   *backup
	original []byte
	mode     os.FileMode
	written  bool
}

// New creates a Machine, filling in defaults for zero values.
func New(ctl service.Controller, opts Options) *Machine {
	if opts.Capacity <= 0 {
		opts.Capacity = assign.DefaultCapacity
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Minute
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 2 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Machine{
		ctl:    ctl,
		opts:   opts,
		logger: noopLogger{},
		write:  atomicfile.Write,
		verify: haconfig.Verify,
		state:  StateIdle,
	}
}

// SetLogger sets the logger for the machine.
func (m *Machine) SetLogger(logger Logger) {
	m.logger = logger
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Run applies the artifact. The artifact must already be loaded; it is not
// re-read during the cycle.
//
// Parameters:
//   - ctx: Cancelling it rolls the cycle back at the next transition
//   - a: Loaded mapping artifact
//
// Returns:
//   - *Report: Always non-nil, also on failure
//   - error: An *Error naming the failed transition, whether the backup was
//     restored and whether the service is running
func (m *Machine) Run(ctx context.Context, a *mapping.Artifact) (*Report, error) {
	m.state = StateIdle
	m.backup = nil
	m.original = nil
	m.written = false
	m.report = &Report{
		RunID:          uuid.NewString(),
		DryRun:         m.opts.DryRun,
		State:          StateIdle,
		LastState:      StateIdle,
		ServiceRunning: true,
		StartedAt:      m.opts.Now(),
	}
	defer func() { m.report.FinishedAt = m.opts.Now() }()

	m.logger.Info("apply starting",
		"run_id", m.report.RunID,
		"config", m.opts.ConfigPath,
		"bridges", len(a.Bridges),
		"dry_run", m.opts.DryRun,
	)

	if err := m.checkArtifact(a); err != nil {
		return m.fail(preflight, err)
	}

	if m.opts.DryRun {
		return m.dryRun(a)
	}

	lock, err := acquireLock(LockPath(m.opts.ConfigPath))
	if err != nil {
		return m.fail(preflight, err)
	}
	defer func() {
		if err := lock.release(); err != nil {
			m.logger.Warn("releasing apply lock", "error", err)
		}
	}()

	if err := m.stop(ctx); err != nil {
		return m.fail(transitionName(StateIdle, StateStopped), err)
	}
	if err := m.takeBackup(ctx); err != nil {
		return m.fail(transitionName(StateStopped, StateBackedUp), err)
	}
	expected, err := m.mutate(ctx, a)
	if err != nil {
		return m.fail(transitionName(StateBackedUp, StateMutated), err)
	}
	if err := m.validate(ctx, expected); err != nil {
		return m.fail(transitionName(StateMutated, StateValidated), err)
	}
	if err := m.restart(ctx); err != nil {
		return m.fail(transitionName(StateValidated, StateRestarted), err)
	}

	m.logger.Info("apply complete",
		"run_id", m.report.RunID,
		"entities", m.report.EntityCount(),
		"backup", m.report.BackupPath,
	)
	return m.report, nil
}

// checkArtifact validates the artifact and enforces the capacity limit.
// A bridge with no entities is refused; Home Assistant treats an empty
// include list as "expose everything".
func (m *Machine) checkArtifact(a *mapping.Artifact) error {
	if err := a.Validate(); err != nil {
		return err
	}

	var empty []string
	for _, name := range a.Names() {
		if a.Count(name) == 0 {
			empty = append(empty, name)
		}
	}
	if len(empty) > 0 {
		return fmt.Errorf("%w: %s (add entities or remove the bridge from the mapping)",
			ErrEmptyBridge, strings.Join(quoteAll(empty), ", "))
	}
	if errs := assign.CheckCapacity(a, m.opts.Capacity); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// advance moves to the next state through the transition guard.
func (m *Machine) advance(to State) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: %s", ErrInvalidTransition, transitionName(m.state, to))
	}
	m.logger.Debug("state changed", "from", m.state, "to", to)
	m.state = to
	m.report.State = to
	if to != StateFailed {
		m.report.LastState = to
	}
	return nil
}

// fail records a failed transition and builds the returned error.
func (m *Machine) fail(transition string, err error) (*Report, error) {
	last := m.state
	if !CanTransition(last, StateFailed) {
		m.logger.Error("failure reported from terminal state", "state", last)
	}
	m.state = StateFailed
	m.report.State = StateFailed
	m.report.LastState = last
	m.report.FailedTransition = transition
	m.report.Error = err.Error()

	m.logger.Error("apply failed",
		"run_id", m.report.RunID,
		"transition", transition,
		"last_state", last,
		"backup_restored", m.report.BackupRestored,
		"service_running", m.report.ServiceRunning,
		"error", err,
	)

	return m.report, &Error{
		Transition:     transition,
		LastState:      last,
		BackupPath:     m.report.BackupPath,
		BackupRestored: m.report.BackupRestored,
		ServiceRunning: m.report.ServiceRunning,
		Err:            err,
	}
}

// interrupted returns a wrapped error when ctx is done, after rolling back.
func (m *Machine) interrupted(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	m.logger.Warn("apply interrupted, rolling back", "state", m.state)
	m.rollback(ctx, m.written)
	return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
}

// stop performs idle → stopped.
func (m *Machine) stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, m.opts.StopTimeout)
	defer cancel()

	if err := m.ctl.Stop(stopCtx); err != nil {
		// The service may have gone down part way; never leave it that way.
		if !m.probeRunning(ctx) {
			m.report.ServiceRunning = false
			if startErr := m.startService(ctx); startErr != nil {
				m.logger.Error("start after failed stop failed", "error", startErr)
			}
		}
		return err
	}

	m.report.ServiceRunning = false
	return m.advance(StateStopped)
}

// takeBackup performs stopped → backed-up. Failures leave the service stopped.
func (m *Machine) takeBackup(ctx context.Context) error {
	if err := m.interrupted(ctx); err != nil {
		return err
	}

	path := m.opts.ConfigPath
	data, err := os.ReadFile(path)
	if err != nil {
		return &PersistenceError{Op: "read", Path: path, Err: err}
	}
	m.mode = atomicfile.Mode(path, 0600)

	b, err := writeBackup(path, data, m.mode, m.opts.Now())
	if err != nil {
		return &PersistenceError{Op: "backup", Path: path, Err: err}
	}

	m.original = data
	m.backup = b
	m.report.BackupPath = b.path
	m.logger.Info("backup written", "path", b.path, "bytes", len(data))

	return m.advance(StateBackedUp)
}

// mutate performs backed-up → mutated.
func (m *Machine) mutate(ctx context.Context, a *mapping.Artifact) (map[string][]string, error) {
	if err := m.interrupted(ctx); err != nil {
		return nil, err
	}

	doc, err := haconfig.Parse(m.original)
	if err != nil {
		m.rollback(ctx, false)
		return nil, &PersistenceError{Op: "parse", Path: m.opts.ConfigPath, Err: err}
	}

	if err := lookup(doc, a); err != nil {
		m.rollback(ctx, false)
		return nil, err
	}

	changes, expected, err := planChanges(doc, a)
	if err != nil {
		m.rollback(ctx, false)
		return nil, &PersistenceError{Op: "mutate", Path: m.opts.ConfigPath, Err: err}
	}
	m.report.Changes = changes

	out, err := doc.Bytes()
	if err != nil {
		m.rollback(ctx, false)
		return nil, &PersistenceError{Op: "encode", Path: m.opts.ConfigPath, Err: err}
	}

	m.written = true
	if err := m.write(m.opts.ConfigPath, out, m.mode); err != nil {
		m.rollback(ctx, true)
		return nil, &PersistenceError{Op: "write", Path: m.opts.ConfigPath, Err: err}
	}
	m.logger.Info("config written", "path", m.opts.ConfigPath, "bridges", len(expected))

	return expected, m.advance(StateMutated)
}

// validate performs mutated → validated.
func (m *Machine) validate(ctx context.Context, expected map[string][]string) error {
	if err := m.interrupted(ctx); err != nil {
		return err
	}

	data, err := os.ReadFile(m.opts.ConfigPath)
	if err == nil {
		err = m.verify(data, expected)
	}
	if err != nil {
		m.rollback(ctx, true)
		return &PersistenceError{Op: "validate", Path: m.opts.ConfigPath, Err: err}
	}

	return m.advance(StateValidated)
}

// restart performs validated → restarted. A failed start restores the
// backup and tries exactly once more.
func (m *Machine) restart(ctx context.Context) error {
	err := m.startService(ctx)
	if err == nil {
		return m.advance(StateRestarted)
	}

	m.logger.Warn("start failed, restoring backup", "error", err)
	if restoreErr := m.restore(); restoreErr != nil {
		return errors.Join(err, restoreErr)
	}
	if retryErr := m.startService(ctx); retryErr != nil {
		return errors.Join(err, fmt.Errorf("start after restore: %w", retryErr))
	}
	return err
}

// rollback restores the backup when the file was written, then starts the
// service. A failed restore leaves the service stopped.
func (m *Machine) rollback(ctx context.Context, restore bool) {
	if restore && m.backup != nil {
		if err := m.restore(); err != nil {
			m.logger.Error("restore failed, leaving service stopped", "error", err)
			return
		}
	}
	if err := m.startService(ctx); err != nil {
		m.logger.Error("start during rollback failed", "error", err)
	}
}

// restore copies the backup over the config file.
func (m *Machine) restore() error {
	if m.backup == nil {
		return &PersistenceError{Op: "restore", Path: m.opts.ConfigPath, Err: errors.New("no backup taken")}
	}
	if err := m.backup.restoreTo(m.opts.ConfigPath, m.mode); err != nil {
		return &PersistenceError{Op: "restore", Path: m.opts.ConfigPath, Err: err}
	}
	m.report.BackupRestored = true
	m.logger.Info("backup restored", "from", m.backup.path)
	return nil
}

// startService starts the service on a context that survives cancellation
// of ctx but is bounded by the start timeout.
func (m *Machine) startService(ctx context.Context) error {
	startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.StartTimeout)
	defer cancel()

	if err := m.ctl.Start(startCtx); err != nil {
		return err
	}
	m.report.ServiceRunning = true
	return nil
}

// probeRunning asks the controller whether the service is up. When it
// cannot tell, the service is assumed to still be running.
func (m *Machine) probeRunning(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
	defer cancel()

	active, err := m.ctl.IsActive(probeCtx)
	if err != nil {
		m.logger.Warn("could not determine service state", "error", err)
		return true
	}
	return active
}

// dryRun computes the changes without touching the service or the file.
func (m *Machine) dryRun(a *mapping.Artifact) (*Report, error) {
	path := m.opts.ConfigPath
	transition := transitionName(StateIdle, StateDryRunComplete)

	data, err := os.ReadFile(path)
	if err != nil {
		return m.fail(transition, &PersistenceError{Op: "read", Path: path, Err: err})
	}

	doc, err := haconfig.Parse(data)
	if err != nil {
		return m.fail(transition, &PersistenceError{Op: "parse", Path: path, Err: err})
	}
	if err := lookup(doc, a); err != nil {
		return m.fail(transition, err)
	}

	changes, _, err := planChanges(doc, a)
	if err != nil {
		return m.fail(transition, &PersistenceError{Op: "mutate", Path: path, Err: err})
	}
	m.report.Changes = changes

	out, err := doc.Bytes()
	if err != nil {
		return m.fail(transition, &PersistenceError{Op: "encode", Path: path, Err: err})
	}
	m.report.Diff = lineDiff(string(data), string(out))

	if err := m.advance(StateDryRunComplete); err != nil {
		return m.fail(transition, err)
	}
	return m.report, nil
}

// lookup checks that every artifact bridge has exactly one HomeKit entry.
func lookup(doc *haconfig.Document, a *mapping.Artifact) error {
	var (
		names []string
		errs  []error
	)
	for _, name := range a.Names() {
		if _, err := doc.Bridge(name); err != nil {
			names = append(names, name)
			errs = append(errs, err)
		}
	}
	if len(names) > 0 {
		return &LookupMismatchError{Bridges: names, Err: errors.Join(errs...)}
	}
	return nil
}
