package apply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/homekit-bridge-manager/internal/assign"
	"github.com/nerrad567/homekit-bridge-manager/internal/haconfig"
	"github.com/nerrad567/homekit-bridge-manager/internal/mapping"
)

const configFixture = `{
  "version": 1,
  "minor_version": 5,
  "key": "core.config_entries",
  "data": {
    "entries": [
      {
        "entry_id": "01HK1",
        "domain": "homekit",
        "title": "First Floor",
        "data": {
          "name": "First Floor",
          "port": 21064
        },
        "options": {
          "filter": {
            "include_domains": [
              "light"
            ],
            "exclude_domains": [],
            "include_entities": [],
            "exclude_entities": []
          }
        }
      },
      {
        "entry_id": "01HK2",
        "domain": "homekit",
        "title": "Second Floor",
        "data": {
          "name": "Second Floor",
          "port": 21065
        },
        "options": {
          "filter": {
            "include_domains": [],
            "exclude_domains": [],
            "include_entities": [
              "light.old"
            ],
            "exclude_entities": []
          }
        }
      }
    ]
  }
}
`

var fixedNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.Local)

// fakeController records calls and fails on demand.
type fakeController struct {
	mu        sync.Mutex
	calls     []string
	stopErr   error
	startErrs []error
	active    bool
	onStop    func()
}

func (f *fakeController) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	if f.onStop != nil {
		f.onStop()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.stopErr != nil {
		return f.stopErr
	}
	f.active = false
	return nil
}

func (f *fakeController) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start")
	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			return err
		}
	}
	f.active = true
	return nil
}

func (f *fakeController) IsActive(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "is-active")
	return f.active, nil
}

func (f *fakeController) Calls() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.calls, ",")
}

type fixture struct {
	dir    string
	path   string
	ctl    *fakeController
	option Options
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "core.config_entries")
	if err := os.WriteFile(path, []byte(configFixture), 0600); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
	return &fixture{
		dir:  dir,
		path: path,
		ctl:  &fakeController{active: true},
		option: Options{
			ConfigPath:   path,
			StopTimeout:  time.Second,
			StartTimeout: time.Second,
			Now:          func() time.Time { return fixedNow },
		},
	}
}

func (f *fixture) machine() *Machine {
	return New(f.ctl, f.option)
}

func (f *fixture) content(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func (f *fixture) backups(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(f.path + ".backup.*")
	if err != nil {
		t.Fatal(err)
	}
	return matches
}

func testArtifact() *mapping.Artifact {
	a := mapping.New("First Floor", "Second Floor")
	a.Add("First Floor", mapping.Entry{EntityID: "light.kitchen_1", FriendlyName: "Kitchen 1"})
	a.Add("First Floor", mapping.Entry{EntityID: "switch.porch", FriendlyName: "Porch"})
	a.Add("Second Floor", mapping.Entry{EntityID: "light.bedroom", FriendlyName: "Bedroom"})
	return a
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t)

	report, err := f.machine().Run(context.Background(), testArtifact())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.State != StateRestarted || report.LastState != StateRestarted {
		t.Errorf("State = %s/%s, want restarted", report.State, report.LastState)
	}
	if !report.ServiceRunning || report.BackupRestored {
		t.Errorf("ServiceRunning = %v, BackupRestored = %v", report.ServiceRunning, report.BackupRestored)
	}
	if got := f.ctl.Calls(); got != "stop,start" {
		t.Errorf("controller calls = %q, want stop,start", got)
	}
	if report.RunID == "" {
		t.Error("RunID is empty")
	}

	wantBackup := f.path + ".backup.20261015_093000"
	if report.BackupPath != wantBackup {
		t.Errorf("BackupPath = %q, want %q", report.BackupPath, wantBackup)
	}
	backup, err := os.ReadFile(wantBackup)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(backup) != configFixture {
		t.Error("backup does not match the original file")
	}

	doc, err := haconfig.Parse([]byte(f.content(t)))
	if err != nil {
		t.Fatalf("parsing rewritten config: %v", err)
	}
	first, _ := doc.Bridge("First Floor")
	if strings.Join(first.Filter.IncludeEntities, ",") != "light.kitchen_1,switch.porch" {
		t.Errorf("First Floor include = %v", first.Filter.IncludeEntities)
	}
	if len(first.Filter.IncludeDomains) != 0 {
		t.Errorf("First Floor include_domains = %v, want cleared", first.Filter.IncludeDomains)
	}

	if len(report.Changes) != 2 {
		t.Fatalf("Changes = %+v, want two bridges", report.Changes)
	}
	second := report.Changes[1]
	if second.Bridge != "Second Floor" || second.Before != 1 || second.After != 1 {
		t.Errorf("Second Floor change = %+v", second)
	}
	if strings.Join(second.Removed, ",") != "light.old" || strings.Join(second.Added, ",") != "light.bedroom" {
		t.Errorf("Second Floor added/removed = %v/%v", second.Added, second.Removed)
	}
	if report.EntityCount() != 3 {
		t.Errorf("EntityCount() = %d, want 3", report.EntityCount())
	}
}

func TestRun_SecondRunTakesNewBackup(t *testing.T) {
	f := newFixture(t)
	m := f.machine()

	if _, err := m.Run(context.Background(), testArtifact()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	report, err := m.Run(context.Background(), testArtifact())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if got := len(f.backups(t)); got != 2 {
		t.Errorf("backups = %d, want 2 (never overwritten)", got)
	}
	if !strings.HasSuffix(report.BackupPath, "_1") {
		t.Errorf("second BackupPath = %q, want _1 suffix", report.BackupPath)
	}
	for _, c := range report.Changes {
		if !c.Unchanged {
			t.Errorf("%s should be unchanged on re-apply", c.Bridge)
		}
	}
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.option.DryRun = true

	report, err := f.machine().Run(context.Background(), testArtifact())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.State != StateDryRunComplete {
		t.Errorf("State = %s, want dry-run-complete", report.State)
	}
	if got := f.ctl.Calls(); got != "" {
		t.Errorf("controller calls = %q, want none", got)
	}
	if f.content(t) != configFixture {
		t.Error("dry run modified the config file")
	}
	if got := f.backups(t); len(got) != 0 {
		t.Errorf("dry run created backups %v", got)
	}
	if _, err := os.Stat(LockPath(f.path)); !os.IsNotExist(err) {
		t.Error("dry run created a lock file")
	}
	if !strings.Contains(report.Diff, `+              "light.kitchen_1",`) {
		t.Errorf("Diff missing added entity:\n%s", report.Diff)
	}
	if !strings.Contains(report.Diff, `-              "light.old"`) {
		t.Errorf("Diff missing removed entity:\n%s", report.Diff)
	}
	if len(report.Changes) != 2 {
		t.Errorf("Changes = %+v, want two bridges", report.Changes)
	}
}

func TestRun_LookupMismatchAbortsBeforeWrite(t *testing.T) {
	f := newFixture(t)
	a := testArtifact()
	a.Add("Basement", mapping.Entry{EntityID: "light.cellar"})

	report, err := f.machine().Run(context.Background(), a)

	var lme *LookupMismatchError
	if !errors.As(err, &lme) {
		t.Fatalf("Run() error = %v, want *LookupMismatchError", err)
	}
	if len(lme.Bridges) != 1 || lme.Bridges[0] != "Basement" {
		t.Errorf("LookupMismatchError.Bridges = %v", lme.Bridges)
	}
	if !errors.Is(err, haconfig.ErrBridgeNotFound) {
		t.Error("error should wrap haconfig.ErrBridgeNotFound")
	}

	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("Run() error type = %T, want *Error", err)
	}
	if ae.LastState != StateBackedUp || report.LastState != StateBackedUp {
		t.Errorf("LastState = %s/%s, want backed-up", ae.LastState, report.LastState)
	}
	if ae.Transition != "backed-up -> mutated" {
		t.Errorf("Transition = %q", ae.Transition)
	}
	if f.content(t) != configFixture {
		t.Error("config file changed despite lookup mismatch")
	}
	if !report.ServiceRunning || f.ctl.Calls() != "stop,start" {
		t.Errorf("service running = %v, calls = %q, want restarted", report.ServiceRunning, f.ctl.Calls())
	}
}

func TestRun_StartFailureRestoresBackup(t *testing.T) {
	f := newFixture(t)
	f.ctl.startErrs = []error{errors.New("unit failed"), errors.New("unit failed again")}

	report, err := f.machine().Run(context.Background(), testArtifact())
	if err == nil {
		t.Fatal("Run() error = nil, want failure")
	}

	if f.content(t) != configFixture {
		t.Error("config file does not equal its pre-run content")
	}
	if !report.BackupRestored {
		t.Error("report should say the backup was restored")
	}
	if report.ServiceRunning {
		t.Error("report should say the service is not running")
	}
	if report.State != StateFailed || report.LastState != StateValidated {
		t.Errorf("State = %s, LastState = %s", report.State, report.LastState)
	}
	if got := f.ctl.Calls(); got != "stop,start,start" {
		t.Errorf("calls = %q, want exactly one retry", got)
	}

	msg := err.Error()
	for _, want := range []string{"validated -> restarted", "backup restored", "service NOT running"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
	if len(f.backups(t)) != 1 {
		t.Error("backup must be kept after restore")
	}
}

func TestRun_StartRetrySucceeds(t *testing.T) {
	f := newFixture(t)
	f.ctl.startErrs = []error{errors.New("unit failed")}

	report, err := f.machine().Run(context.Background(), testArtifact())
	if err == nil {
		t.Fatal("Run() error = nil, want failure reported")
	}
	if !report.BackupRestored || !report.ServiceRunning {
		t.Errorf("BackupRestored = %v, ServiceRunning = %v, want both true", report.BackupRestored, report.ServiceRunning)
	}
	if f.content(t) != configFixture {
		t.Error("config not restored")
	}
}

func TestRun_StopFailure(t *testing.T) {
	f := newFixture(t)
	f.ctl.stopErr = errors.New("access denied")

	report, err := f.machine().Run(context.Background(), testArtifact())

	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("Run() error = %v, want *Error", err)
	}
	if ae.LastState != StateIdle || ae.Transition != "idle -> stopped" {
		t.Errorf("Error = %+v", ae)
	}
	if !report.ServiceRunning {
		t.Error("service should still be running")
	}
	if report.BackupPath != "" || len(f.backups(t)) != 0 {
		t.Error("no backup should be taken")
	}
	if got := f.ctl.Calls(); got != "stop,is-active" {
		t.Errorf("calls = %q, want stop then a status probe only", got)
	}
}

func TestRun_StopFailureWithServiceDownRestarts(t *testing.T) {
	f := newFixture(t)
	f.ctl.stopErr = errors.New("timed out")
	f.ctl.onStop = func() { f.ctl.active = false }

	report, err := f.machine().Run(context.Background(), testArtifact())
	if err == nil {
		t.Fatal("Run() error = nil, want stop failure")
	}
	if got := f.ctl.Calls(); got != "stop,is-active,start" {
		t.Errorf("calls = %q, want a start after the probe", got)
	}
	if !report.ServiceRunning {
		t.Error("service should be running again")
	}
}

func TestRun_BackupFailureLeavesServiceStopped(t *testing.T) {
	f := newFixture(t)
	if err := os.Remove(f.path); err != nil {
		t.Fatal(err)
	}

	report, err := f.machine().Run(context.Background(), testArtifact())

	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("Run() error = %v, want *PersistenceError", err)
	}
	if report.LastState != StateStopped {
		t.Errorf("LastState = %s, want stopped", report.LastState)
	}
	if report.ServiceRunning {
		t.Error("service should be left stopped after a backup failure")
	}
	if got := f.ctl.Calls(); got != "stop" {
		t.Errorf("calls = %q, want stop only", got)
	}
	if !strings.Contains(err.Error(), "service NOT running") {
		t.Errorf("error %q should say the service is down", err)
	}
}

func TestRun_CapacityPreflight(t *testing.T) {
	f := newFixture(t)
	a := mapping.New("First Floor")
	for i := range 151 {
		a.Add("First Floor", mapping.Entry{EntityID: fmt.Sprintf("light.l%d", i)})
	}

	report, err := f.machine().Run(context.Background(), a)

	var ce *assign.CapacityError
	if !errors.As(err, &ce) {
		t.Fatalf("Run() error = %v, want *assign.CapacityError", err)
	}
	if ce.Count != 151 || ce.Bridge != "First Floor" {
		t.Errorf("CapacityError = %+v", ce)
	}
	if report.FailedTransition != "pre-flight" {
		t.Errorf("FailedTransition = %q", report.FailedTransition)
	}
	if f.ctl.Calls() != "" || f.content(t) != configFixture {
		t.Error("pre-flight failure must not touch service or file")
	}
}

func TestRun_Busy(t *testing.T) {
	f := newFixture(t)

	held, err := acquireLock(LockPath(f.path))
	if err != nil {
		t.Fatalf("acquireLock() error = %v", err)
	}
	defer held.release()

	_, err = f.machine().Run(context.Background(), testArtifact())
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Run() error = %v, want ErrBusy", err)
	}
	if f.ctl.Calls() != "" {
		t.Error("busy run must not touch the service")
	}
}

func TestRun_InterruptedAfterStop(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := f.machine()
	m.ctl = &cancelAfterStop{fakeController: f.ctl, cancel: cancel}

	report, err := m.Run(ctx, testArtifact())
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Run() error = %v, want ErrInterrupted", err)
	}
	if report.LastState != StateStopped {
		t.Errorf("LastState = %s, want stopped", report.LastState)
	}
	if !report.ServiceRunning {
		t.Error("service should be restarted after an interrupt")
	}
	if f.content(t) != configFixture {
		t.Error("config changed after interrupt")
	}
	if got := f.ctl.Calls(); got != "stop,start" {
		t.Errorf("calls = %q, want stop,start", got)
	}
}

// cancelAfterStop cancels the run's context once the stop has succeeded.
type cancelAfterStop struct {
	*fakeController
	cancel context.CancelFunc
}

func (c *cancelAfterStop) Stop(ctx context.Context) error {
	err := c.fakeController.Stop(ctx)
	c.cancel()
	return err
}

func TestRun_EmptyBridgeRefused(t *testing.T) {
	f := newFixture(t)
	a := mapping.New("First Floor", "Second Floor")
	a.Add("First Floor", mapping.Entry{EntityID: "light.kitchen_1"})

	for _, dryRun := range []bool{false, true} {
		t.Run(fmt.Sprintf("dry_run=%v", dryRun), func(t *testing.T) {
			opts := f.option
			opts.DryRun = dryRun

			report, err := New(f.ctl, opts).Run(context.Background(), a)
			if !errors.Is(err, ErrEmptyBridge) {
				t.Fatalf("Run() error = %v, want ErrEmptyBridge", err)
			}
			if !strings.Contains(err.Error(), `"Second Floor"`) {
				t.Errorf("error %q should name the empty bridge", err)
			}
			if report.FailedTransition != "pre-flight" {
				t.Errorf("FailedTransition = %q, want pre-flight", report.FailedTransition)
			}
			if f.ctl.Calls() != "" || f.content(t) != configFixture || len(f.backups(t)) != 0 {
				t.Error("an empty bridge must be refused before anything is touched")
			}
		})
	}
}

// assertRolledBack checks the outcome shared by every failure after the
// config file was written.
func assertRolledBack(t *testing.T, f *fixture, report *Report, err error, last State) {
	t.Helper()

	if f.content(t) != configFixture {
		t.Error("config file does not equal its pre-run content")
	}
	if !report.BackupRestored {
		t.Error("report should say the backup was restored")
	}
	if !report.ServiceRunning {
		t.Error("report should say the service is running")
	}
	if report.State != StateFailed || report.LastState != last {
		t.Errorf("State = %s, LastState = %s, want failed/%s", report.State, report.LastState, last)
	}
	if got := f.ctl.Calls(); got != "stop,start" {
		t.Errorf("calls = %q, want stop,start", got)
	}
	if len(f.backups(t)) != 1 {
		t.Error("backup must be kept after restore")
	}

	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("Run() error = %v, want *Error", err)
	}
	if !ae.BackupRestored || !ae.ServiceRunning {
		t.Errorf("Error = %+v, want restored and running", ae)
	}
}

func TestRun_ValidateFailureRestoresBackup(t *testing.T) {
	f := newFixture(t)
	m := f.machine()
	m.verify = func([]byte, map[string][]string) error {
		return errors.New("include list mismatch")
	}

	report, err := m.Run(context.Background(), testArtifact())
	assertRolledBack(t, f, report, err, StateMutated)

	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "validate" {
		t.Errorf("Run() error = %v, want *PersistenceError with Op validate", err)
	}
	if report.FailedTransition != "mutated -> validated" {
		t.Errorf("FailedTransition = %q", report.FailedTransition)
	}
}

func TestRun_WriteFailureRestoresBackup(t *testing.T) {
	f := newFixture(t)
	m := f.machine()
	m.write = func(path string, _ []byte, mode os.FileMode) error {
		if err := os.WriteFile(path, []byte(`{"version": 1, "da`), mode); err != nil {
			return err
		}
		return errors.New("disk full")
	}

	report, err := m.Run(context.Background(), testArtifact())
	assertRolledBack(t, f, report, err, StateBackedUp)

	var pe *PersistenceError
	if !errors.As(err, &pe) || pe.Op != "write" {
		t.Errorf("Run() error = %v, want *PersistenceError with Op write", err)
	}
}

func TestRun_InterruptedAfterWrite(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := f.machine()
	write := m.write
	m.write = func(path string, data []byte, mode os.FileMode) error {
		err := write(path, data, mode)
		cancel()
		return err
	}

	report, err := m.Run(ctx, testArtifact())
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Run() error = %v, want ErrInterrupted", err)
	}
	assertRolledBack(t, f, report, err, StateMutated)
}
