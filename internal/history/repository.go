package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/homekit-bridge-manager/internal/apply"
)

// ErrInvalidRun is returned when a run cannot be recorded.
var ErrInvalidRun = errors.New("history: invalid run")

const (
	defaultLimit = 20
	maxLimit     = 500

	// Fixed width so that text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Run is one recorded apply run.
type Run struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	DryRun           bool      `json:"dry_run"`
	FinalState       string    `json:"final_state"`
	LastState        string    `json:"last_state"`
	FailedTransition string    `json:"failed_transition,omitempty"`
	BackupPath       string    `json:"backup_path,omitempty"`
	BackupRestored   bool      `json:"backup_restored"`
	ServiceRunning   bool      `json:"service_running"`
	Bridges          int       `json:"bridges"`
	Entities         int       `json:"entities"`
	Error            string    `json:"error,omitempty"`
}

// Succeeded reports whether the run ended in a success state.
func (r *Run) Succeeded() bool {
	return r.FinalState == string(apply.StateRestarted) || r.FinalState == string(apply.StateDryRunComplete)
}

// FromReport converts an apply report into a Run.
func FromReport(rep *apply.Report) *Run {
	return &Run{
		ID:               rep.RunID,
		StartedAt:        rep.StartedAt,
		FinishedAt:       rep.FinishedAt,
		DryRun:           rep.DryRun,
		FinalState:       string(rep.State),
		LastState:        string(rep.LastState),
		FailedTransition: rep.FailedTransition,
		BackupPath:       rep.BackupPath,
		BackupRestored:   rep.BackupRestored,
		ServiceRunning:   rep.ServiceRunning,
		Bridges:          len(rep.Changes),
		Entities:         rep.EntityCount(),
		Error:            rep.Error,
	}
}

// Repository stores and lists apply runs.
type Repository interface {
	Record(ctx context.Context, run *Run) error
	List(ctx context.Context, limit int) ([]Run, error)
}

// SQLiteRepository keeps runs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a run. A missing ID or start time is filled in.
func (r *SQLiteRepository) Record(ctx context.Context, run *Run) error {
	if run == nil || run.FinalState == "" {
		return fmt.Errorf("%w: final state is required", ErrInvalidRun)
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO apply_runs (id, started_at, finished_at, dry_run, final_state, last_state,
		   failed_transition, backup_path, backup_restored, service_running, bridges, entities, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.DryRun, run.FinalState, run.LastState, run.FailedTransition,
		nullableString(run.BackupPath),
		run.BackupRestored, run.ServiceRunning,
		run.Bridges, run.Entities,
		nullableString(run.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting apply run: %w", err)
	}
	return nil
}

// List returns the most recent runs first. A non-positive limit means the
// default of 20; limits above 500 are clamped.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, dry_run, final_state, last_state, failed_transition,
		   backup_path, backup_restored, service_running, bridges, entities, error
		 FROM apply_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying apply runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run                 Run
			started, finished   string
			backupPath, errText sql.NullString
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.DryRun, &run.FinalState,
			&run.LastState, &run.FailedTransition, &backupPath, &run.BackupRestored,
			&run.ServiceRunning, &run.Bridges, &run.Entities, &errText); err != nil {
			return nil, fmt.Errorf("scanning apply run: %w", err)
		}

		if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", started, err)
		}
		if run.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("parsing finished_at %q: %w", finished, err)
		}
		run.BackupPath = backupPath.String
		run.Error = errText.String

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating apply runs: %w", err)
	}
	return runs, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
