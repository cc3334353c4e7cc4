package apply

import (
	"slices"
	"time"

	"github.com/nerrad567/homekit-bridge-manager/internal/haconfig"
	"github.com/nerrad567/homekit-bridge-manager/internal/mapping"
)

// BridgeChange describes what a run does (or would do) to one bridge.
type BridgeChange struct {
	Bridge  string `json:"bridge"`
	EntryID string `json:"entry_id"`

	// BeforeMode is the filter mode found in the file.
	BeforeMode string `json:"before_mode"`

	Before  int      `json:"before"`
	After   int      `json:"after"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`

	// Unchanged is set when the bridge already had exactly this include list.
	Unchanged bool `json:"unchanged,omitempty"`
}

// Report is the outcome of one Run.
type Report struct {
	RunID  string `json:"run_id"`
	DryRun bool   `json:"dry_run"`

	// State is the final state: restarted, dry-run-complete or failed.
	State State `json:"state"`

	// LastState is the last state reached successfully.
	LastState        State  `json:"last_state"`
	FailedTransition string `json:"failed_transition,omitempty"`

	BackupPath     string `json:"backup_path,omitempty"`
	BackupRestored bool   `json:"backup_restored"`
	ServiceRunning bool   `json:"service_running"`

	Changes []BridgeChange `json:"changes"`

	// Diff is a line diff of the file, filled for dry runs.
	Diff string `json:"diff,omitempty"`

	Error string `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the run reached a success state.
func (r *Report) Succeeded() bool {
	return r.State == StateRestarted || r.State == StateDryRunComplete
}

// EntityCount returns the number of entities written across all bridges.
func (r *Report) EntityCount() int {
	n := 0
	for _, c := range r.Changes {
		n += c.After
	}
	return n
}

// planChanges rewrites every artifact bridge in doc and returns
// the per-bridge changes plus the include lists that were set.
func planChanges(doc *haconfig.Document, a *mapping.Artifact) ([]BridgeChange, map[string][]string, error) {
	changes := make([]BridgeChange, 0, len(a.Bridges))
	expected := make(map[string][]string, len(a.Bridges))

	for _, name := range a.Names() {
		current, err := doc.Bridge(name)
		if err != nil {
			return nil, nil, err
		}

		after := a.EntityIDs(name)
		before := current.Filter.IncludeEntities

		ch := BridgeChange{
			Bridge:     name,
			EntryID:    current.EntryID,
			BeforeMode: current.Filter.Mode(),
			Before:     len(before),
			After:      len(after),
		}

		ch.Added, ch.Removed = setDifference(before, after)
		ch.Unchanged = ch.BeforeMode == haconfig.ModeInclude &&
			slices.Equal(before, after) &&
			len(current.Filter.ExcludeDomains) == 0 &&
			len(current.Filter.ExcludeEntities) == 0

		if err := doc.SetIncludeEntities(name, after); err != nil {
			return nil, nil, err
		}
		expected[name] = after
		changes = append(changes, ch)
	}

	return changes, expected, nil
}

// setDifference returns the IDs only in after (added) and only in before (removed).
func setDifference(before, after []string) (added, removed []string) {
	inBefore := make(map[string]bool, len(before))
	for _, id := range before {
		inBefore[id] = true
	}
	inAfter := make(map[string]bool, len(after))
	for _, id := range after {
		inAfter[id] = true
		if !inBefore[id] {
			added = append(added, id)
		}
	}
	for _, id := range before {
		if !inAfter[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}
