package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-bridge-manager/internal/apply"
	"github.com/nerrad567/homekit-bridge-manager/internal/history"
	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/database"
	"github.com/nerrad567/homekit-bridge-manager/internal/mapping"
	"github.com/nerrad567/homekit-bridge-manager/internal/service"
	"github.com/nerrad567/homekit-bridge-manager/migrations"
)

func newApplyCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Write the mapping into Home Assistant's HomeKit bridges",
		Long: `Stop Home Assistant, back up core.config_entries, replace each bridge's
include list with the mapping, verify the written file and start Home
Assistant again. Any failure restores the backup and restarts the service.

With --dry-run nothing is stopped or written; the planned changes and a diff
of core.config_entries are printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.apply(cmd.Context(), cmd.OutOrStdout(), dryRun)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the changes without touching anything")
	return cmd
}

func (a *app) apply(ctx context.Context, out io.Writer, dryRun bool) error {
	artifact, err := mapping.Load(a.cfg.MappingPath())
	if err != nil {
		return fmt.Errorf("loading mapping (run generate first?): %w", err)
	}

	ctl := a.newController(a.cfg.Service)
	if s, ok := ctl.(interface{ SetLogger(service.Logger) }); ok {
		s.SetLogger(a.log.With("component", "service"))
	}

	m := apply.New(ctl, apply.Options{
		ConfigPath:   a.cfg.ConfigEntriesPath(),
		Capacity:     a.cfg.Capacity,
		StopTimeout:  a.cfg.Service.StopTimeout,
		StartTimeout: a.cfg.Service.StartTimeout,
		DryRun:       dryRun,
		Now:          a.now,
	})
	m.SetLogger(a.log.With("component", "apply"))

	n := a.connectNotifier()
	defer n.Close()

	rep, runErr := m.Run(ctx, artifact)
	printApplyReport(out, rep)

	// Recording must not depend on the interrupted command context.
	a.recordHistory(context.WithoutCancel(ctx), rep)
	n.applied(rep)

	if runErr != nil {
		var applyErr *apply.Error
		if errors.As(runErr, &applyErr) && !applyErr.ServiceRunning {
			fmt.Fprintln(out, "\nHome Assistant is NOT running. Start it manually once the problem is fixed.")
		}
		return runErr
	}
	return nil
}

func (a *app) recordHistory(ctx context.Context, rep *apply.Report) {
	if !a.cfg.History.Enabled {
		return
	}

	db, err := a.openHistory(ctx)
	if err != nil {
		a.log.Warn("history unavailable, run not recorded", "error", err)
		return
	}
	defer db.Close() //nolint:errcheck // read-only after insert

	if err := history.NewSQLiteRepository(db.DB).Record(ctx, history.FromReport(rep)); err != nil {
		a.log.Warn("recording apply run", "run_id", rep.RunID, "error", err)
	}
}

func (a *app) openHistory(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        a.cfg.HistoryPath(),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return db, nil
}

func printApplyReport(out io.Writer, rep *apply.Report) {
	if rep.DryRun {
		fmt.Fprintln(out, "Dry run: nothing was stopped or written.")
	}

	if len(rep.Changes) > 0 {
		fmt.Fprintln(out)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "BRIDGE\tBEFORE\tAFTER\tADDED\tREMOVED\tNOTE")
		for _, c := range rep.Changes {
			note := ""
			switch {
			case c.Unchanged:
				note = "unchanged"
			case c.BeforeMode != "include":
				note = "was " + c.BeforeMode + " mode"
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", c.Bridge, c.Before, c.After, len(c.Added), len(c.Removed), note)
		}
		tw.Flush() //nolint:errcheck // writes to an in-memory or terminal writer
	}

	if rep.Diff != "" {
		fmt.Fprintf(out, "\n%s", rep.Diff)
		if !strings.HasSuffix(rep.Diff, "\n") {
			fmt.Fprintln(out)
		}
	}

	fmt.Fprintf(out, "\nResult: %s", rep.State)
	if rep.State == apply.StateFailed {
		fmt.Fprintf(out, " (transition %s, last state %s)", rep.FailedTransition, rep.LastState)
	}
	fmt.Fprintln(out)
	if rep.BackupPath != "" {
		restored := ""
		if rep.BackupRestored {
			restored = " (restored)"
		}
		fmt.Fprintf(out, "Backup: %s%s\n", rep.BackupPath, restored)
	}
	fmt.Fprintf(out, "Entities: %d  Run: %s\n", rep.EntityCount(), rep.RunID)
}
