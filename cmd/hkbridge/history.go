package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-bridge-manager/internal/history"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent apply runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.History.Enabled {
				return fmt.Errorf("history is disabled in %s", a.configPath())
			}

			db, err := a.openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read only

			runs, err := history.NewSQLiteRepository(db.DB).List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No apply runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTATE\tBRIDGES\tENTITIES\tBACKUP\tDETAIL")
			for _, r := range runs {
				state := r.FinalState
				detail := ""
				if r.FailedTransition != "" {
					detail = r.FailedTransition
					if r.BackupRestored {
						detail += ", backup restored"
					}
					if !r.ServiceRunning {
						detail += ", service down"
					}
				}
				backup := r.BackupPath
				if backup == "" {
					backup = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), state, r.Bridges, r.Entities, backup, detail)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}
