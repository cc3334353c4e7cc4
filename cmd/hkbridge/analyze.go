package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-bridge-manager/internal/analyze"
	"github.com/nerrad567/homekit-bridge-manager/internal/registry"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Count entities per area and suggest a bridges section",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := registry.LoadStorage(a.cfg.StoragePath())
			if err != nil {
				return err
			}
			f, err := a.compileFilter()
			if err != nil {
				return err
			}

			capacity := a.cfg.Capacity
			result := analyze.Run(snap, f)
			suggestions := result.Suggest(capacity)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Entities per area (after filtering)")
			for _, floor := range result.Floors {
				fmt.Fprintf(out, "\n%s (%d)\n", floor.Name, floor.Total)
				for _, area := range floor.Areas {
					fmt.Fprintf(out, "  %-28s %4d  %s\n", area.Name, area.Total, domainCounts(area.ByDomain))
				}
			}
			if result.NoArea > 0 {
				fmt.Fprintf(out, "\n%d included entities have no area and will never be assigned.\n", result.NoArea)
			}

			fmt.Fprintf(out, "\nTotal: %d  Minimum bridges: %d (limit %d each)\n\n",
				result.Total, result.MinBridges(capacity), capacity)

			fmt.Fprintln(out, "Suggested bridges")
			for _, s := range suggestions {
				mark := "ok  "
				if s.Over(capacity) {
					mark = "OVER"
				}
				fmt.Fprintf(out, "  %s %s: %d (%s)\n", mark, s.Name, s.Count, strings.Join(s.Areas, ", "))
			}

			snippet, err := analyze.Snippet(suggestions)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nconfig.yaml snippet (bridge names must match your HomeKit bridge titles):\n\n%s", snippet)
			return nil
		},
	}
}

func domainCounts(by map[string]int) string {
	parts := make([]string, 0, len(by))
	for _, d := range slices.Sorted(maps.Keys(by)) {
		parts = append(parts, fmt.Sprintf("%s %d", d, by[d]))
	}
	return strings.Join(parts, ", ")
}
