package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-bridge-manager/internal/assign"
	"github.com/nerrad567/homekit-bridge-manager/internal/mapping"
	"github.com/nerrad567/homekit-bridge-manager/internal/registry"
	"github.com/nerrad567/homekit-bridge-manager/internal/watcher"
)

func newGenerateCmd(a *app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Assign entities to bridges and write the mapping file",
		Long: `Read the Home Assistant registries, apply the exclusion policy and write
the mapping file for review. Over-capacity bridges are reported and the
command exits non-zero, but the mapping file is still written so it can be
trimmed by hand.

With --watch, the mapping is regenerated whenever a registry file changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n := a.connectNotifier()
			defer n.Close()

			err := a.generate(cmd.OutOrStdout(), n)
			if !watch {
				return err
			}
			if err != nil {
				a.log.Warn("generate failed, watching for registry changes", "error", err)
			}
			return a.watchAndGenerate(cmd.Context(), cmd.OutOrStdout(), n)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "regenerate when the registries change")
	return cmd
}

// generate runs one assignment and saves the artifact. Capacity violations
// are returned after the artifact is written.
func (a *app) generate(out io.Writer, n *notifier) error {
	snap, err := registry.LoadStorage(a.cfg.StoragePath())
	if err != nil {
		return err
	}
	f, err := a.compileFilter()
	if err != nil {
		return err
	}

	res, err := assign.Assign(a.cfg.Bridges, snap, f, a.cfg.Capacity)
	if err != nil {
		return err
	}

	path := a.cfg.MappingPath()
	if err := mapping.Save(path, res.Artifact); err != nil {
		return err
	}

	_, devices, entities := snap.Counts()
	a.log.Info("mapping generated",
		"path", path,
		"entities_scanned", entities,
		"devices", devices,
		"assigned", res.Artifact.Total(),
		"unassigned", len(res.Unassigned),
		"excluded", res.Excluded(),
	)

	for _, ref := range res.UnmatchedAreas {
		a.log.Warn("configured area matches no area in the registry", "area", ref)
	}

	printGenerateReport(out, res, path)
	n.generated(res, a.now())

	if err := res.Err(); err != nil {
		return fmt.Errorf("mapping written to %s but needs trimming: %w", path, err)
	}
	return nil
}

func (a *app) watchAndGenerate(ctx context.Context, out io.Writer, n *notifier) error {
	w, err := watcher.New(watcher.Config{
		Dir:   a.cfg.StoragePath(),
		Files: registry.WatchedFiles,
	})
	if err != nil {
		return err
	}
	defer w.Stop() //nolint:errcheck // shutting down

	changes, err := w.Start()
	if err != nil {
		return err
	}
	a.log.Info("watching registries", "dir", a.cfg.StoragePath())

	for {
		select {
		case <-ctx.Done():
			a.log.Info("watch stopped")
			return nil
		case err := <-w.Errors():
			a.log.Warn("registry watch error", "error", err)
		case <-changes:
			a.log.Info("registry changed, regenerating")
			if err := a.generate(out, n); err != nil {
				a.log.Error("generate failed", "error", err)
			}
		}
	}
}

func printGenerateReport(out io.Writer, res *assign.Result, path string) {
	fmt.Fprintf(out, "Mapping written to %s\n\n", path)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BRIDGE\tENTITIES\tDOMAINS\tSTATUS")
	for _, name := range res.Artifact.Names() {
		count := res.Artifact.Count(name)
		status := "ok"
		if count > res.Capacity {
			status = fmt.Sprintf("OVER by %d", count-res.Capacity)
		}
		fmt.Fprintf(tw, "%s\t%d/%d\t%s\t%s\n", name, count, res.Capacity, domainBreakdown(res.Artifact.EntityIDs(name)), status)
	}
	tw.Flush() //nolint:errcheck // writes to an in-memory or terminal writer

	fmt.Fprintf(out, "\nAssigned: %d  Unassigned: %d  Excluded: %d\n",
		res.Artifact.Total(), len(res.Unassigned), res.Excluded())

	if len(res.ExcludedByIntegration) > 0 {
		fmt.Fprintln(out, "\nExcluded by integration:")
		for _, integration := range slices.Sorted(maps.Keys(res.ExcludedByIntegration)) {
			fmt.Fprintf(out, "  %s: %d\n", integration, res.ExcludedByIntegration[integration])
		}
	}
	if len(res.UnmatchedAreas) > 0 {
		fmt.Fprintf(out, "\nAreas matching nothing in the registry: %s\n", strings.Join(res.UnmatchedAreas, ", "))
	}
	for _, e := range res.Errors {
		fmt.Fprintf(out, "\n%v", e)
	}
	if len(res.Errors) > 0 {
		fmt.Fprintln(out)
	}
}

// domainBreakdown renders "light 12, switch 3" for a bridge's entity IDs.
func domainBreakdown(ids []string) string {
	counts := make(map[string]int)
	for _, id := range ids {
		domain, _, _ := strings.Cut(id, ".")
		counts[domain]++
	}
	if len(counts) == 0 {
		return "-"
	}

	parts := make([]string, 0, len(counts))
	for _, d := range slices.Sorted(maps.Keys(counts)) {
		parts = append(parts, fmt.Sprintf("%s %d", d, counts[d]))
	}
	return strings.Join(parts, ", ")
}
