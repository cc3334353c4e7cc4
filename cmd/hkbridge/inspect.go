package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-bridge-manager/internal/haconfig"
	"github.com/nerrad567/homekit-bridge-manager/internal/mapping"
)

const serviceProbeTimeout = 10 * time.Second

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the live HomeKit bridges against the config and mapping",
		Long: `Report each HomeKit bridge's filter mode and entity count, flag bridges
over capacity, configured bridges missing from Home Assistant and whether
the Home Assistant service is running. Exits non-zero when anything needs
attention.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.validate(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the HomeKit bridges defined in Home Assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := haconfig.Load(a.cfg.ConfigEntriesPath())
			if err != nil {
				return err
			}

			bridges := doc.Bridges()
			if len(bridges) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No HomeKit bridges found.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TITLE\tENTRY ID\tPORT")
			for _, b := range bridges {
				port := b.Port
				if port == "" {
					port = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Title, b.EntryID, port)
			}
			return tw.Flush()
		},
	}
}

func (a *app) validate(ctx context.Context, out io.Writer) error {
	doc, err := haconfig.Load(a.cfg.ConfigEntriesPath())
	if err != nil {
		return err
	}

	// The artifact is optional here; without it there is nothing to compare.
	artifact, err := mapping.Load(a.cfg.MappingPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		a.log.Warn("mapping not readable, skipping drift check", "error", err)
	}

	var problems []string
	capacity := a.cfg.Capacity

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BRIDGE\tMODE\tENTITIES\tSTATUS")
	for _, b := range doc.Bridges() {
		entities := "-"
		status := "ok"

		switch b.Filter.Mode() {
		case haconfig.ModeInclude:
			n := len(b.Filter.IncludeEntities)
			entities = fmt.Sprintf("%d/%d", n, capacity)
			if n > capacity {
				status = fmt.Sprintf("OVER by %d", n-capacity)
				problems = append(problems, fmt.Sprintf("bridge %q has %d entities (limit %d)", b.Title, n, capacity))
			}
		case haconfig.ModeDomain:
			entities = "all " + strings.Join(b.Filter.IncludeDomains, ", ")
		default:
			entities = "everything"
		}

		if artifact != nil && artifact.Count(b.Title) > 0 {
			if slices.Equal(b.Filter.IncludeEntities, artifact.EntityIDs(b.Title)) {
				status += ", matches mapping"
			} else {
				status += ", differs from mapping"
			}
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Title, b.Filter.Mode(), entities, status)
	}
	tw.Flush() //nolint:errcheck // writes to an in-memory or terminal writer

	names := make([]string, 0, len(a.cfg.Bridges))
	for _, b := range a.cfg.Bridges {
		names = append(names, b.Name)
	}
	for _, missing := range doc.Missing(names) {
		problems = append(problems, fmt.Sprintf("configured bridge %q not found in Home Assistant", missing))
	}

	probeCtx, cancel := context.WithTimeout(ctx, serviceProbeTimeout)
	defer cancel()
	active, err := a.newController(a.cfg.Service).IsActive(probeCtx)
	switch {
	case err != nil:
		fmt.Fprintf(out, "\nService %s: unknown (%v)\n", a.cfg.Service.Unit, err)
		problems = append(problems, "service state could not be determined")
	case active:
		fmt.Fprintf(out, "\nService %s: active\n", a.cfg.Service.Unit)
	default:
		fmt.Fprintf(out, "\nService %s: NOT active\n", a.cfg.Service.Unit)
		problems = append(problems, fmt.Sprintf("service %s is not active", a.cfg.Service.Unit))
	}

	if len(problems) == 0 {
		fmt.Fprintln(out, "\nNo problems found.")
		return nil
	}

	fmt.Fprintln(out, "\nProblems:")
	for _, p := range problems {
		fmt.Fprintf(out, "  - %s\n", p)
	}
	return fmt.Errorf("%w: %d", ErrProblemsFound, len(problems))
}
