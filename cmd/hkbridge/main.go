// Command hkbridge keeps Home Assistant HomeKit bridges under the accessory
// limit by assigning entities to bridges per area and rewriting each
// bridge's include list.
//
// Typical flow:
//
//	hkbridge init              # write an example config.yaml
//	hkbridge analyze           # see per-area counts and suggested bridges
//	hkbridge generate          # build homekit_mapping.json for review
//	hkbridge apply --dry-run   # show what would change
//	hkbridge apply             # stop HA, back up, rewrite, validate, restart
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information, set at build time via ldflags:
// go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// An interrupt during apply cancels the context; the apply cycle then
	// restores the backup and restarts Home Assistant before returning.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}

// run executes one command. It is separated from main for testability.
func run(ctx context.Context, args []string) error {
	root := newRootCmd(newApp(os.Stdout, os.Stderr))
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
