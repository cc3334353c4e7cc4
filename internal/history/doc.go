// Package history records every apply run in the apply_runs table so the
// outcome of past runs, including where each backup went, can be listed later.
package history
