package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/homekit-bridge-manager/internal/filter"
	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/config"
	"github.com/nerrad567/homekit-bridge-manager/internal/infrastructure/logging"
	"github.com/nerrad567/homekit-bridge-manager/internal/service"
)

const (
	defaultConfigPath = "config.yaml"
	configEnv         = "HKBRIDGE_CONFIG"

	// skipConfig marks commands that run without a loaded config.
	skipConfig = "hkbridge/skip-config"
)

// ErrProblemsFound is returned by validate when the live configuration
// needs attention.
var ErrProblemsFound = errors.New("problems found")

// app holds what every command needs once the config is loaded.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configFlag string
	cfg        *config.Config
	log        *logging.Logger

	// newController builds the service controller. Tests replace it.
	newController func(config.ServiceConfig) service.Controller

	now func() time.Time
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		log:    logging.Default(),
		newController: func(sc config.ServiceConfig) service.Controller {
			return service.NewSystemd(service.Config{
				Unit:      sc.Unit,
				Systemctl: sc.Systemctl,
				UseSudo:   sc.UseSudo,
			})
		},
		now: time.Now,
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "hkbridge",
		Short:         "Keep HomeKit bridges under the 150 accessory limit",
		Long:          "hkbridge assigns Home Assistant entities to HomeKit bridges by area and safely rewrites each bridge's include list.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] == "true" || cmd.Name() == "help" {
				return nil
			}
			return a.loadConfig()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVarP(&a.configFlag, "config", "c", "",
		fmt.Sprintf("config file (default: $%s or %s)", configEnv, defaultConfigPath))

	root.AddCommand(
		newInitCmd(a),
		newAnalyzeCmd(a),
		newGenerateCmd(a),
		newApplyCmd(a),
		newValidateCmd(a),
		newListCmd(a),
		newHistoryCmd(a),
	)
	return root
}

// configPath resolves --config, then $HKBRIDGE_CONFIG, then config.yaml.
func (a *app) configPath() string {
	if a.configFlag != "" {
		return a.configFlag
	}
	if v := os.Getenv(configEnv); v != "" {
		return v
	}
	return defaultConfigPath
}

func (a *app) loadConfig() error {
	path := a.configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", path, err)
	}

	a.cfg = cfg
	if cfg.Logging.Output == "stdout" {
		a.log = logging.NewWithWriter(cfg.Logging, version, a.stdout)
	} else {
		a.log = logging.NewWithWriter(cfg.Logging, version, a.stderr)
	}
	a.log.Debug("configuration loaded", "path", path)
	return nil
}

// compileFilter builds the entity filter from the config's exclusion policy.
func (a *app) compileFilter() (*filter.Filter, error) {
	f, err := filter.Compile(filter.Policy{
		ExcludedIntegrations: a.cfg.ExcludedIntegrations,
		ExcludedPatterns:     a.cfg.ExcludedPatterns,
		IgnoredEntities:      a.cfg.IgnoredEntities,
		IncludeDomains:       a.cfg.IncludeDomains,
		IncludeDisabled:      a.cfg.IncludeDisabled,
	})
	if err != nil {
		return nil, fmt.Errorf("compiling exclusion policy: %w", err)
	}
	return f, nil
}

func newInitCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write an example config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.configPath()
			if err := config.WriteExample(path, force); err != nil {
				return err
			}
			a.log.Debug("example config written", "path", path, "force", force)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Edit ha_config_path, service.unit and bridges, then run: hkbridge analyze")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
