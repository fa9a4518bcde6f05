package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rpattn/rollcall/internal/config"
	"github.com/rpattn/rollcall/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

const (
	exitFailure = 1
	exitUsage   = 2
	exitSetup   = 3
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configDir string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			os.Exit(ee.code)
		}
		// cobra already printed the error
		os.Exit(exitFailure)
	}
}

func newRootCommand() *cobra.Command {
	var global globalFlags

	root := &cobra.Command{
		Use:          "rollcall",
		Short:        "Ingest legislative roll-call votes into PostgreSQL",
		Version:      version,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&global.configDir, "config", ".", "Directory containing config.yaml")
	pf.String("log-level", "info", "Log level: debug, info, warn or error")
	pf.String("log-format", "json", "Log format: json or console")
	pf.String("database-url", "", "PostgreSQL connection URL; overrides the discrete database settings")

	root.AddCommand(
		newIngestCommand(&global),
		newMigrateCommand(&global),
		newExportCommand(&global),
		newServeCommand(&global),
	)
	return root
}

// flagBindings maps config keys to the flag names that may override them.
var flagBindings = map[string]string{
	"log.level":                  "log-level",
	"log.format":                 "log-format",
	"database.url":               "database-url",
	"ingest.year":                "year",
	"ingest.workers":             "workers",
	"source.base_url":            "base-url",
	"source.requests_per_second": "rate",
	"source.timeout":             "timeout",
	"server.addr":                "addr",
}

// setup resolves configuration with the command's flags layered on top and
// builds the logger.
func setup(cmd *cobra.Command, global *globalFlags) (config.Config, *zap.Logger, error) {
	v := config.New(global.configDir)
	for key, name := range flagBindings {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return config.Config{}, nil, codeError(exitSetup, "binding flag %s: %s", name, err)
			}
		}
	}

	cfg, err := config.Read(v)
	if err != nil {
		return config.Config{}, nil, codeError(exitSetup, "loading config: %s", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return config.Config{}, nil, codeError(exitUsage, "invalid logging flags: %s", err)
	}
	return cfg, logger, nil
}
