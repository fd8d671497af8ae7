package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/basket/internal/config"
	"github.com/roach88/basket/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	Driver     string

	// Config is resolved before any subcommand runs: defaults, then the
	// config file, then the environment, then --db and --driver.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the basket CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "basket",
		Short: "Import and export configuration baskets",
		Long: `basket reconciles declarative configuration objects (data lists, data
fields, time periods and service sets) against a store.

Objects are matched by UID first and natural key second. Importing the same
basket twice is a no-op; renames keep the UID and propagate to the things
that refer to the renamed object.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd.ErrOrStderr())
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	flags.StringVar(&opts.Database, "db", "", "database path (overrides config and BASKET_DB)")
	flags.StringVar(&opts.Driver, "driver", "", "storage driver: sqlite or badger (overrides config)")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewPeriodCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewFieldCommand(opts))

	return cmd
}

// resolve validates the global flags, loads the configuration and
// installs the log handler.
func (o *RootOptions) resolve(logOut io.Writer) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	if o.Driver != "" {
		cfg.Database.Driver = o.Driver
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	o.Config = cfg

	level := cfg.Log.SlogLevel()
	if o.Verbose && level > slog.LevelInfo {
		level = slog.LevelInfo
	}
	logging.InitWithWriter(logOut, level, cfg.Log.JSON())
	return nil
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		fmt.Fprintf(stderr, "basket: %v\n", err)
	}
	if !errors.As(err, &exitErr) {
		// Flag and argument errors from cobra.
		return ExitCommandError
	}
	return exitErr.Code
}

// Main is the entry point of cmd/basket.
func Main() {
	os.Exit(Execute(os.Args[1:], os.Stdout, os.Stderr))
}
