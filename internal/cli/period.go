package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/period"
	"github.com/roach88/basket/internal/prefetch"
	"github.com/roach88/basket/internal/store"
)

// PeriodOptions holds flags for the period command.
type PeriodOptions struct {
	*RootOptions
	At    string
	Check bool

	// clock replaces the system clock in tests.
	clock period.Clock
}

// NewPeriodCommand creates the period command.
func NewPeriodCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PeriodOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "period <name>",
		Short: "Tell whether a time period is active",
		Long: `Evaluate a stored time period at the current time or at --at.

A period is active when one of its own ranges contains the instant, unless
an included or excluded period decides otherwise. With prefer_includes (the
default) an active include wins over an active exclude.

Exit codes:
  0 - Evaluated (or active, with --check)
  1 - Inactive, with --check
  2 - Command error (unknown period, invalid range, etc.)

Examples:
  basket period work-hours
  basket period on-call --at 2026-12-24T10:00:00+01:00 --check`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPeriod(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "instant to evaluate (RFC3339, default now)")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "exit 1 when the period is inactive")

	return cmd
}

func runPeriod(opts *PeriodOptions, cmd *cobra.Command, name string) error {
	ctx := cmd.Context()
	out := newFormatter(cmd, opts.RootOptions)

	return withStore(opts.RootOptions, func(st store.Store) error {
		var evOpts []period.Option
		if opts.clock != nil {
			evOpts = append(evOpts, period.WithClock(opts.clock))
		}
		cache := prefetch.New(st)
		if err := cache.Warm(ctx, model.KindTimePeriod); err != nil {
			return out.Fail(ExitCommandError, "failed to load periods", err)
		}
		ev := period.New(cache, evOpts...)

		at := ev.Now()
		if opts.At != "" {
			t, err := time.Parse(time.RFC3339, opts.At)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --at", err)
			}
			at = t
		}

		v, err := ev.Evaluate(ctx, name, at)
		if err != nil {
			return out.Fail(ExitCommandError, "failed to evaluate period", err)
		}

		if out.IsJSON() {
			if err := out.Success(v); err != nil {
				return err
			}
		} else {
			state := "inactive"
			if v.Active {
				state = "active"
			}
			out.Printf("%s is %s at %s\n", v.Period, state, v.At)
			switch {
			case v.IncludedBy != "" && v.Active:
				out.Printf("  included by %s\n", v.IncludedBy)
			case v.ExcludedBy != "" && !v.Active:
				out.Printf("  excluded by %s\n", v.ExcludedBy)
			case v.Direct:
				out.Printf("  within its own ranges\n")
			}
		}

		if opts.Check && !v.Active {
			return &ExitError{Code: ExitFailure, Message: v.Period + " is inactive", Reported: true}
		}
		return nil
	})
}
