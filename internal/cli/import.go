package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/basket/internal/importer"
	"github.com/roach88/basket/internal/loader"
	"github.com/roach88/basket/internal/store"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Replace     bool
	DryRun      bool
	FailFast    bool
	Concurrency int
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file|dir>...",
		Short: "Import basket files into the store",
		Long: `Import one or more basket files (.json, .yaml, .yml, .cue). Directories
are searched for basket files.

Objects are imported in dependency order: data lists, data fields, time
periods, service sets. An object identical to its stored version is left
untouched. A failing object does not stop the others unless --fail-fast is
set.

Exit codes:
  0 - Every object imported or unchanged
  1 - One or more objects failed
  2 - Command error (unreadable basket, database not found, etc.)

Examples:
  basket import director-basket.json
  basket import --replace --db ./basket.db baskets/
  basket import --dry-run --format json periods.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "overwrite objects that match only by natural key")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "reconcile without writing")
	cmd.Flags().BoolVar(&opts.FailFast, "fail-fast", false, "stop at the first failing object")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "files decoded in parallel (0 = GOMAXPROCS)")

	return cmd
}

// batchOptions merges the flags with the import defaults of the config.
// A flag given on the command line wins.
func (o *ImportOptions) batchOptions(cmd *cobra.Command) (importer.Options, loader.Options) {
	defaults := o.Config.Import
	pick := func(flag string, set, fallback bool) bool {
		if cmd.Flags().Changed(flag) {
			return set
		}
		return fallback
	}
	concurrency := defaults.Concurrency
	if cmd.Flags().Changed("concurrency") {
		concurrency = o.Concurrency
	}
	return importer.Options{
			Replace:  pick("replace", o.Replace, defaults.Replace),
			DryRun:   pick("dry-run", o.DryRun, defaults.DryRun),
			FailFast: pick("fail-fast", o.FailFast, defaults.FailFast),
		}, loader.Options{
			Concurrency: concurrency,
		}
}

func runImport(opts *ImportOptions, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := newFormatter(cmd, opts.RootOptions)
	batchOpts, loadOpts := opts.batchOptions(cmd)

	docs, err := loader.Load(ctx, args, loadOpts)
	if err != nil {
		return out.Fail(ExitCommandError, "failed to load basket", err)
	}
	out.VerboseLog("loaded %d object(s) from %d path(s)", len(docs), len(args))

	return withStore(opts.RootOptions, func(st store.Store) error {
		res, runErr := importer.NewBatch(st, batchOpts).Run(ctx, docs)

		if out.IsJSON() {
			if err := out.Success(res); err != nil {
				return err
			}
		} else {
			writeImportText(out, res, batchOpts.DryRun)
		}

		switch {
		case runErr != nil:
			return &ExitError{Code: ExitFailure, Message: "import stopped", Err: runErr, Reported: out.IsJSON()}
		case res.Err() != nil:
			return &ExitError{Code: ExitFailure, Message: res.Err().Error(), Reported: true}
		}
		return nil
	})
}

func writeImportText(out *OutputFormatter, res *importer.Result, dryRun bool) {
	for _, e := range res.Entries {
		if e.Error != "" {
			out.Printf("✗ %-10s %-24s %s\n", e.Kind, e.Key, e.Error)
			continue
		}
		out.Printf("%s %-10s %-24s %s\n", decisionMark(e.Decision), e.Kind, e.Key, e.Decision)
		if len(e.Changed) > 0 {
			out.VerboseLog("    changed: %s", strings.Join(e.Changed, ", "))
		}
		if p := e.Entries; p.Modified() {
			out.VerboseLog("    entries: +%d ~%d -%d", len(p.Added), len(p.Updated), len(p.Removed))
		}
	}
	for _, r := range res.Renamed {
		out.Printf("→ renamed %s %q to %q (%d reference(s) updated)\n", r.Kind, r.From, r.To, r.Affected)
	}

	summary := fmt.Sprintf("%d created, %d updated, %d unchanged, %d failed",
		res.Created, res.Updated, res.Unchanged, res.Failed)
	if dryRun {
		summary += " (dry run, nothing written)"
	}
	out.Printf("\n%s\n", summary)
}

func decisionMark(d importer.Decision) string {
	switch d {
	case importer.DecisionCreated:
		return "+"
	case importer.DecisionUpdated:
		return "~"
	}
	return "="
}
