package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/usage"
)

// DeleteResult is the JSON output of the delete command.
type DeleteResult struct {
	Kind model.Kind `json:"kind"`
	Key  string     `json:"key"`
	UID  string     `json:"uid,omitempty"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <kind> <name>",
		Short: "Delete an object nothing refers to",
		Long: `Delete a stored object by natural key. Deletion is refused while other
objects refer to it: data fields using a data list, sync rules writing its
id, objects with an assigned data field, periods including or excluding a
period.

Exit codes:
  0 - Deleted
  1 - Still in use
  2 - Command error (unknown object, database not found, etc.)`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runDelete(opts *RootOptions, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := newFormatter(cmd, opts)

	kind, err := model.ParseKind(args[0])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}

	return withStore(opts, func(st store.Store) error {
		e, err := usage.Delete(ctx, st, kind, args[1])
		if err != nil {
			var inUse *usage.InUseError
			if errors.As(err, &inUse) {
				if jerr := out.Error(ErrorCode(err), err.Error(), inUse.References); jerr != nil {
					return jerr
				}
				return &ExitError{Code: ExitFailure, Message: "delete refused", Err: err, Reported: true}
			}
			return out.Fail(ExitCommandError, "failed to delete", err)
		}

		res := DeleteResult{Kind: e.Kind, Key: e.NaturalKey()}
		if e.HasUID() {
			res.UID = e.UID.String()
		}
		if out.IsJSON() {
			return out.Success(res)
		}
		out.Printf("deleted %s %q\n", res.Kind, res.Key)
		return nil
	})
}
