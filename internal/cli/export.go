package cli

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/basket/internal/compare"
	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/prefetch"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/value"
)

// ExportedEntity is one object in export output.
type ExportedEntity struct {
	Kind        model.Kind `json:"kind"`
	Key         string     `json:"key"`
	Fingerprint string     `json:"fingerprint"`
	Object      value.Map  `json:"object"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <kind> [name]",
		Short: "Print stored objects in canonical form",
		Long: `Print stored objects of a kind in the canonical form used for comparison,
with their content fingerprint. References are shown by name, internal ids
are omitted.

Kinds: datalist, datafield, timeperiod, serviceset (basket section names
such as DataList are accepted too).

Examples:
  basket export datalist
  basket export timeperiod work-hours --format json`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runExport(opts *RootOptions, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := newFormatter(cmd, opts)

	kind, err := model.ParseKind(args[0])
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}

	return withStore(opts, func(st store.Store) error {
		var entities []*model.Entity
		if len(args) == 2 {
			e, err := st.FindByNaturalKey(ctx, kind, args[1])
			if err != nil {
				return out.Fail(ExitCommandError, "failed to load "+string(kind), err)
			}
			entities = []*model.Entity{e}
		} else {
			entities, err = st.List(ctx, kind)
			if err != nil {
				return out.Fail(ExitCommandError, "failed to list "+string(kind), err)
			}
		}

		exported, err := exportEntities(ctx, st, entities)
		if err != nil {
			return out.Fail(ExitCommandError, "failed to export", err)
		}

		if out.IsJSON() {
			return out.Success(exported)
		}
		for _, x := range exported {
			text, err := indentCanonical(x.Object)
			if err != nil {
				return err
			}
			out.Printf("# %s %q %s\n%s\n", x.Kind, x.Key, x.Fingerprint, text)
		}
		return nil
	})
}

// exportEntities normalizes entities through one per-request cache.
func exportEntities(ctx context.Context, r store.Reader, entities []*model.Entity) ([]ExportedEntity, error) {
	norm := compare.New(prefetch.New(r))
	out := make([]ExportedEntity, 0, len(entities))
	for _, e := range entities {
		form, err := norm.Normalize(ctx, e)
		if err != nil {
			return nil, err
		}
		fp, err := compare.Fingerprint(form)
		if err != nil {
			return nil, err
		}
		out = append(out, ExportedEntity{Kind: e.Kind, Key: e.NaturalKey(), Fingerprint: fp, Object: form})
	}
	return out, nil
}

func indentCanonical(form value.Map) (string, error) {
	raw, err := value.MarshalCanonical(form)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
