package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/basket/internal/datatype"
	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/value"
)

// FieldOptions holds flags for the field command.
type FieldOptions struct {
	*RootOptions
	Object string
	Value  string
}

// FieldResult is the JSON output of the field command.
type FieldResult struct {
	Element *datatype.Element `json:"element"`
	Valid   *bool             `json:"valid,omitempty"`
	Problem string            `json:"problem,omitempty"`
}

// NewFieldCommand creates the field command.
func NewFieldCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FieldOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "field <varname>",
		Short: "Describe the form element of a data field",
		Long: `Show the form element a data field renders to, optionally as seen on a
configuration object (--object), including the value that object inherits
for the variable. With --value the value is checked against the field's
datatype; JSON values are accepted, anything else is taken as a string.

Exit codes:
  0 - Described (and the value is valid)
  1 - The value is invalid
  2 - Command error (unknown field or object, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runField(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Object, "object", "", "object the field is shown on")
	cmd.Flags().StringVar(&opts.Value, "value", "", "value to validate")

	return cmd
}

func runField(opts *FieldOptions, cmd *cobra.Command, varname string) error {
	ctx := cmd.Context()
	out := newFormatter(cmd, opts.RootOptions)
	reg := datatype.NewRegistry()

	return withStore(opts.RootOptions, func(st store.Store) error {
		field, err := st.FindByNaturalKey(ctx, model.KindDatafield, varname)
		if err != nil {
			return out.Fail(ExitCommandError, "failed to load data field", err)
		}

		var target *store.Object
		if opts.Object != "" {
			obj, err := st.LoadObject(ctx, opts.Object)
			if err != nil {
				return out.Fail(ExitCommandError, "failed to load object", err)
			}
			target = &obj
		}

		el, err := reg.FieldElement(ctx, st, field, target)
		if err != nil {
			return out.Fail(ExitCommandError, "failed to build element", err)
		}
		res := FieldResult{Element: el}

		if cmd.Flags().Changed("value") {
			verr := reg.Validate(field, parseFieldValue(opts.Value))
			valid := verr == nil
			res.Valid = &valid
			if verr != nil {
				res.Problem = verr.Error()
			}
		}

		if out.IsJSON() {
			if err := out.Success(res); err != nil {
				return err
			}
		} else {
			writeFieldText(out, res)
		}

		if res.Valid != nil && !*res.Valid {
			return &ExitError{Code: ExitFailure, Message: res.Problem, Reported: true}
		}
		return nil
	})
}

// parseFieldValue reads s as JSON when it is valid JSON and as a plain
// string otherwise.
func parseFieldValue(s string) value.Value {
	if v, err := value.Decode([]byte(s)); err == nil {
		return v
	}
	return value.String(s)
}

func writeFieldText(out *OutputFormatter, res FieldResult) {
	el := res.Element
	label := el.Label
	if label == "" {
		label = el.Name
	}
	flags := []string{el.Type}
	if el.Required {
		flags = append(flags, "required")
	}
	if el.Multi {
		flags = append(flags, "multi")
	}
	if el.Disabled {
		flags = append(flags, "disabled")
	}
	out.Printf("%s (%s): %s\n", el.Name, label, strings.Join(flags, ", "))
	if el.Description != "" {
		out.Printf("  %s\n", el.Description)
	}
	if len(el.Options) > 0 {
		out.Printf("  options: %s\n", strings.Join(el.Options, ", "))
	}
	if el.Inherited != nil {
		out.Printf("  inherited: %q from %s\n", el.Inherited.Value, el.Inherited.Origin)
	}
	for _, e := range el.Errors {
		out.Printf("  error: %s\n", e)
	}
	if res.Valid != nil {
		if *res.Valid {
			out.Printf("  value ok\n")
		} else {
			out.Printf("  invalid value: %s\n", res.Problem)
		}
	}
}
