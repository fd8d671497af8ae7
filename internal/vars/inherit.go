// Package vars resolves custom variables that configuration objects
// inherit from their templates or check command.
package vars

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/basket/internal/store"
)

// ErrNotInherited means no template or command provides the variable.
var ErrNotInherited = errors.New("no inherited value")

// ObjectLoader loads configuration objects by name. store.Store
// implements it.
type ObjectLoader interface {
	LoadObject(ctx context.Context, name string) (store.Object, error)
}

// Inherited is a variable value together with the object it came from.
type Inherited struct {
	Value  string `json:"value"`
	Origin string `json:"origin"`
}

// ResolveInherited returns the value obj inherits for varname.
//
// Imports are searched first, the last import winning as in the rendered
// configuration. When no import provides the variable and obj has a check
// command, the command's own variable and then its inherited one are used.
// The object's own value never counts. ErrNotInherited is returned when
// nothing provides the variable; a missing import or command, or an
// import cycle, is reported as an error.
func ResolveInherited(ctx context.Context, l ObjectLoader, obj store.Object, varname string) (Inherited, error) {
	inh, err := fromImports(ctx, l, obj, varname, []string{obj.Name})
	if err == nil || !errors.Is(err, ErrNotInherited) {
		return inh, err
	}
	if obj.Command == "" {
		return Inherited{}, ErrNotInherited
	}

	cmd, err := l.LoadObject(ctx, obj.Command)
	if err != nil {
		return Inherited{}, fmt.Errorf("check command of %q: %w", obj.Name, err)
	}
	if v, ok := cmd.Vars[varname]; ok {
		return Inherited{Value: v, Origin: cmd.Name}, nil
	}
	return fromImports(ctx, l, cmd, varname, []string{cmd.Name})
}

// Resolve returns obj's own value for varname, or the inherited one.
func Resolve(ctx context.Context, l ObjectLoader, obj store.Object, varname string) (Inherited, error) {
	if v, ok := obj.Vars[varname]; ok {
		return Inherited{Value: v, Origin: obj.Name}, nil
	}
	return ResolveInherited(ctx, l, obj, varname)
}

func fromImports(ctx context.Context, l ObjectLoader, obj store.Object, varname string, path []string) (Inherited, error) {
	for i := len(obj.Imports) - 1; i >= 0; i-- {
		name := obj.Imports[i]
		if slices.Contains(path, name) {
			return Inherited{}, fmt.Errorf("import loop: %v -> %s", path, name)
		}
		parent, err := l.LoadObject(ctx, name)
		if err != nil {
			return Inherited{}, fmt.Errorf("import %q of %q: %w", name, obj.Name, err)
		}
		if v, ok := parent.Vars[varname]; ok {
			return Inherited{Value: v, Origin: parent.Name}, nil
		}
		inh, err := fromImports(ctx, l, parent, varname, append(path, name))
		if err == nil || !errors.Is(err, ErrNotInherited) {
			return inh, err
		}
	}
	return Inherited{}, ErrNotInherited
}
