// Package compare normalizes entities into a storage-independent canonical
// form and decides structural equality between them.
//
// The canonical form is a value.Map holding the UID (when assigned), every
// declared property, the settings map with foreign keys rewritten from
// internal id to referenced name, and the owned entries keyed by name.
// Internal identifiers and the legacy originalId hint never appear in it.
//
// Two canonical forms are equal when their RFC 8785 encodings are
// byte-identical, which makes mapping key order and entry order irrelevant.
package compare

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/value"
)

// Reserved field names of the canonical form.
const (
	FieldUID        = "uid"
	FieldID         = "id"
	FieldOriginalID = "originalId"
)

// RefResolver maps a stored foreign key to the natural key it points at.
type RefResolver interface {
	ReferenceName(ctx context.Context, kind model.Kind, id int64) (string, error)
}

// Normalizer builds canonical forms. It is safe for sequential use only;
// its resolver decides the concurrency story.
type Normalizer struct {
	refs RefResolver
}

// New returns a normalizer resolving references through refs.
func New(refs RefResolver) *Normalizer {
	return &Normalizer{refs: refs}
}

// Normalize returns the canonical form of e.
func (n *Normalizer) Normalize(ctx context.Context, e *model.Entity) (value.Map, error) {
	schema := e.Schema()
	form := value.Map{}

	if e.HasUID() {
		form[FieldUID] = value.String(e.UID.String())
	}

	form[schema.Key] = e.Get(schema.Key)
	for _, p := range schema.Properties {
		form[p] = e.Get(p)
	}
	for _, p := range schema.ListProperties {
		v := e.Get(p)
		if value.IsNull(v) {
			v = value.List{}
		}
		form[p] = value.Clone(v)
	}

	if schema.HasSettings() {
		settings, err := n.normalizeSettings(ctx, e)
		if err != nil {
			return nil, err
		}
		form[schema.SettingsField] = settings
	}

	if schema.HasEntries() {
		form[schema.Collection] = normalizeEntries(e.Entries)
	}

	delete(form, FieldID)
	delete(form, FieldOriginalID)
	return form, nil
}

func (n *Normalizer) normalizeSettings(ctx context.Context, e *model.Entity) (value.Map, error) {
	out := value.Map{}
	if e.Settings == nil {
		return out, nil
	}
	for _, p := range e.Settings.Pairs() {
		out[p.Name], _ = e.Settings.Value(p.Name)
	}

	for _, ref := range e.Schema().SettingRefs {
		raw, ok := e.Settings.Get(ref.Setting)
		if !ok {
			continue
		}
		delete(out, ref.Setting)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("normalize %s: setting %s: %q is not an id", e.Label(), ref.Setting, raw)
		}
		if n.refs == nil {
			return nil, fmt.Errorf("normalize %s: no resolver for %s", e.Label(), ref.Target)
		}
		name, err := n.refs.ReferenceName(ctx, ref.Target, id)
		if err != nil {
			return nil, fmt.Errorf("normalize %s: resolve %s %d: %w", e.Label(), ref.Target, id, err)
		}
		out[ref.Alias] = value.String(name)
	}
	return out, nil
}

func normalizeEntries(set *model.EntrySet) value.Map {
	out := value.Map{}
	if set == nil {
		return out
	}
	for _, entry := range set.Active() {
		vals := entry.Values.Clone()
		delete(vals, FieldID)
		delete(vals, FieldOriginalID)
		out[entry.Name] = vals
	}
	return out
}

// Equal normalizes a and b and reports whether they are structurally equal.
func (n *Normalizer) Equal(ctx context.Context, a, b *model.Entity) (bool, error) {
	fa, err := n.Normalize(ctx, a)
	if err != nil {
		return false, err
	}
	fb, err := n.Normalize(ctx, b)
	if err != nil {
		return false, err
	}
	return Equal(fa, fb), nil
}

// Equal reports whether two canonical forms are equal.
func Equal(a, b value.Map) bool {
	return value.Equal(a, b)
}

// Fingerprint returns the content fingerprint of a canonical form.
func Fingerprint(form value.Map) (string, error) {
	return value.Fingerprint(value.DomainEntity, form)
}

// Diff returns the top-level fields whose canonical values differ, in
// canonical key order. It is used for reporting only.
func Diff(a, b value.Map) []string {
	keys := make(value.Map, len(a)+len(b))
	for k := range a {
		keys[k] = value.Null{}
	}
	for k := range b {
		keys[k] = value.Null{}
	}
	var out []string
	for _, k := range keys.SortedKeys() {
		va, oka := a[k]
		vb, okb := b[k]
		if oka != okb || !value.Equal(va, vb) {
			out = append(out, k)
		}
	}
	return out
}
