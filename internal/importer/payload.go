package importer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/basket/internal/compare"
	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/value"
)

// Payload is an import record parsed into an unstored entity.
type Payload struct {
	Kind   model.Kind
	Entity *model.Entity

	// Entries are the incoming owned sub-entities, in payload order.
	Entries []*model.Entry

	// OriginalID is the legacy originalId hint. It is kept for reporting
	// and never used for identity.
	OriginalID value.Value
}

// HasUID reports whether the payload carried a UID.
func (p *Payload) HasUID() bool {
	return p.Entity.HasUID()
}

// validators hold kind-specific payload rules.
var validators = map[model.Kind]func(*Payload) error{
	model.KindServiceSet: func(p *Payload) error {
		if t := p.Entity.GetString("object_type"); t != "template" {
			return malformed(p.Kind, p.Entity.NaturalKey(),
				"only service set templates can be imported, got object_type %q", t)
		}
		return nil
	},
}

// ParseUID parses the hyphenated 36-character form of a UID. Other forms
// accepted by uuid.Parse (URN, braces, bare hex) are rejected.
func ParseUID(s string) (uuid.UUID, error) {
	if len(s) != 36 {
		return uuid.Nil, fmt.Errorf("invalid UID %q: want 36-character hyphenated form", s)
	}
	uid, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UID %q: %w", s, err)
	}
	return uid, nil
}

// ParsePayload validates raw and builds the unstored entity it describes.
// It never touches storage. Transport-only fields are stripped; named
// references in settings are left for the reconciler to resolve.
func ParsePayload(kind model.Kind, raw value.Map) (*Payload, error) {
	schema, err := model.SchemaFor(kind)
	if err != nil {
		return nil, malformed(kind, "", "%v", err)
	}
	if raw == nil {
		return nil, malformed(kind, "", "empty payload")
	}
	fields := raw.Clone()

	p := &Payload{Kind: kind, Entity: model.NewEntity(kind), OriginalID: value.Null{}}
	if v, ok := fields[compare.FieldOriginalID]; ok {
		p.OriginalID = v
		delete(fields, compare.FieldOriginalID)
	}
	delete(fields, compare.FieldID)

	key, ok := value.Text(fields[schema.Key])
	if !ok || strings.TrimSpace(key) == "" {
		return nil, malformed(kind, "", "missing natural key %q", schema.Key)
	}
	p.Entity.SetNaturalKey(key)
	delete(fields, schema.Key)

	uid, err := takeUID(fields, schema)
	if err != nil {
		return nil, malformed(kind, key, "%v", err)
	}
	p.Entity.UID = uid

	for _, prop := range schema.Properties {
		v, present := fields[prop]
		if !present {
			continue
		}
		delete(fields, prop)
		switch v.(type) {
		case value.List, value.Map:
			return nil, malformed(kind, key, "property %q must be a scalar", prop)
		}
		if s, ok := value.Text(v); ok {
			p.Entity.Props[prop] = value.String(s)
		}
	}

	for _, prop := range schema.ListProperties {
		v, present := fields[prop]
		if !present {
			continue
		}
		delete(fields, prop)
		list, err := stringList(v)
		if err != nil {
			return nil, malformed(kind, key, "property %q: %v", prop, err)
		}
		p.Entity.Props[prop] = list
	}

	if schema.HasSettings() {
		v := fields[schema.SettingsField]
		delete(fields, schema.SettingsField)
		switch m := v.(type) {
		case nil, value.Null:
			p.Entity.Settings = settings.New()
		case value.Map:
			p.Entity.Settings = settings.FromValue(m)
		default:
			return nil, malformed(kind, key, "%q must be an object", schema.SettingsField)
		}
	}

	if schema.HasEntries() {
		v := fields[schema.Collection]
		delete(fields, schema.Collection)
		entries, err := parseEntries(schema, v)
		if err != nil {
			return nil, malformed(kind, key, "%s: %v", schema.Collection, err)
		}
		p.Entries = entries
	}

	if len(fields) > 0 {
		return nil, malformed(kind, key, "unknown properties: %s", strings.Join(fields.SortedKeys(), ", "))
	}

	if validate, ok := validators[kind]; ok {
		if err := validate(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// takeUID removes the reserved uid field and its aliases from fields and
// returns the parsed UID, uuid.Nil when absent.
func takeUID(fields value.Map, schema *model.Schema) (uuid.UUID, error) {
	names := append([]string{compare.FieldUID}, schema.UIDAliases...)
	var (
		found string
		from  string
	)
	for _, name := range names {
		v, ok := fields[name]
		if !ok {
			continue
		}
		delete(fields, name)
		if value.IsNull(v) {
			continue
		}
		s, isString := v.(value.String)
		if !isString {
			return uuid.Nil, fmt.Errorf("%s must be a string", name)
		}
		if found != "" && !strings.EqualFold(found, string(s)) {
			return uuid.Nil, fmt.Errorf("conflicting %s and %s", from, name)
		}
		found, from = string(s), name
	}
	if found == "" {
		return uuid.Nil, nil
	}
	return ParseUID(found)
}

func stringList(v value.Value) (value.List, error) {
	switch val := v.(type) {
	case nil, value.Null:
		return value.List{}, nil
	case value.String:
		if val == "" {
			return value.List{}, nil
		}
		return value.List{val}, nil
	case value.List:
		out := make(value.List, 0, len(val))
		for i, elem := range val {
			s, ok := value.Text(elem)
			if !ok {
				return nil, fmt.Errorf("element %d is null", i)
			}
			switch elem.(type) {
			case value.List, value.Map:
				return nil, fmt.Errorf("element %d must be a name", i)
			}
			out = append(out, value.String(s))
		}
		return out, nil
	}
	return nil, fmt.Errorf("must be a list of names")
}

// parseEntries accepts a collection either as a list of objects carrying
// the entry key, or as an object keyed by entry name.
func parseEntries(schema *model.Schema, v value.Value) ([]*model.Entry, error) {
	var out []*model.Entry
	add := func(name string, raw value.Value) error {
		m, ok := raw.(value.Map)
		if !ok {
			return fmt.Errorf("entry %q must be an object", name)
		}
		vals := m.Clone()
		delete(vals, schema.EntryKey)
		for _, f := range schema.StripEntryFields {
			delete(vals, f)
		}
		delete(vals, compare.FieldOriginalID)
		out = append(out, model.NewEntry(name, vals))
		return nil
	}

	switch coll := v.(type) {
	case nil, value.Null:
		return nil, nil
	case value.List:
		for i, raw := range coll {
			m, ok := raw.(value.Map)
			if !ok {
				return nil, fmt.Errorf("element %d must be an object", i)
			}
			name, ok := value.Text(m[schema.EntryKey])
			if !ok || name == "" {
				return nil, fmt.Errorf("element %d has no %q", i, schema.EntryKey)
			}
			if err := add(name, m); err != nil {
				return nil, err
			}
		}
	case value.Map:
		for _, name := range coll.SortedKeys() {
			if err := add(name, coll[name]); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("must be a list or an object")
	}
	return out, nil
}
