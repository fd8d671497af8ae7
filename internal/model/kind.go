package model

import (
	"fmt"
	"strings"
)

// Kind identifies an importable entity type.
type Kind string

const (
	KindDatalist   Kind = "datalist"
	KindDatafield  Kind = "datafield"
	KindTimePeriod Kind = "timeperiod"
	KindServiceSet Kind = "serviceset"
)

// SettingRef declares a settings key that holds a foreign key by internal id.
// Payloads carry the reference by name under Alias; storage holds the id
// under Setting.
type SettingRef struct {
	Setting string // stored key, e.g. "datalist_id"
	Alias   string // payload key, e.g. "datalist"
	Target  Kind
}

// Schema describes the declared shape of a kind.
type Schema struct {
	Kind  Kind
	Label string

	// Key is the property holding the natural key.
	Key string

	// Properties are the declared scalar properties, excluding the natural key.
	Properties []string

	// ListProperties hold ordered lists of names (e.g. includes, excludes).
	ListProperties []string

	// UIDAliases are accepted payload spellings of the reserved uid field.
	UIDAliases []string

	// SettingsField is the payload field that carries the settings map,
	// empty when the kind has no settings.
	SettingsField string

	// SettingRefs are foreign keys embedded in settings.
	SettingRefs []SettingRef

	// Collection is the payload field carrying owned sub-entities, empty
	// when the kind owns none. EntryKey names the field that keys each entry.
	Collection  string
	EntryKey    string
	EntryFields []string

	// StripEntryFields are removed from incoming entries before comparison.
	StripEntryFields []string

	// DependsOn lists kinds that must be imported first.
	DependsOn []Kind
}

// HasSettings reports whether the kind carries a settings map.
func (s *Schema) HasSettings() bool {
	return s.SettingsField != ""
}

// HasEntries reports whether the kind owns a sub-entity collection.
func (s *Schema) HasEntries() bool {
	return s.Collection != ""
}

// IsListProperty reports whether prop is a list-valued property.
func (s *Schema) IsListProperty(prop string) bool {
	for _, p := range s.ListProperties {
		if p == prop {
			return true
		}
	}
	return false
}

var schemas = map[Kind]*Schema{
	KindDatalist: {
		Kind:        KindDatalist,
		Label:       "Data List",
		Key:         "list_name",
		Properties:  []string{"owner"},
		UIDAliases:  []string{"uuid"},
		Collection:  "entries",
		EntryKey:    "entry_name",
		EntryFields: []string{"entry_value", "format", "allowed_roles"},
	},
	KindDatafield: {
		Kind:          KindDatafield,
		Label:         "Data Field",
		Key:           "varname",
		Properties:    []string{"caption", "description", "datatype", "format"},
		UIDAliases:    []string{"guid", "uuid"},
		SettingsField: "settings",
		SettingRefs: []SettingRef{
			{Setting: "datalist_id", Alias: "datalist", Target: KindDatalist},
		},
		DependsOn: []Kind{KindDatalist},
	},
	KindTimePeriod: {
		Kind:           KindTimePeriod,
		Label:          "Time Period",
		Key:            "object_name",
		Properties:     []string{"object_type", "display_name", "update_method", "zone", "disabled", "prefer_includes"},
		ListProperties: []string{"imports", "includes", "excludes"},
		UIDAliases:     []string{"uuid"},
		Collection:     "ranges",
		EntryKey:       "range_key",
		EntryFields:    []string{"range_value", "range_type"},
	},
	KindServiceSet: {
		Kind:             KindServiceSet,
		Label:            "Service Set",
		Key:              "object_name",
		Properties:       []string{"object_type", "description", "assign_filter"},
		ListProperties:   []string{"imports"},
		UIDAliases:       []string{"uuid"},
		SettingsField:    "vars",
		Collection:       "services",
		EntryKey:         "object_name",
		StripEntryFields: []string{"fields", "id", "service_set_id", "originalId"},
		DependsOn:        []Kind{KindTimePeriod},
	},
}

// kindOrder is the dependency order used by import drivers.
var kindOrder = []Kind{KindDatalist, KindDatafield, KindTimePeriod, KindServiceSet}

// Kinds returns all kinds in dependency order.
func Kinds() []Kind {
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// SchemaFor returns the schema of kind.
func SchemaFor(kind Kind) (*Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return s, nil
}

// MustSchema is like SchemaFor but panics on unknown kinds.
// Use only with the Kind constants.
func MustSchema(kind Kind) *Schema {
	s, err := SchemaFor(kind)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseKind resolves user input to a Kind. Basket section names
// ("DataList", "Datafield", "TimePeriod", "ServiceSet") are accepted.
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	switch norm {
	case "datalist", "datalists", "list":
		return KindDatalist, nil
	case "datafield", "datafields", "field":
		return KindDatafield, nil
	case "timeperiod", "timeperiods", "period":
		return KindTimePeriod, nil
	case "serviceset", "servicesets", "set":
		return KindServiceSet, nil
	}
	return "", fmt.Errorf("unknown kind %q", s)
}

// DependencyRank returns the position of kind in import order.
// Unknown kinds sort last.
func DependencyRank(kind Kind) int {
	for i, k := range kindOrder {
		if k == kind {
			return i
		}
	}
	return len(kindOrder)
}

// datatypeClassPrefix is the class-name form datafield datatypes are
// exported with.
const datatypeClassPrefix = `Icinga\Module\Director\DataType\DataType`

// DatatypeTag reduces a datafield datatype to its registry tag: both
// "datalist" and `Icinga\Module\Director\DataType\DataTypeDatalist` yield
// "datalist".
func DatatypeTag(datatype string) string {
	s := strings.TrimSpace(datatype)
	s = strings.TrimPrefix(s, `\`)
	if i := strings.LastIndex(s, `\`); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimPrefix(s, "DataType")
	return strings.ToLower(s)
}

// DatatypeClass returns the class-name form of a registry tag.
func DatatypeClass(tag string) string {
	if tag == "" {
		return ""
	}
	return datatypeClassPrefix + strings.ToUpper(tag[:1]) + tag[1:]
}
