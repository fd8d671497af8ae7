// Package settings provides the ordered key/value map attached to entities
// and persisted in a side table.
//
// A Map tracks changes per key against the state it was loaded with, so the
// storage layer only writes keys that changed and deletes keys that were
// removed.
//
// Values are stored as text. Lists and maps are stored as canonical JSON
// with FormatJSON so that ToValue can return them in their original shape.
package settings

import (
	"maps"
	"slices"

	"github.com/roach88/basket/internal/value"
)

// Format tells how a stored setting value is to be read.
type Format string

const (
	FormatString Format = "string"
	FormatJSON   Format = "json"
)

// Pair is one stored setting. An empty Format means FormatString.
type Pair struct {
	Name   string
	Value  string
	Format Format
}

// Map is an insertion-ordered string map with change tracking.
// The zero value is not usable; use New or FromStored.
type Map struct {
	keys   []string
	values map[string]string
	stored map[string]string

	// json holds the keys whose value is FormatJSON.
	json       map[string]bool
	storedJSON map[string]bool
}

// New returns an empty, unstored map.
func New() *Map {
	return &Map{
		values:     make(map[string]string),
		stored:     make(map[string]string),
		json:       make(map[string]bool),
		storedJSON: make(map[string]bool),
	}
}

// FromStored builds a map from persisted pairs. The result is unmodified.
func FromStored(pairs []Pair) *Map {
	m := New()
	for _, p := range pairs {
		m.set(p.Name, p.Value, p.Format == FormatJSON)
	}
	m.MarkStored()
	return m
}

// FromValue builds an unstored map from a payload settings object.
// Null values are skipped; non-string scalars are stored in their text form.
func FromValue(v value.Map) *Map {
	m := New()
	for _, k := range v.SortedKeys() {
		m.SetValue(k, v[k])
	}
	return m
}

// Get returns the value for key.
func (m *Map) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// GetOr returns the value for key, or def when absent.
func (m *Map) GetOr(key, def string) string {
	if v, ok := m.values[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is set.
func (m *Map) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Set assigns a string value to key. New keys are appended to the
// iteration order.
func (m *Map) Set(key, val string) {
	m.set(key, val, false)
}

func (m *Map) set(key, val string, isJSON bool) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = val
	if isJSON {
		m.json[key] = true
	} else {
		delete(m.json, key)
	}
}

// SetValue assigns key from a payload value. Null deletes the key. Lists
// and maps are kept as FormatJSON.
func (m *Map) SetValue(key string, v value.Value) {
	s, ok := value.Text(v)
	if !ok {
		m.Delete(key)
		return
	}
	switch v.(type) {
	case value.List, value.Map:
		m.set(key, s, true)
	default:
		m.set(key, s, false)
	}
}

// FormatOf returns the format of key's value.
func (m *Map) FormatOf(key string) Format {
	if m.json[key] {
		return FormatJSON
	}
	return FormatString
}

// Value returns key's value as a payload value: FormatJSON values are
// decoded, everything else is a String. ok is false when key is unset.
func (m *Map) Value(key string) (value.Value, bool) {
	s, ok := m.values[key]
	if !ok {
		return nil, false
	}
	if m.json[key] {
		if v, err := value.Decode([]byte(s)); err == nil {
			return v, true
		}
	}
	return value.String(s), true
}

// Delete removes key.
func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	delete(m.json, key)
	m.keys = slices.DeleteFunc(m.keys, func(k string) bool { return k == key })
}

// Rename moves the value of from to to, keeping its position.
func (m *Map) Rename(from, to string) {
	v, ok := m.values[from]
	if !ok || from == to {
		return
	}
	if _, exists := m.values[to]; exists {
		m.Delete(to)
	}
	delete(m.values, from)
	m.values[to] = v
	if m.json[from] {
		delete(m.json, from)
		m.json[to] = true
	}
	for i, k := range m.keys {
		if k == from {
			m.keys[i] = to
		}
	}
}

// Keys returns keys in insertion order.
func (m *Map) Keys() []string {
	return slices.Clone(m.keys)
}

// Len returns the number of keys.
func (m *Map) Len() int {
	return len(m.keys)
}

// Pairs returns all settings in insertion order.
func (m *Map) Pairs() []Pair {
	out := make([]Pair, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, Pair{Name: k, Value: m.values[k], Format: m.FormatOf(k)})
	}
	return out
}

// ModifiedKeys returns keys whose value differs from the stored state,
// including keys that were never stored.
func (m *Map) ModifiedKeys() []string {
	var out []string
	for _, k := range m.keys {
		if old, ok := m.stored[k]; !ok || old != m.values[k] || m.storedJSON[k] != m.json[k] {
			out = append(out, k)
		}
	}
	return out
}

// DeletedKeys returns stored keys that are no longer set, sorted.
func (m *Map) DeletedKeys() []string {
	var out []string
	for k := range m.stored {
		if _, ok := m.values[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// Modified reports whether any key changed since the last MarkStored.
func (m *Map) Modified() bool {
	return len(m.ModifiedKeys()) > 0 || len(m.DeletedKeys()) > 0
}

// MarkStored records the current state as persisted.
func (m *Map) MarkStored() {
	m.stored = make(map[string]string, len(m.values))
	for k, v := range m.values {
		m.stored[k] = v
	}
	m.storedJSON = make(map[string]bool, len(m.json))
	for k := range m.json {
		m.storedJSON[k] = true
	}
}

// ReplaceWith makes m hold exactly the keys of other, keeping m's stored
// state so that the change set reflects the difference.
func (m *Map) ReplaceWith(other *Map) {
	for _, k := range m.Keys() {
		if !other.Has(k) {
			m.Delete(k)
		}
	}
	for _, p := range other.Pairs() {
		m.set(p.Name, p.Value, p.Format == FormatJSON)
	}
}

// Clone returns an independent copy including change-tracking state.
func (m *Map) Clone() *Map {
	out := &Map{
		keys:       slices.Clone(m.keys),
		values:     maps.Clone(m.values),
		stored:     maps.Clone(m.stored),
		json:       maps.Clone(m.json),
		storedJSON: maps.Clone(m.storedJSON),
	}
	return out
}

// ToValue returns the settings as a value.Map. FormatJSON values are
// decoded; all others are strings.
func (m *Map) ToValue() value.Map {
	out := make(value.Map, len(m.values))
	for k := range m.values {
		out[k], _ = m.Value(k)
	}
	return out
}
