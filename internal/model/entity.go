package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/value"
)

// Entity is a persisted configuration object of one Kind.
//
// ID is the storage surrogate and is never part of identity. UID is the
// durable cross-system identity; uuid.Nil means "none assigned" (legacy
// records created before UIDs existed). Props always contains the natural
// key under Schema().Key.
type Entity struct {
	Kind     Kind
	ID       int64
	UID      uuid.UUID
	Props    value.Map
	Settings *settings.Map
	Entries  *EntrySet

	// Rename is set by the reconciler when the natural key changed under a
	// matched UID. It is consumed once, after persist.
	Rename *RenameMarker

	loaded   bool
	modified bool
}

// RenameMarker records the natural key an entity had before an import
// renamed it.
type RenameMarker struct {
	ShouldRename       bool
	PreviousNaturalKey string
}

// NewEntity returns an empty, unstored entity of kind with every declared
// property set to null.
func NewEntity(kind Kind) *Entity {
	schema := MustSchema(kind)
	e := &Entity{
		Kind:  kind,
		Props: value.Map{schema.Key: value.Null{}},
	}
	for _, p := range schema.Properties {
		e.Props[p] = value.Null{}
	}
	for _, p := range schema.ListProperties {
		e.Props[p] = value.List{}
	}
	if schema.HasSettings() {
		e.Settings = settings.New()
	}
	if schema.HasEntries() {
		e.Entries = NewEntrySet()
	}
	return e
}

// Schema returns the entity's kind schema.
func (e *Entity) Schema() *Schema {
	return MustSchema(e.Kind)
}

// NaturalKey returns the human-assigned unique name.
func (e *Entity) NaturalKey() string {
	return e.Props.GetString(e.Schema().Key)
}

// SetNaturalKey assigns the natural key property.
func (e *Entity) SetNaturalKey(key string) {
	e.Props[e.Schema().Key] = value.String(key)
}

// Get returns a property value, Null when unset.
func (e *Entity) Get(prop string) value.Value {
	if v, ok := e.Props[prop]; ok {
		return v
	}
	return value.Null{}
}

// GetString returns a property in text form, "" when null.
func (e *Entity) GetString(prop string) string {
	return e.Props.GetString(prop)
}

// Set assigns a property and marks the entity modified when it changed.
func (e *Entity) Set(prop string, v value.Value) {
	if old, ok := e.Props[prop]; ok && value.Equal(old, v) {
		return
	}
	e.Props[prop] = v
	e.modified = true
}

// HasUID reports whether a UID is assigned.
func (e *Entity) HasUID() bool {
	return e.UID != uuid.Nil
}

// Loaded reports whether the entity is bound to a stored row, in which case
// persisting it updates rather than inserts.
func (e *Entity) Loaded() bool {
	return e.loaded
}

// Modified reports whether the entity needs to be written.
func (e *Entity) Modified() bool {
	if e.modified || !e.loaded {
		return true
	}
	if e.Settings != nil && e.Settings.Modified() {
		return true
	}
	return e.Entries != nil && e.Entries.Modified()
}

// MarkModified flags the entity for writing.
func (e *Entity) MarkModified() {
	e.modified = true
}

// BindTo makes e represent the stored row id: persisting e updates that row.
func (e *Entity) BindTo(id int64) {
	e.ID = id
	e.loaded = true
}

// MarkStored records that e was written (or freshly loaded) as row id.
func (e *Entity) MarkStored(id int64) {
	e.ID = id
	e.loaded = true
	e.modified = false
	if e.Settings != nil {
		e.Settings.MarkStored()
	}
}

// Label returns "Kind \"key\"" for messages.
func (e *Entity) Label() string {
	return fmt.Sprintf("%s %q", e.Schema().Label, e.NaturalKey())
}

// String implements fmt.Stringer.
func (e *Entity) String() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteByte(':')
	b.WriteString(e.NaturalKey())
	if e.HasUID() {
		b.WriteString(" uid=")
		b.WriteString(e.UID.String())
	}
	if e.ID != 0 {
		fmt.Fprintf(&b, " id=%d", e.ID)
	}
	return b.String()
}
