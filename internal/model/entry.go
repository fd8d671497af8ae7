package model

import (
	"slices"

	"github.com/roach88/basket/internal/value"
)

// EntryState is the lifecycle state of an owned sub-entity during a
// reconciliation pass.
type EntryState int

const (
	// EntryUnchanged entries match storage.
	EntryUnchanged EntryState = iota
	// EntryModified entries exist in storage with different values.
	EntryModified
	// EntryNew entries are not yet stored.
	EntryNew
	// EntryRemoved entries are deleted when the parent is persisted.
	EntryRemoved
)

// String implements fmt.Stringer.
func (s EntryState) String() string {
	switch s {
	case EntryUnchanged:
		return "unchanged"
	case EntryModified:
		return "modified"
	case EntryNew:
		return "new"
	case EntryRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Entry is a named sub-entity owned by its parent. Values never contain the
// name itself.
type Entry struct {
	ID     int64
	Name   string
	Values value.Map
	State  EntryState
}

// NewEntry returns an entry staged as new.
func NewEntry(name string, values value.Map) *Entry {
	if values == nil {
		values = value.Map{}
	}
	return &Entry{Name: name, Values: values, State: EntryNew}
}

// StoredEntry returns an entry loaded from storage.
func StoredEntry(id int64, name string, values value.Map) *Entry {
	if values == nil {
		values = value.Map{}
	}
	return &Entry{ID: id, Name: name, Values: values, State: EntryUnchanged}
}

// ReplaceWith overwrites the entry's values. It reports whether anything
// changed; a changed stored entry becomes EntryModified.
func (e *Entry) ReplaceWith(values value.Map) bool {
	if value.Equal(e.Values, values) {
		if e.State == EntryRemoved {
			e.State = EntryUnchanged
		}
		return false
	}
	e.Values = values.Clone()
	if e.State != EntryNew {
		e.State = EntryModified
	}
	return true
}

// MarkForRemoval stages the entry for deletion.
func (e *Entry) MarkForRemoval() {
	e.State = EntryRemoved
}

// Clone returns an independent copy.
func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Values = e.Values.Clone()
	return &cp
}

// EntrySet holds an entity's sub-entities keyed by name.
type EntrySet struct {
	entries map[string]*Entry
}

// NewEntrySet returns an empty set.
func NewEntrySet() *EntrySet {
	return &EntrySet{entries: make(map[string]*Entry)}
}

// EntrySetOf builds a set from entries. Later duplicates win.
func EntrySetOf(entries ...*Entry) *EntrySet {
	s := NewEntrySet()
	for _, e := range entries {
		s.Put(e)
	}
	return s
}

// Get returns the entry named name.
func (s *EntrySet) Get(name string) (*Entry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

// Put inserts or replaces an entry.
func (s *EntrySet) Put(e *Entry) {
	s.entries[e.Name] = e
}

// Len returns the number of entries including those marked for removal.
func (s *EntrySet) Len() int {
	return len(s.entries)
}

// Names returns all entry names in canonical order.
func (s *EntrySet) Names() []string {
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	slices.SortFunc(names, value.CompareKeys)
	return names
}

// All returns every entry in canonical order, including removed ones.
func (s *EntrySet) All() []*Entry {
	out := make([]*Entry, 0, len(s.entries))
	for _, n := range s.Names() {
		out = append(out, s.entries[n])
	}
	return out
}

// Active returns entries not marked for removal, in canonical order.
func (s *EntrySet) Active() []*Entry {
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.All() {
		if e.State != EntryRemoved {
			out = append(out, e)
		}
	}
	return out
}

// Removed returns entries marked for removal, in canonical order.
func (s *EntrySet) Removed() []*Entry {
	var out []*Entry
	for _, e := range s.All() {
		if e.State == EntryRemoved {
			out = append(out, e)
		}
	}
	return out
}

// Modified reports whether any entry is not EntryUnchanged.
func (s *EntrySet) Modified() bool {
	for _, e := range s.entries {
		if e.State != EntryUnchanged {
			return true
		}
	}
	return false
}

// Purge drops removed entries and marks the rest unchanged. Storage calls
// this after a successful persist.
func (s *EntrySet) Purge() {
	for name, e := range s.entries {
		if e.State == EntryRemoved {
			delete(s.entries, name)
			continue
		}
		e.State = EntryUnchanged
	}
}

// Map returns the entries keyed by name.
func (s *EntrySet) Map() map[string]*Entry {
	out := make(map[string]*Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (s *EntrySet) Clone() *EntrySet {
	out := NewEntrySet()
	for _, e := range s.entries {
		out.Put(e.Clone())
	}
	return out
}
