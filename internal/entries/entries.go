// Package entries reconciles the named sub-entities owned by an entity
// (list entries, time ranges, member services) against an incoming set.
//
// Reconciliation is pure: existing entries are cloned before they are
// changed, and nothing is deleted. Entries missing from the incoming set
// are tagged model.EntryRemoved; storage deletes them when the parent is
// persisted and then purges them from the set.
package entries

import (
	"github.com/roach88/basket/internal/logging"
	"github.com/roach88/basket/internal/model"
)

var log = logging.Component("entries")

// Plan summarizes what a reconciliation will do once persisted.
// Names are in canonical order.
type Plan struct {
	Added     []string `json:"added,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	Removed   []string `json:"removed,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`
}

// Modified reports whether persisting the plan writes anything.
func (p Plan) Modified() bool {
	return len(p.Added) > 0 || len(p.Updated) > 0 || len(p.Removed) > 0
}

// Reconcile merges incoming into a copy of existing and returns the merged
// set with each entry tagged by lifecycle state.
//
// An incoming entry sharing a name with an existing one takes over its
// values while keeping the stored id. Incoming names not present become
// new entries. Existing names not present are marked for removal. When
// incoming repeats a name the last occurrence wins.
func Reconcile(existing map[string]*model.Entry, incoming []*model.Entry) (*model.EntrySet, Plan) {
	merged := model.NewEntrySet()
	for _, e := range existing {
		merged.Put(e.Clone())
	}

	wanted := make(map[string]*model.Entry, len(incoming))
	for _, in := range incoming {
		wanted[in.Name] = in
	}

	for name, in := range wanted {
		if cur, ok := merged.Get(name); ok {
			cur.ReplaceWith(in.Values)
			continue
		}
		merged.Put(model.NewEntry(name, in.Values.Clone()))
	}

	for _, cur := range merged.All() {
		if _, ok := wanted[cur.Name]; !ok {
			cur.MarkForRemoval()
		}
	}

	plan := planOf(merged)
	log.Debug("entries reconciled",
		"added", len(plan.Added),
		"updated", len(plan.Updated),
		"removed", len(plan.Removed),
		"unchanged", len(plan.Unchanged))
	return merged, plan
}

// Apply reconciles parent's current entries against incoming and installs
// the result on parent. Parent is marked modified when the plan writes
// anything.
func Apply(parent *model.Entity, incoming []*model.Entry) Plan {
	var current map[string]*model.Entry
	if parent.Entries != nil {
		current = parent.Entries.Map()
	}
	merged, plan := Reconcile(current, incoming)
	parent.Entries = merged
	if plan.Modified() {
		parent.MarkModified()
	}
	return plan
}

func planOf(set *model.EntrySet) Plan {
	var p Plan
	for _, e := range set.All() {
		switch e.State {
		case model.EntryNew:
			p.Added = append(p.Added, e.Name)
		case model.EntryModified:
			p.Updated = append(p.Updated, e.Name)
		case model.EntryRemoved:
			p.Removed = append(p.Removed, e.Name)
		case model.EntryUnchanged:
			p.Unchanged = append(p.Unchanged, e.Name)
		}
	}
	return p
}
