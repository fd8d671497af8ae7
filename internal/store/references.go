package store

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/roach88/basket/internal/model"
)

// Reference kinds reported by ScanReferences.
const (
	RefDatafield  = "Data Field"
	RefSyncRule   = "Sync Rule"
	RefObject     = "Object"
	RefTimePeriod = "Time Period"
)

// DatalistDestination is the sync property destination that stores a
// datalist id in its source expression.
const DatalistDestination = "list_id"

// ListUsers returns the datafields among fields that render from datalist
// listID. Only fields of datalist datatype count.
func ListUsers(fields []*model.Entity, listID int64) []Reference {
	want := strconv.FormatInt(listID, 10)
	var refs []Reference
	for _, f := range fields {
		if model.DatatypeTag(f.GetString("datatype")) != "datalist" || f.Settings == nil {
			continue
		}
		if v, ok := f.Settings.Get("datalist_id"); ok && v == want {
			refs = append(refs, Reference{Kind: RefDatafield, Name: f.NaturalKey()})
		}
	}
	return refs
}

// SyncRuleUsers returns the sync properties that write datalist listID.
func SyncRuleUsers(props []SyncProperty, listID int64) []Reference {
	want := strconv.FormatInt(listID, 10)
	var refs []Reference
	for _, p := range props {
		if p.DestinationField == DatalistDestination && p.SourceExpression == want {
			refs = append(refs, Reference{Kind: RefSyncRule, Name: p.Rule, Detail: "property " + DatalistDestination})
		}
	}
	return refs
}

// PeriodUsers returns the periods among periods that include or exclude
// the period named name. The period itself is skipped.
func PeriodUsers(periods []*model.Entity, name string) []Reference {
	var refs []Reference
	for _, p := range periods {
		if p.NaturalKey() == name {
			continue
		}
		for _, rel := range []string{"includes", "excludes"} {
			if slices.Contains(p.Props.Strings(rel), name) {
				refs = append(refs, Reference{Kind: RefTimePeriod, Name: p.NaturalKey(), Detail: rel})
			}
		}
	}
	return refs
}

// SortReferences orders refs by kind, then name, then detail.
func SortReferences(refs []Reference) {
	slices.SortFunc(refs, func(a, b Reference) int {
		return cmp.Or(
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Detail, b.Detail),
		)
	})
}
