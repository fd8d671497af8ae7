package entries

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/value"
)

func vals(v string) value.Map {
	return value.Map{"entry_value": value.String(v)}
}

func stored() map[string]*model.Entry {
	return map[string]*model.Entry{
		"a": model.StoredEntry(1, "a", vals("A")),
		"b": model.StoredEntry(2, "b", vals("B")),
		"c": model.StoredEntry(3, "c", vals("C")),
	}
}

func TestReconcile_AddUpdateRemove(t *testing.T) {
	existing := stored()
	incoming := []*model.Entry{
		model.NewEntry("b", vals("B2")),
		model.NewEntry("c", vals("C")),
		model.NewEntry("d", vals("D")),
	}

	merged, plan := Reconcile(existing, incoming)

	assert.True(t, plan.Modified())
	assert.Equal(t, []string{"d"}, plan.Added)
	assert.Equal(t, []string{"b"}, plan.Updated)
	assert.Equal(t, []string{"a"}, plan.Removed)
	assert.Equal(t, []string{"c"}, plan.Unchanged)

	b, ok := merged.Get("b")
	require.True(t, ok)
	assert.Equal(t, model.EntryModified, b.State)
	assert.Equal(t, int64(2), b.ID, "stored id survives the merge")
	assert.Equal(t, value.String("B2"), b.Values["entry_value"])

	c, _ := merged.Get("c")
	assert.Equal(t, model.EntryUnchanged, c.State)

	d, _ := merged.Get("d")
	assert.Equal(t, model.EntryNew, d.State)

	a, _ := merged.Get("a")
	assert.Equal(t, model.EntryRemoved, a.State)

	names := func(es []*model.Entry) []string {
		var out []string
		for _, e := range es {
			out = append(out, e.Name)
		}
		return out
	}
	assert.Equal(t, []string{"b", "c", "d"}, names(merged.Active()))

	merged.Purge()
	_, ok = merged.Get("a")
	assert.False(t, ok, "removed entry is gone after persist")
	assert.False(t, merged.Modified())
}

func TestReconcile_DoesNotMutateInputs(t *testing.T) {
	existing := stored()
	incoming := []*model.Entry{model.NewEntry("a", vals("changed"))}

	Reconcile(existing, incoming)

	assert.Equal(t, value.String("A"), existing["a"].Values["entry_value"])
	assert.Equal(t, model.EntryUnchanged, existing["a"].State)
	assert.Equal(t, model.EntryUnchanged, existing["b"].State)
}

func TestReconcile_IdenticalIsUnmodified(t *testing.T) {
	incoming := []*model.Entry{
		model.NewEntry("a", vals("A")),
		model.NewEntry("b", vals("B")),
		model.NewEntry("c", vals("C")),
	}

	_, plan := Reconcile(stored(), incoming)

	assert.False(t, plan.Modified())
	assert.Equal(t, []string{"a", "b", "c"}, plan.Unchanged)
}

func TestReconcile_LastDuplicateWins(t *testing.T) {
	incoming := []*model.Entry{
		model.NewEntry("x", vals("first")),
		model.NewEntry("x", vals("second")),
	}

	merged, plan := Reconcile(nil, incoming)

	assert.Equal(t, []string{"x"}, plan.Added)
	x, _ := merged.Get("x")
	assert.Equal(t, value.String("second"), x.Values["entry_value"])
}

func TestReconcile_EmptyIncomingRemovesAll(t *testing.T) {
	merged, plan := Reconcile(stored(), nil)

	assert.Equal(t, []string{"a", "b", "c"}, plan.Removed)
	assert.Empty(t, merged.Active())
}

func TestReconcile_ReaddedEntryIsRestored(t *testing.T) {
	existing := stored()
	existing["a"].MarkForRemoval()

	merged, plan := Reconcile(existing, []*model.Entry{model.NewEntry("a", vals("A"))})

	a, _ := merged.Get("a")
	assert.Equal(t, model.EntryUnchanged, a.State)
	assert.Equal(t, []string{"a"}, plan.Unchanged)
}

func TestApply_MarksParentModified(t *testing.T) {
	parent := model.NewEntity(model.KindDatalist)
	parent.SetNaturalKey("colors")
	parent.Entries = model.EntrySetOf(model.StoredEntry(1, "red", vals("Red")))
	parent.MarkStored(5)
	require.False(t, parent.Modified())

	plan := Apply(parent, []*model.Entry{model.NewEntry("red", vals("Red"))})
	assert.False(t, plan.Modified())
	assert.False(t, parent.Modified())

	plan = Apply(parent, []*model.Entry{model.NewEntry("blue", vals("Blue"))})
	assert.True(t, plan.Modified())
	assert.True(t, parent.Modified())
	assert.Equal(t, []string{"blue"}, plan.Added)
	assert.Equal(t, []string{"red"}, plan.Removed)
}
