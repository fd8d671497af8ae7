// Package storetest is the contract suite every store.Store backend must
// pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/value"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) store.Store

// Run executes the contract suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"PersistAndFind", testPersistAndFind},
		{"FindByUIDReturnsEveryHolder", testFindByUIDReturnsEveryHolder},
		{"DuplicateNaturalKey", testDuplicateNaturalKey},
		{"RenameReleasesOldKey", testRenameReleasesOldKey},
		{"SettingsDiff", testSettingsDiff},
		{"SettingsFormat", testSettingsFormat},
		{"EntriesTwoPhase", testEntriesTwoPhase},
		{"UpdateMissingRow", testUpdateMissingRow},
		{"Delete", testDelete},
		{"ListOrdered", testListOrdered},
		{"ScanReferencesDatalist", testScanReferencesDatalist},
		{"ScanReferencesDatafield", testScanReferencesDatafield},
		{"ScanReferencesTimePeriod", testScanReferencesTimePeriod},
		{"Objects", testObjects},
		{"RenameVar", testRenameVar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

var (
	uidA = uuid.MustParse("6f1c3a52-0b1e-4c3e-9a53-1f0f6e7b8a10")
	uidB = uuid.MustParse("0b6c2f64-51d5-4a39-8f0b-3f0a9e1d7c22")
)

// Datalist returns an unstored datalist with one entry per name.
func Datalist(name string, uid uuid.UUID, entryNames ...string) *model.Entity {
	e := model.NewEntity(model.KindDatalist)
	e.UID = uid
	e.SetNaturalKey(name)
	e.Props["owner"] = value.String("admin")
	for _, n := range entryNames {
		e.Entries.Put(model.NewEntry(n, value.Map{
			"entry_value": value.String("Value " + n),
			"format":      value.String("string"),
		}))
	}
	return e
}

// Datafield returns an unstored datafield; a non-zero listID makes it a
// datalist field pointing at that list.
func Datafield(varname string, uid uuid.UUID, listID int64) *model.Entity {
	e := model.NewEntity(model.KindDatafield)
	e.UID = uid
	e.SetNaturalKey(varname)
	e.Props["caption"] = value.String(varname)
	e.Props["datatype"] = value.String(model.DatatypeClass("string"))
	if listID != 0 {
		e.Props["datatype"] = value.String(model.DatatypeClass("datalist"))
		e.Settings.Set("datalist_id", strconv.FormatInt(listID, 10))
		e.Settings.Set("behavior", "strict")
	}
	return e
}

// TimePeriod returns an unstored time period.
func TimePeriod(name string, includes, excludes []string) *model.Entity {
	e := model.NewEntity(model.KindTimePeriod)
	e.SetNaturalKey(name)
	e.Props["object_type"] = value.String("template")
	e.Props["includes"] = value.StringList(includes...)
	e.Props["excludes"] = value.StringList(excludes...)
	e.Entries.Put(model.NewEntry("monday", value.Map{"range_value": value.String("09:00-17:00")}))
	return e
}

func testPersistAndFind(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := Datafield("color", uidA, 3)
	require.NoError(t, s.Persist(ctx, e))
	require.NotZero(t, e.ID)
	assert.True(t, e.Loaded())
	assert.False(t, e.Modified())

	got, err := s.FindByNaturalKey(ctx, model.KindDatafield, "color")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, uidA, got.UID)
	assert.Equal(t, value.String("color"), got.Get("caption"))
	assert.Equal(t, []string{"datalist_id", "behavior"}, got.Settings.Keys())
	assert.False(t, got.Modified())

	byID, err := s.FindByID(ctx, model.KindDatafield, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "color", byID.NaturalKey())

	_, err = s.FindByID(ctx, model.KindDatalist, e.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "kind must match")

	_, err = s.FindByNaturalKey(ctx, model.KindDatafield, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	loaded, err := s.LoadSettings(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "3", loaded.GetOr("datalist_id", ""))
}

func testFindByUIDReturnsEveryHolder(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Persist(ctx, Datalist("one", uidA)))
	require.NoError(t, s.Persist(ctx, Datalist("two", uidA)))
	require.NoError(t, s.Persist(ctx, Datalist("three", uidB)))
	require.NoError(t, s.Persist(ctx, Datalist("legacy", uuid.Nil)))

	found, err := s.FindByUID(ctx, model.KindDatalist, uidA)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "one", found[0].NaturalKey())
	assert.Equal(t, "two", found[1].NaturalKey())

	found, err = s.FindByUID(ctx, model.KindDatafield, uidA)
	require.NoError(t, err)
	assert.Empty(t, found, "uid lookups are scoped by kind")

	found, err = s.FindByUID(ctx, model.KindDatalist, uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testDuplicateNaturalKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Persist(ctx, Datalist("colors", uidA)))

	dup := Datalist("colors", uidB)
	err := s.Persist(ctx, dup)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
	assert.False(t, dup.Loaded(), "failed persist leaves the entity unbound")

	// Same key in another kind is fine.
	require.NoError(t, s.Persist(ctx, Datafield("colors", uidB, 0)))
}

func testRenameReleasesOldKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := Datalist("old", uidA, "a")
	require.NoError(t, s.Persist(ctx, e))
	other := Datalist("taken", uidB)
	require.NoError(t, s.Persist(ctx, other))

	e.Set("list_name", value.String("taken"))
	assert.ErrorIs(t, s.Persist(ctx, e), store.ErrDuplicateKey)

	e.Set("list_name", value.String("new"))
	require.NoError(t, s.Persist(ctx, e))

	_, err := s.FindByNaturalKey(ctx, model.KindDatalist, "old")
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err := s.FindByNaturalKey(ctx, model.KindDatalist, "new")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	// The old key is free again.
	require.NoError(t, s.Persist(ctx, Datalist("old", uuid.Nil)))
}

func testSettingsDiff(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := Datafield("color", uidA, 3)
	require.NoError(t, s.Persist(ctx, e))

	e.Settings.Delete("behavior")
	e.Settings.Set("datalist_id", "4")
	e.Settings.Set("multi", "y")
	require.NoError(t, s.Persist(ctx, e))

	got, err := s.FindByID(ctx, model.KindDatafield, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"datalist_id", "multi"}, got.Settings.Keys())
	assert.Equal(t, "4", got.Settings.GetOr("datalist_id", ""))
}

func testSettingsFormat(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := model.NewEntity(model.KindServiceSet)
	e.SetNaturalKey("web")
	e.Props["object_type"] = value.String("template")
	e.Settings.SetValue("ports", value.List{value.Int(80), value.Int(443)})
	e.Settings.SetValue("label", value.String("[80,443]"))
	require.NoError(t, s.Persist(ctx, e))

	got, err := s.FindByID(ctx, model.KindServiceSet, e.ID)
	require.NoError(t, err)
	assert.False(t, got.Settings.Modified())
	assert.Equal(t, settings.FormatJSON, got.Settings.FormatOf("ports"))
	assert.Equal(t, settings.FormatString, got.Settings.FormatOf("label"))
	assert.Equal(t, value.Map{
		"ports": value.List{value.Int(80), value.Int(443)},
		"label": value.String("[80,443]"),
	}, got.Settings.ToValue())

	// Same text, different format, is a change.
	got.Settings.SetValue("ports", value.String("[80,443]"))
	assert.Equal(t, []string{"ports"}, got.Settings.ModifiedKeys())
	require.NoError(t, s.Persist(ctx, got))

	again, err := s.FindByID(ctx, model.KindServiceSet, e.ID)
	require.NoError(t, err)
	assert.Equal(t, settings.FormatString, again.Settings.FormatOf("ports"))
}

func testEntriesTwoPhase(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := Datalist("colors", uidA, "a", "b", "c")
	require.NoError(t, s.Persist(ctx, e))
	for _, entry := range e.Entries.All() {
		assert.NotZero(t, entry.ID, entry.Name)
		assert.Equal(t, model.EntryUnchanged, entry.State)
	}
	b, _ := e.Entries.Get("b")
	bID := b.ID

	a, _ := e.Entries.Get("a")
	a.MarkForRemoval()
	b.ReplaceWith(value.Map{"entry_value": value.String("B!")})
	e.Entries.Put(model.NewEntry("d", value.Map{"entry_value": value.String("D")}))
	require.NoError(t, s.Persist(ctx, e))

	assert.Equal(t, []string{"b", "c", "d"}, e.Entries.Names(), "removed entries are purged after persist")

	stored, err := s.LoadEntries(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.NotContains(t, stored, "a")
	assert.Equal(t, bID, stored["b"].ID, "updates keep the entry id")
	assert.Equal(t, value.String("B!"), stored["b"].Values["entry_value"])
	assert.Equal(t, value.String("Value c"), stored["c"].Values["entry_value"])
	assert.NotZero(t, stored["d"].ID)
}

func testUpdateMissingRow(t *testing.T, s store.Store) {
	e := Datalist("ghost", uidA)
	e.BindTo(987654)
	err := s.Persist(context.Background(), e)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	e := Datalist("colors", uidA, "a")
	require.NoError(t, s.Persist(ctx, e))

	require.NoError(t, s.Delete(ctx, e))
	_, err := s.FindByNaturalKey(ctx, model.KindDatalist, "colors")
	assert.ErrorIs(t, err, store.ErrNotFound)
	found, err := s.FindByUID(ctx, model.KindDatalist, uidA)
	require.NoError(t, err)
	assert.Empty(t, found)

	assert.ErrorIs(t, s.Delete(ctx, e), store.ErrNotFound)
}

func testListOrdered(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, name := range []string{"b", "C", "a"} {
		require.NoError(t, s.Persist(ctx, Datalist(name, uuid.Nil)))
	}
	require.NoError(t, s.Persist(ctx, Datafield("x", uuid.Nil, 0)))

	list, err := s.List(ctx, model.KindDatalist)
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.NaturalKey())
	}
	assert.Equal(t, []string{"C", "a", "b"}, names, "byte order")
}

func testScanReferencesDatalist(t *testing.T, s store.Store) {
	ctx := context.Background()
	list := Datalist("colors", uidA)
	require.NoError(t, s.Persist(ctx, list))
	other := Datalist("shapes", uidB)
	require.NoError(t, s.Persist(ctx, other))

	refs, err := s.ScanReferences(ctx, model.KindDatalist, list.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)

	require.NoError(t, s.Persist(ctx, Datafield("color", uuid.Nil, list.ID)))
	require.NoError(t, s.Persist(ctx, Datafield("shape", uuid.Nil, other.ID)))
	// Not a datalist field: the setting alone does not count.
	plain := Datafield("plain", uuid.Nil, 0)
	plain.Settings.Set("datalist_id", strconv.FormatInt(list.ID, 10))
	require.NoError(t, s.Persist(ctx, plain))
	require.NoError(t, s.AddSyncProperty(ctx, store.SyncProperty{
		Rule: "import colors", DestinationField: store.DatalistDestination,
		SourceExpression: strconv.FormatInt(list.ID, 10),
	}))
	require.NoError(t, s.AddSyncProperty(ctx, store.SyncProperty{
		Rule: "hosts", DestinationField: "object_name",
		SourceExpression: strconv.FormatInt(list.ID, 10),
	}))

	refs, err = s.ScanReferences(ctx, model.KindDatalist, list.ID)
	require.NoError(t, err)
	assert.Equal(t, []store.Reference{
		{Kind: store.RefDatafield, Name: "color"},
		{Kind: store.RefSyncRule, Name: "import colors", Detail: "property list_id"},
	}, refs)
}

func testScanReferencesDatafield(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := Datafield("color", uidA, 0)
	require.NoError(t, s.Persist(ctx, f))

	refs, err := s.ScanReferences(ctx, model.KindDatafield, f.ID)
	require.NoError(t, err)
	assert.Empty(t, refs)

	require.NoError(t, s.AssignField(ctx, store.FieldAssignment{Object: "web-template", FieldID: f.ID, Required: true}))
	require.NoError(t, s.AssignField(ctx, store.FieldAssignment{Object: "db-template", FieldID: f.ID}))
	require.NoError(t, s.AssignField(ctx, store.FieldAssignment{Object: "other", FieldID: f.ID + 1000}))

	refs, err = s.ScanReferences(ctx, model.KindDatafield, f.ID)
	require.NoError(t, err)
	assert.Equal(t, []store.Reference{
		{Kind: store.RefObject, Name: "db-template", Detail: "field assignment"},
		{Kind: store.RefObject, Name: "web-template", Detail: "field assignment"},
	}, refs)
}

func testScanReferencesTimePeriod(t *testing.T, s store.Store) {
	ctx := context.Background()
	holidays := TimePeriod("holidays", nil, nil)
	require.NoError(t, s.Persist(ctx, holidays))
	require.NoError(t, s.Persist(ctx, TimePeriod("workhours", nil, []string{"holidays"})))
	require.NoError(t, s.Persist(ctx, TimePeriod("oncall", []string{"holidays"}, nil)))
	require.NoError(t, s.Persist(ctx, TimePeriod("always", nil, nil)))

	refs, err := s.ScanReferences(ctx, model.KindTimePeriod, holidays.ID)
	require.NoError(t, err)
	assert.Equal(t, []store.Reference{
		{Kind: store.RefTimePeriod, Name: "oncall", Detail: "includes"},
		{Kind: store.RefTimePeriod, Name: "workhours", Detail: "excludes"},
	}, refs)
}

func testObjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	obj := store.Object{
		Name:    "web01",
		Type:    "object",
		Class:   "host",
		Imports: []string{"web-template"},
		Command: "hostalive",
		Vars:    map[string]string{"color": "red"},
	}
	require.NoError(t, s.SaveObject(ctx, obj))

	got, err := s.LoadObject(ctx, "web01")
	require.NoError(t, err)
	assert.Equal(t, obj, got)

	obj.Vars = nil
	require.NoError(t, s.SaveObject(ctx, obj))
	got, err = s.LoadObject(ctx, "web01")
	require.NoError(t, err)
	assert.Nil(t, got.Vars)

	_, err = s.LoadObject(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testRenameVar(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SaveObject(ctx, store.Object{Name: "a", Type: "object", Vars: map[string]string{"color": "red"}}))
	require.NoError(t, s.SaveObject(ctx, store.Object{Name: "b", Type: "template", Vars: map[string]string{"color": "blue", "colour": "keep"}}))
	require.NoError(t, s.SaveObject(ctx, store.Object{Name: "c", Type: "object"}))

	n, err := s.RenameVar(ctx, "color", "colour")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	a, err := s.LoadObject(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"colour": "red"}, a.Vars)

	b, err := s.LoadObject(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"color": "blue", "colour": "keep"}, b.Vars, "existing target is not overwritten")

	n, err = s.RenameVar(ctx, "x", "x")
	require.NoError(t, err)
	assert.Zero(t, n)
}
