package compare

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/value"
)

type staticRefs map[int64]string

func (r staticRefs) ReferenceName(_ context.Context, kind model.Kind, id int64) (string, error) {
	name, ok := r[id]
	if !ok {
		return "", fmt.Errorf("%s %d not found", kind, id)
	}
	return name, nil
}

var fieldUID = uuid.MustParse("6f1c3a52-0b1e-4c3e-9a53-1f0f6e7b8a10")

func colorField(listID string) *model.Entity {
	e := model.NewEntity(model.KindDatafield)
	e.UID = fieldUID
	e.SetNaturalKey("color")
	e.Props["caption"] = value.String("Color")
	e.Props["datatype"] = value.String(`Icinga\Module\Director\DataType\DataTypeDatalist`)
	e.Settings.Set("datalist_id", listID)
	e.Settings.Set("behavior", "strict")
	return e
}

func workhours() *model.Entity {
	e := model.NewEntity(model.KindTimePeriod)
	e.SetNaturalKey("workhours")
	e.Props["object_type"] = value.String("template")
	e.Props["display_name"] = value.String("Work hours")
	e.Props["disabled"] = value.String("n")
	e.Props["excludes"] = value.StringList("holidays")
	e.Entries.Put(model.StoredEntry(11, "monday", value.Map{
		"range_value": value.String("09:00-12:00,13:00-17:00"),
		"range_type":  value.String("include"),
	}))
	e.Entries.Put(model.StoredEntry(12, "friday", value.Map{
		"range_value": value.String("09:00-17:00"),
		"range_type":  value.String("include"),
	}))
	return e
}

func TestNormalize_Golden(t *testing.T) {
	n := New(staticRefs{3: "colors"})
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name   string
		entity *model.Entity
	}{
		{"datafield_normalized", colorField("3")},
		{"timeperiod_normalized", workhours()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form, err := n.Normalize(context.Background(), tt.entity)
			require.NoError(t, err)
			got, err := value.MarshalCanonical(form)
			require.NoError(t, err)
			g.Assert(t, tt.name, got)
		})
	}
}

func TestNormalize_StripsInternalIdentifiers(t *testing.T) {
	e := workhours()
	e.ID = 42
	e.Props["originalId"] = value.Int(42)
	e.Props["id"] = value.Int(42)
	entry, _ := e.Entries.Get("monday")
	entry.Values["id"] = value.Int(11)

	form, err := New(nil).Normalize(context.Background(), e)
	require.NoError(t, err)

	assert.NotContains(t, form, "id")
	assert.NotContains(t, form, "originalId")
	ranges := form["ranges"].(value.Map)
	assert.NotContains(t, ranges["monday"].(value.Map), "id")
}

func TestEqual_ReferenceIndependence(t *testing.T) {
	// Same list name behind two different internal ids.
	n := New(staticRefs{3: "colors", 7: "colors"})

	equal, err := n.Equal(context.Background(), colorField("3"), colorField("7"))
	require.NoError(t, err)
	assert.True(t, equal)
}

func TestEqual_DifferentReferencedNames(t *testing.T) {
	n := New(staticRefs{3: "colors", 7: "shapes"})

	equal, err := n.Equal(context.Background(), colorField("3"), colorField("7"))
	require.NoError(t, err)
	assert.False(t, equal)
}

func TestNormalize_UnresolvableReference(t *testing.T) {
	_, err := New(staticRefs{}).Normalize(context.Background(), colorField("99"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datalist 99")
}

func TestNormalize_NonNumericReference(t *testing.T) {
	_, err := New(staticRefs{}).Normalize(context.Background(), colorField("colors"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an id")
}

func TestEqual_EntryOrderInsensitive(t *testing.T) {
	a := workhours()
	b := model.NewEntity(model.KindTimePeriod)
	b.SetNaturalKey("workhours")
	b.Props = a.Props.Clone()
	// Inserted in reverse order and with fresh (unstored) state.
	b.Entries.Put(model.NewEntry("friday", value.Map{
		"range_type":  value.String("include"),
		"range_value": value.String("09:00-17:00"),
	}))
	b.Entries.Put(model.NewEntry("monday", value.Map{
		"range_type":  value.String("include"),
		"range_value": value.String("09:00-12:00,13:00-17:00"),
	}))

	equal, err := New(nil).Equal(context.Background(), a, b)
	require.NoError(t, err)
	assert.True(t, equal)
}

func TestEqual_IgnoresRemovedEntries(t *testing.T) {
	a := workhours()
	b := workhours()
	b.Entries.Put(model.StoredEntry(13, "sunday", value.Map{"range_value": value.String("00:00-24:00")}))
	sunday, _ := b.Entries.Get("sunday")
	sunday.MarkForRemoval()

	equal, err := New(nil).Equal(context.Background(), a, b)
	require.NoError(t, err)
	assert.True(t, equal)
}

func TestEqual_UIDParticipates(t *testing.T) {
	a := workhours()
	b := workhours()
	b.UID = uuid.MustParse("0b6c2f64-51d5-4a39-8f0b-3f0a9e1d7c22")

	equal, err := New(nil).Equal(context.Background(), a, b)
	require.NoError(t, err)
	assert.False(t, equal)
}

func TestDiff(t *testing.T) {
	a := value.Map{"a": value.String("1"), "b": value.String("2"), "c": value.Null{}}
	b := value.Map{"a": value.String("1"), "b": value.String("3"), "d": value.String("4")}

	assert.Equal(t, []string{"b", "c", "d"}, Diff(a, b))
	assert.Empty(t, Diff(a, a))
}

func TestFingerprint_StableAcrossKeyOrder(t *testing.T) {
	a := value.Map{"x": value.String("1"), "y": value.List{value.Int(2)}}
	b := value.Map{"y": value.List{value.Int(2)}, "x": value.String("1")}

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}
