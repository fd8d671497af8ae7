package importer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/value"
)

func basket() []Document {
	return []Document{
		{Kind: model.KindDatafield, Payload: datafieldPayload(uidColor, "color", "colors"), Source: "basket.json"},
		{Kind: model.KindTimePeriod, Payload: periodPayload(uidWork, "work", nil, nil, map[string]string{"monday": "09:00-17:00"}), Source: "basket.json"},
		{Kind: model.KindDatalist, Payload: datalistPayload(uidColors, "colors", listEntry("red")), Source: "basket.json"},
	}
}

func TestSort_DependencyOrder(t *testing.T) {
	docs := append(basket(), Document{Kind: model.KindDatalist, Payload: datalistPayload("", "shapes")})
	sorted := Sort(docs)

	var got []string
	for _, d := range sorted {
		got = append(got, d.Payload.GetString(model.MustSchema(d.Kind).Key))
	}
	assert.Equal(t, []string{"colors", "shapes", "color", "work"}, got)
	assert.Equal(t, model.KindDatafield, docs[0].Kind, "input is not reordered")
}

func TestBatch_ImportsInDependencyOrder(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		res, err := NewBatch(s, Options{}).Run(ctx, basket())
		require.NoError(t, err)
		require.NoError(t, res.Err())

		assert.Equal(t, 3, res.Created)
		assert.Zero(t, res.Failed)
		require.Len(t, res.Entries, 3)
		assert.Equal(t, model.KindDatalist, res.Entries[0].Kind)
		assert.Equal(t, "basket.json", res.Entries[0].Source)

		field, err := s.FindByNaturalKey(ctx, model.KindDatafield, "color")
		require.NoError(t, err)
		assert.True(t, field.Settings.Has("datalist_id"))
	})
}

func TestBatch_SecondRunIsUnchanged(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		_, err := NewBatch(s, Options{}).Run(ctx, basket())
		require.NoError(t, err)

		res, err := NewBatch(s, Options{}).Run(ctx, basket())
		require.NoError(t, err)
		assert.Equal(t, 3, res.Unchanged)
		assert.Zero(t, res.Created+res.Updated+res.Failed)
		for _, e := range res.Entries {
			assert.Equal(t, e.Fingerprint, e.StoredFingerprint, e.Key)
		}
	})
}

func TestBatch_ContinuesPastFailures(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		docs := append(basket(),
			Document{Kind: model.KindDatafield, Payload: datafieldPayload("", "shape", "shapes")},
			Document{Kind: model.KindDatalist, Payload: value.Map{"uuid": value.String("bad")}},
		)
		res, err := NewBatch(s, Options{}).Run(context.Background(), docs)
		require.NoError(t, err)

		assert.Equal(t, 3, res.Created)
		assert.Equal(t, 2, res.Failed)
		assert.Error(t, res.Err())

		codes := map[ErrorCode]int{}
		for _, e := range res.Entries {
			if e.Error != "" {
				codes[e.Code]++
			}
		}
		assert.Equal(t, map[ErrorCode]int{ErrCodeMalformedPayload: 1, ErrCodeUnresolvedReference: 1}, codes)
	})
}

func TestBatch_FailFast(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		docs := []Document{
			{Kind: model.KindDatalist, Payload: value.Map{"owner": value.String("nobody")}},
			{Kind: model.KindDatalist, Payload: datalistPayload(uidColors, "colors")},
		}
		res, err := NewBatch(s, Options{FailFast: true}).Run(ctx, docs)
		require.Error(t, err)
		assert.True(t, IsMalformed(err))
		assert.Equal(t, 1, res.Failed)
		assert.Len(t, res.Entries, 1)

		_, err = s.FindByNaturalKey(ctx, model.KindDatalist, "colors")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestBatch_DryRun(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		docs := basket()[2:]
		res, err := NewBatch(s, Options{DryRun: true}).Run(ctx, docs)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Created)

		list, err := s.List(ctx, model.KindDatalist)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestBatch_DryRunResolvesPlannedEntities(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		b := NewBatch(s, Options{DryRun: true})
		res, err := b.Run(ctx, basket())
		require.NoError(t, err)
		require.NoError(t, res.Err(), "the datafield refers to a list created in the same run")
		assert.Equal(t, 3, res.Created)

		id, err := b.Cache().ReferenceID(ctx, model.KindDatalist, "colors")
		require.NoError(t, err)
		assert.Negative(t, id)

		fields, err := s.List(ctx, model.KindDatafield)
		require.NoError(t, err)
		assert.Empty(t, fields)

		// A real run afterwards behaves the same.
		res, err = NewBatch(s, Options{}).Run(ctx, basket())
		require.NoError(t, err)
		assert.Equal(t, 3, res.Created)
		assert.Zero(t, res.Failed)
	})
}

func TestBatch_DryRunSeesPlannedRename(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		_, err := NewBatch(s, Options{}).Run(ctx, basket()[2:])
		require.NoError(t, err)

		docs := []Document{
			{Kind: model.KindDatalist, Payload: datalistPayload(uidColors, "colours", listEntry("red"))},
			{Kind: model.KindDatafield, Payload: datafieldPayload("", "tint", "colours")},
		}
		res, err := NewBatch(s, Options{DryRun: true}).Run(ctx, docs)
		require.NoError(t, err)
		require.NoError(t, res.Err())
		assert.Equal(t, 1, res.Updated)
		assert.Equal(t, 1, res.Created)

		_, err = s.FindByNaturalKey(ctx, model.KindDatalist, "colours")
		assert.ErrorIs(t, err, store.ErrNotFound, "nothing is written")
	})
}

func TestBatch_WarmsReferencedKinds(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		_, err := NewBatch(s, Options{}).Run(ctx, basket())
		require.NoError(t, err)

		b := NewBatch(s, Options{})
		res, err := b.Run(ctx, basket())
		require.NoError(t, err)
		assert.Equal(t, 3, res.Unchanged)

		hits, misses := b.Cache().Stats()
		assert.Positive(t, hits)
		assert.Zero(t, misses, "the referenced list was loaded before the first payload")
	})
}

func TestReferencedKinds(t *testing.T) {
	assert.Equal(t, []model.Kind{model.KindDatalist}, ReferencedKinds(basket()))
	assert.Empty(t, ReferencedKinds(basket()[1:2]))
}

func TestBatch_CanceledContext(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := NewBatch(s, Options{}).Run(ctx, basket())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, res.Entries)
	})
}

func TestBatch_PropagatesDatafieldRename(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		_, err := NewBatch(s, Options{}).Run(ctx, basket())
		require.NoError(t, err)
		require.NoError(t, s.SaveObject(ctx, store.Object{
			Name: "web01", Type: "object", Class: "host",
			Vars: map[string]string{"color": "red"},
		}))

		renamed := datafieldPayload(uidColor, "colour", "colors")
		res, err := NewBatch(s, Options{}).Run(ctx, []Document{{Kind: model.KindDatafield, Payload: renamed}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Updated)
		require.Len(t, res.Renamed, 1)
		assert.Equal(t, RenameEvent{Kind: model.KindDatafield, From: "color", To: "colour", Affected: 1}, res.Renamed[0])

		obj, err := s.LoadObject(ctx, "web01")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"colour": "red"}, obj.Vars)
	})
}

func TestBatch_PropagatesPeriodRename(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		docs := []Document{
			{Kind: model.KindTimePeriod, Payload: periodPayload(uidWork, "work", nil, nil, map[string]string{"monday": "09:00-17:00"})},
			{Kind: model.KindTimePeriod, Payload: periodPayload(uidOther, "oncall", []string{"work"}, []string{"holidays", "work"}, nil)},
		}
		_, err := NewBatch(s, Options{}).Run(ctx, docs)
		require.NoError(t, err)

		renamed := periodPayload(uidWork, "office", nil, nil, map[string]string{"monday": "09:00-17:00"})
		res, err := NewBatch(s, Options{}).Run(ctx, []Document{{Kind: model.KindTimePeriod, Payload: renamed}})
		require.NoError(t, err)
		require.Len(t, res.Renamed, 1)
		assert.Equal(t, 1, res.Renamed[0].Affected)

		oncall, err := s.FindByNaturalKey(ctx, model.KindTimePeriod, "oncall")
		require.NoError(t, err)
		assert.Equal(t, []string{"office"}, oncall.Props.Strings("includes"))
		assert.Equal(t, []string{"holidays", "office"}, oncall.Props.Strings("excludes"))

		// Re-importing the old basket for oncall now differs only by the rename.
		res, err = NewBatch(s, Options{}).Run(ctx, []Document{{Kind: model.KindTimePeriod,
			Payload: periodPayload(uidOther, "oncall", []string{"office"}, []string{"holidays", "office"}, nil)}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Unchanged)
	})
}

func TestPropagator_ConsumesMarkerOnce(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		e := model.NewEntity(model.KindDatafield)
		e.SetNaturalKey("colour")
		e.Rename = &model.RenameMarker{ShouldRename: true, PreviousNaturalKey: "color"}

		p := NewPropagator(s, nil)
		ev, err := p.Propagate(ctx, e)
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Nil(t, e.Rename)

		ev, err = p.Propagate(ctx, e)
		require.NoError(t, err)
		assert.Nil(t, ev)
	})
}
