package importer

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/prefetch"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/store/storetest"
	"github.com/roach88/basket/internal/value"
)

func TestImport_CreatesNewEntity(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		payload := datalistPayload(uidColors, "colors", listEntry("red"), listEntry("blue"))

		out, err := newImporter(s).Import(ctx, model.KindDatalist, payload, false)
		require.NoError(t, err)

		assert.Equal(t, DecisionCreated, out.Decision)
		assert.Equal(t, []State{StateStart, StateResolving, StateCreating, StateCreated}, out.Trail)
		assert.Equal(t, mustUID(uidColors), out.Entity.UID)
		assert.Equal(t, []string{"blue", "red"}, out.Entries.Added)
		assert.NotEmpty(t, out.Fingerprint)
		assert.Nil(t, out.Rename)
		assert.False(t, out.Entity.Loaded(), "reconciliation does not persist")

		_, err = s.FindByNaturalKey(ctx, model.KindDatalist, "colors")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestImport_AssignsUIDWhenMissing(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		gen := NewFixedGenerator(mustUID(uidOther))
		out, err := newImporter(s, WithUIDGenerator(gen)).
			Import(context.Background(), model.KindDatalist, datalistPayload("", "colors"), false)
		require.NoError(t, err)
		assert.Equal(t, DecisionCreated, out.Decision)
		assert.Equal(t, mustUID(uidOther), out.Entity.UID)
	})
}

func TestImport_Idempotent(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		payload := datalistPayload(uidColors, "colors", listEntry("red"), listEntry("blue"))
		first := importAndPersist(t, s, model.KindDatalist, payload, false)

		out, err := newImporter(s).Import(ctx, model.KindDatalist, payload, false)
		require.NoError(t, err)
		assert.Equal(t, DecisionIdentical, out.Decision)
		assert.Equal(t, []State{StateStart, StateResolving, StateComparing, StateIdentical}, out.Trail)
		assert.Equal(t, first.Entity.ID, out.Entity.ID)
		assert.False(t, out.Entity.Modified(), "identical outcome needs no write")
		assert.Equal(t, []string{"blue", "red"}, out.Entries.Unchanged)
		assert.Equal(t, out.Fingerprint, out.StoredFingerprint)
		assert.Empty(t, out.Changed)
	})
}

func TestImport_IdempotentWithReference(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		importAndPersist(t, s, model.KindDatalist, datalistPayload(uidColors, "colors"), false)
		created := importAndPersist(t, s, model.KindDatafield, datafieldPayload(uidColor, "color", "colors"), false)
		assert.Equal(t, DecisionCreated, created.Decision)

		stored, err := s.FindByNaturalKey(ctx, model.KindDatafield, "color")
		require.NoError(t, err)
		list, err := s.FindByNaturalKey(ctx, model.KindDatalist, "colors")
		require.NoError(t, err)
		assert.Equal(t, list.ID, mustInt(t, stored.Settings.GetOr("datalist_id", "")))
		assert.False(t, stored.Settings.Has("datalist"))

		out, err := newImporter(s).Import(ctx, model.KindDatafield, datafieldPayload(uidColor, "color", "colors"), false)
		require.NoError(t, err)
		assert.Equal(t, DecisionIdentical, out.Decision)
	})
}

func TestImport_UpdatesChangedContent(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		first := importAndPersist(t, s, model.KindDatalist, datalistPayload(uidColors, "colors", listEntry("red")), false)

		payload := datalistPayload(uidColors, "colors", listEntry("red"))
		payload["owner"] = value.String("ops")
		out, err := newImporter(s).Import(ctx, model.KindDatalist, payload, false)
		require.NoError(t, err)

		assert.Equal(t, DecisionUpdated, out.Decision)
		assert.Equal(t, []State{StateStart, StateResolving, StateComparing, StateUpdating}, out.Trail)
		assert.Equal(t, first.Entity.ID, out.Entity.ID, "update binds to the stored id")
		assert.True(t, out.Entity.Loaded())
		assert.True(t, out.Entity.Modified())
		assert.Equal(t, []string{"owner"}, out.Changed)
		assert.NotEqual(t, out.Fingerprint, out.StoredFingerprint)
		assert.Nil(t, out.Rename)

		require.NoError(t, s.Persist(ctx, out.Entity))
		got, err := s.FindByID(ctx, model.KindDatalist, first.Entity.ID)
		require.NoError(t, err)
		assert.Equal(t, "ops", got.GetString("owner"))
	})
}

func TestImport_RenameKeepsIdentity(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		first := importAndPersist(t, s, model.KindDatalist, datalistPayload(uidColors, "colors", listEntry("red")), false)

		out, err := newImporter(s).Import(ctx, model.KindDatalist, datalistPayload(uidColors, "colours", listEntry("red")), false)
		require.NoError(t, err)
		assert.Equal(t, DecisionUpdated, out.Decision)
		require.NotNil(t, out.Rename)
		assert.True(t, out.Rename.ShouldRename)
		assert.Equal(t, "colors", out.Rename.PreviousNaturalKey)
		assert.Same(t, out.Rename, out.Entity.Rename)

		require.NoError(t, s.Persist(ctx, out.Entity))
		got, err := s.FindByUID(ctx, model.KindDatalist, mustUID(uidColors))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, first.Entity.ID, got[0].ID)
		assert.Equal(t, "colours", got[0].NaturalKey())

		_, err = s.FindByNaturalKey(ctx, model.KindDatalist, "colors")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestImport_RenameOntoTakenKey(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		importAndPersist(t, s, model.KindDatalist, datalistPayload(uidColors, "colors"), false)
		importAndPersist(t, s, model.KindDatalist, datalistPayload(uidOther, "shapes"), false)

		_, err := newImporter(s).Import(context.Background(), model.KindDatalist, datalistPayload(uidColors, "shapes"), true)
		require.Error(t, err)
		assert.Equal(t, ErrCodeDuplicateKey, CodeOf(err))
	})
}

func TestImport_DuplicateUID(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		uid := mustUID(uidColors)
		require.NoError(t, s.Persist(ctx, storetest.Datalist("one", uid)))
		require.NoError(t, s.Persist(ctx, storetest.Datalist("two", uid)))

		out, err := newImporter(s).Import(ctx, model.KindDatalist, datalistPayload(uidColors, "one", listEntry("x")), true)
		require.Error(t, err)
		assert.Nil(t, out)
		assert.True(t, IsDuplicateUID(err))
		assert.True(t, IsIntegrityError(err))

		var ie *Error
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, model.KindDatalist, ie.Kind)
		assert.Equal(t, "one", ie.Key)
		assert.Equal(t, uidColors, ie.UID)
		assert.Contains(t, err.Error(), "duplicate UID for kind datalist")

		one, err := s.FindByNaturalKey(ctx, model.KindDatalist, "one")
		require.NoError(t, err)
		assert.Empty(t, one.Entries.Names(), "no mutation")
	})
}

func TestImport_UnresolvedReference(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		_, err := newImporter(s).Import(context.Background(), model.KindDatafield, datafieldPayload(uidColor, "color", "missing"), false)
		require.Error(t, err)
		assert.True(t, IsUnresolvedReference(err))
		assert.Contains(t, err.Error(), `referenced entity not found: Data List "missing"`)
	})
}

// unreachable fails every storage call.
type unreachable struct{ store.Reader }

func (unreachable) FindByUID(context.Context, model.Kind, uuid.UUID) ([]*model.Entity, error) {
	return nil, errors.New("storage accessed")
}

func (unreachable) FindByNaturalKey(context.Context, model.Kind, string) (*model.Entity, error) {
	return nil, errors.New("storage accessed")
}

func TestImport_MalformedBeforeStorage(t *testing.T) {
	r := unreachable{}
	im := New(r, prefetch.New(r))

	_, err := im.Import(context.Background(), model.KindDatalist, value.Map{"uuid": value.String("nope")}, false)
	assert.True(t, IsMalformed(err), "got %v", err)

	_, err = im.Import(context.Background(), model.KindDatalist, datalistPayload(uidColors, "colors"), false)
	assert.ErrorContains(t, err, "storage accessed")
	assert.Empty(t, CodeOf(err), "storage failures are not import errors")
}

func TestImport_ReferenceIndependence(t *testing.T) {
	ctx := context.Background()
	fingerprints := map[string]string{}

	backends(t, func(t *testing.T, s store.Store) {
		// Shift ids so the datalist gets a different internal id per store.
		for i := 0; i < len(fingerprints)+2; i++ {
			require.NoError(t, s.Persist(ctx, storetest.Datalist("filler"+string(rune('a'+i)), uuid.Nil)))
		}
		importAndPersist(t, s, model.KindDatalist, datalistPayload(uidColors, "colors"), false)
		out := importAndPersist(t, s, model.KindDatafield, datafieldPayload(uidColor, "color", "colors"), false)
		fingerprints[t.Name()] = out.Fingerprint
	})

	require.Len(t, fingerprints, 2)
	var prints []string
	for _, fp := range fingerprints {
		prints = append(prints, fp)
	}
	assert.Equal(t, prints[0], prints[1], "references compare by name, not by internal id")
}

func TestImport_NaturalKeyFallback(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		first := importAndPersist(t, s, model.KindDatalist, datalistPayload(uidColors, "colors", listEntry("red")), false)

		t.Run("identical without uid", func(t *testing.T) {
			out, err := newImporter(s).Import(ctx, model.KindDatalist, datalistPayload("", "colors", listEntry("red")), false)
			require.NoError(t, err)
			assert.Equal(t, DecisionIdentical, out.Decision)
			assert.Equal(t, first.Entity.ID, out.Entity.ID)
		})

		t.Run("different without replace", func(t *testing.T) {
			_, err := newImporter(s).Import(ctx, model.KindDatalist, datalistPayload("", "colors", listEntry("blue")), false)
			require.Error(t, err)
			assert.Equal(t, ErrCodeDuplicateKey, CodeOf(err))
		})

		t.Run("different with replace", func(t *testing.T) {
			out, err := newImporter(s).Import(ctx, model.KindDatalist, datalistPayload("", "colors", listEntry("blue")), true)
			require.NoError(t, err)
			assert.Equal(t, DecisionUpdated, out.Decision)
			assert.Equal(t, mustUID(uidColors), out.Entity.UID, "the stored UID is kept")
		})

		t.Run("other uid holds the key", func(t *testing.T) {
			_, err := newImporter(s).Import(ctx, model.KindDatalist, datalistPayload(uidOther, "colors"), true)
			require.Error(t, err)
			assert.Equal(t, ErrCodeDuplicateKey, CodeOf(err))
		})
	})
}

func TestImport_AdoptsLegacyEntity(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		legacy := storetest.Datalist("colors", uuid.Nil)
		require.NoError(t, s.Persist(ctx, legacy))

		_, err := newImporter(s).Import(ctx, model.KindDatalist, datalistPayload(uidColors, "colors"), false)
		assert.Equal(t, ErrCodeDuplicateKey, CodeOf(err))

		out, err := newImporter(s).Import(ctx, model.KindDatalist, datalistPayload(uidColors, "colors"), true)
		require.NoError(t, err)
		assert.Equal(t, DecisionUpdated, out.Decision)
		assert.Contains(t, out.Changed, "uid")
		require.NoError(t, s.Persist(ctx, out.Entity))

		found, err := s.FindByUID(ctx, model.KindDatalist, mustUID(uidColors))
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, legacy.ID, found[0].ID)
	})
}

func TestImport_EntrySetReconciliation(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		first := importAndPersist(t, s, model.KindDatalist,
			datalistPayload(uidColors, "colors", listEntry("a"), listEntry("b"), listEntry("c")), false)
		storedB, _ := first.Entity.Entries.Get("b")

		b := listEntry("b")
		b["entry_value"] = value.String("B prime")
		out, err := newImporter(s).Import(ctx, model.KindDatalist,
			datalistPayload(uidColors, "colors", b, listEntry("c"), listEntry("d")), false)
		require.NoError(t, err)

		assert.Equal(t, DecisionUpdated, out.Decision)
		assert.True(t, out.Entity.Modified())
		assert.Equal(t, []string{"d"}, out.Entries.Added)
		assert.Equal(t, []string{"b"}, out.Entries.Updated)
		assert.Equal(t, []string{"a"}, out.Entries.Removed)
		assert.Equal(t, []string{"c"}, out.Entries.Unchanged)

		require.NoError(t, s.Persist(ctx, out.Entity))
		assert.Equal(t, []string{"b", "c", "d"}, out.Entity.Entries.Names())

		stored, err := s.LoadEntries(ctx, first.Entity.ID)
		require.NoError(t, err)
		require.Len(t, stored, 3)
		assert.Equal(t, value.String("B prime"), stored["b"].Values["entry_value"])
		assert.Equal(t, storedB.ID, stored["b"].ID)
	})
}

func TestImport_SettingsReplaced(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		importAndPersist(t, s, model.KindDatalist, datalistPayload(uidColors, "colors"), false)
		importAndPersist(t, s, model.KindDatafield, datafieldPayload(uidColor, "color", "colors"), false)

		payload := datafieldPayload(uidColor, "color", "colors")
		payload["settings"] = value.Map{"datalist": value.String("colors")}
		out := importAndPersist(t, s, model.KindDatafield, payload, false)
		assert.Equal(t, DecisionUpdated, out.Decision)
		assert.Equal(t, []string{"settings"}, out.Changed)

		got, err := s.FindByNaturalKey(ctx, model.KindDatafield, "color")
		require.NoError(t, err)
		assert.Equal(t, []string{"datalist_id"}, got.Settings.Keys())
	})
}

func TestImport_StructuredVarsKeepShape(t *testing.T) {
	backends(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		serviceSet := func(ports value.Value) value.Map {
			return value.Map{
				"uuid":        value.String(uidOther),
				"object_name": value.String("web"),
				"object_type": value.String("template"),
				"vars": value.Map{
					"ports": ports,
					"tier":  value.String("gold"),
				},
				"services": value.Map{},
			}
		}
		ports := value.List{value.Int(80), value.Int(443)}

		out := importAndPersist(t, s, model.KindServiceSet, serviceSet(ports), false)
		assert.Equal(t, DecisionCreated, out.Decision)

		stored, err := s.FindByNaturalKey(ctx, model.KindServiceSet, "web")
		require.NoError(t, err)
		assert.Equal(t, value.Map{"ports": ports, "tier": value.String("gold")}, stored.Settings.ToValue())

		out = importAndPersist(t, s, model.KindServiceSet, serviceSet(ports), false)
		assert.Equal(t, DecisionIdentical, out.Decision)

		out = importAndPersist(t, s, model.KindServiceSet, serviceSet(value.String("[80,443]")), false)
		assert.Equal(t, DecisionUpdated, out.Decision, "a string with the same text is a different value")
	})
}

func TestImportEntries_Pure(t *testing.T) {
	parent := model.NewEntity(model.KindDatalist)
	parent.Entries.Put(model.StoredEntry(1, "a", value.Map{"entry_value": value.String("A")}))
	parent.Entries.Put(model.StoredEntry(2, "b", value.Map{"entry_value": value.String("B")}))

	set, plan := ImportEntries(parent, []*model.Entry{
		model.NewEntry("b", value.Map{"entry_value": value.String("B")}),
		model.NewEntry("c", value.Map{"entry_value": value.String("C")}),
	})

	assert.Equal(t, []string{"a", "b", "c"}, set.Names(), "removed entries stay until persisted")
	assert.Equal(t, []string{"a"}, plan.Removed)
	assert.Equal(t, []string{"c"}, plan.Added)
	assert.Equal(t, []string{"b"}, plan.Unchanged)

	a, _ := parent.Entries.Get("a")
	assert.Equal(t, model.EntryUnchanged, a.State, "parent entries are untouched")
	assert.Equal(t, 2, parent.Entries.Len())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "COMPARING", StateComparing.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateResolving.Terminal())
	assert.Equal(t, "many", MatchMany.String())
}

func mustInt(t *testing.T, s string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	return n
}
