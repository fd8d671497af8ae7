package kvstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newTestStore(t)
	})
}

func TestOpen_OnDiskSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Options{Path: dir})
	require.NoError(t, err)
	e := storetest.Datalist("colors", uuid.MustParse("6f1c3a52-0b1e-4c3e-9a53-1f0f6e7b8a10"), "red")
	require.NoError(t, s.Persist(ctx, e))
	require.NoError(t, s.Close())

	s, err = Open(Options{Path: dir})
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FindByNaturalKey(ctx, model.KindDatalist, "colors")
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.UID, got.UID)
	assert.Equal(t, []string{"red"}, got.Entries.Names())

	// Ids keep increasing across reopen.
	next := storetest.Datalist("shapes", uuid.Nil)
	require.NoError(t, s.Persist(ctx, next))
	assert.Greater(t, next.ID, e.ID)
}

func TestPersist_CanceledContext(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Persist(ctx, storetest.Datalist("colors", uuid.Nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPersist_UIDChangeMovesIndex(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	first := uuid.MustParse("6f1c3a52-0b1e-4c3e-9a53-1f0f6e7b8a10")
	second := uuid.MustParse("0b6c2f64-51d5-4a39-8f0b-3f0a9e1d7c22")
	e := storetest.Datalist("colors", first)
	require.NoError(t, s.Persist(ctx, e))

	e.UID = second
	e.MarkModified()
	require.NoError(t, s.Persist(ctx, e))

	found, err := s.FindByUID(ctx, model.KindDatalist, first)
	require.NoError(t, err)
	assert.Empty(t, found)
	found, err = s.FindByUID(ctx, model.KindDatalist, second)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}
