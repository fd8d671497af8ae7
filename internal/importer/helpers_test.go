package importer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/prefetch"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/store/kvstore"
	"github.com/roach88/basket/internal/store/sqlite"
	"github.com/roach88/basket/internal/value"
)

const (
	uidColors = "6f1c3a52-0b1e-4c3e-9a53-1f0f6e7b8a10"
	uidColor  = "0b6c2f64-51d5-4a39-8f0b-3f0a9e1d7c22"
	uidWork   = "9d0e7c1a-3b4f-4e58-8a61-2c7d9e0f1a33"
	uidOther  = "3c2b1a09-8f7e-4d6c-9b5a-4e3d2c1b0a99"
)

// backends runs fn once per storage backend with a fresh store.
func backends(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Helper()
	openers := map[string]func(t *testing.T) store.Store{
		"sqlite": func(t *testing.T) store.Store {
			s, err := sqlite.Open(filepath.Join(t.TempDir(), "basket.db"))
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) store.Store {
			s, err := kvstore.Open(kvstore.Options{InMemory: true})
			require.NoError(t, err)
			return s
		},
	}
	for _, name := range []string{"sqlite", "badger"} {
		open := openers[name]
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func newImporter(s store.Store, opts ...Option) *Importer {
	return New(s, prefetch.New(s), opts...)
}

// importAndPersist imports payload and persists a non-identical outcome.
func importAndPersist(t *testing.T, s store.Store, kind model.Kind, payload value.Map, replace bool) *Outcome {
	t.Helper()
	ctx := context.Background()
	out, err := newImporter(s).Import(ctx, kind, payload, replace)
	require.NoError(t, err)
	if out.Decision != DecisionIdentical {
		require.NoError(t, s.Persist(ctx, out.Entity))
	}
	return out
}

func listEntry(name string) value.Map {
	return value.Map{
		"entry_name":    value.String(name),
		"entry_value":   value.String("Value " + name),
		"format":        value.String("string"),
		"allowed_roles": value.Null{},
	}
}

func datalistPayload(uid, name string, entries ...value.Map) value.Map {
	list := value.List{}
	for _, e := range entries {
		list = append(list, e)
	}
	p := value.Map{
		"list_name": value.String(name),
		"owner":     value.String("admin"),
		"entries":   list,
	}
	if uid != "" {
		p["uuid"] = value.String(uid)
	}
	return p
}

func datafieldPayload(uid, varname, list string) value.Map {
	p := value.Map{
		"varname":     value.String(varname),
		"caption":     value.String("Color"),
		"description": value.Null{},
		"datatype":    value.String(model.DatatypeClass("datalist")),
		"format":      value.Null{},
		"settings": value.Map{
			"datalist": value.String(list),
			"behavior": value.String("strict"),
		},
	}
	if uid != "" {
		p["uuid"] = value.String(uid)
	}
	return p
}

func periodPayload(uid, name string, includes, excludes []string, ranges map[string]string) value.Map {
	r := value.Map{}
	for day, window := range ranges {
		r[day] = value.Map{"range_value": value.String(window), "range_type": value.String("include")}
	}
	p := value.Map{
		"object_name": value.String(name),
		"object_type": value.String("template"),
		"includes":    value.StringList(includes...),
		"excludes":    value.StringList(excludes...),
		"ranges":      r,
	}
	if uid != "" {
		p["uuid"] = value.String(uid)
	}
	return p
}

func mustUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}
