package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/store"
)

// FindByUID returns every entity of kind carrying uid, ordered by id.
func (s *Store) FindByUID(ctx context.Context, kind model.Kind, uid uuid.UUID) ([]*model.Entity, error) {
	if uid == uuid.Nil {
		return nil, nil
	}
	var out []*model.Entity
	err := s.view(ctx, func(txn *badger.Txn) error {
		var ids []int64
		prefix := uidPrefix(kind, store.UIDBytes(uid))
		if err := scanPrefix(txn, prefix, false, func(key, _ []byte) error {
			var id int64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%x", &id); err != nil {
				return fmt.Errorf("uid index key %q: %w", key, err)
			}
			ids = append(ids, id)
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			e, err := loadEntity(txn, kind, id)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find %s by uid: %w", kind, err)
	}
	return out, nil
}

// FindByNaturalKey returns the entity of kind named key.
func (s *Store) FindByNaturalKey(ctx context.Context, kind model.Kind, key string) (*model.Entity, error) {
	var e *model.Entity
	err := s.view(ctx, func(txn *badger.Txn) error {
		id, err := idForKey(txn, kind, key)
		if err != nil {
			return err
		}
		e, err = loadEntity(txn, kind, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", kind, key, err)
	}
	return e, nil
}

// FindByID returns the entity of kind with internal id.
func (s *Store) FindByID(ctx context.Context, kind model.Kind, id int64) (*model.Entity, error) {
	var e *model.Entity
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		e, err = loadEntity(txn, kind, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("find %s %d: %w", kind, id, err)
	}
	return e, nil
}

// List returns all entities of kind ordered by natural key.
func (s *Store) List(ctx context.Context, kind model.Kind) ([]*model.Entity, error) {
	var out []*model.Entity
	err := s.view(ctx, func(txn *badger.Txn) error {
		var ids []int64
		if err := scanPrefix(txn, naturalKeyPrefix(kind), true, func(_, val []byte) error {
			ids = append(ids, decodeID(val))
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			e, err := loadEntity(txn, kind, id)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return out, nil
}

// LoadSettings returns the settings of entity id in stored order.
func (s *Store) LoadSettings(ctx context.Context, id int64) (*settings.Map, error) {
	var m *settings.Map
	err := s.view(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		m = rec.settings()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load settings %d: %w", id, err)
	}
	return m, nil
}

// LoadEntries returns the entries owned by entity id keyed by name.
func (s *Store) LoadEntries(ctx context.Context, id int64) (map[string]*model.Entry, error) {
	var out map[string]*model.Entry
	err := s.view(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		out, err = rec.entries()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load entries %d: %w", id, err)
	}
	return out, nil
}

// LoadObject returns the configuration object named name.
func (s *Store) LoadObject(ctx context.Context, name string) (store.Object, error) {
	var obj store.Object
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(objectKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &obj)
		})
	})
	if err != nil {
		return store.Object{}, fmt.Errorf("load object %q: %w", name, err)
	}
	return obj, nil
}

// ScanReferences returns everything that refers to entity id of kind.
func (s *Store) ScanReferences(ctx context.Context, kind model.Kind, id int64) ([]store.Reference, error) {
	var refs []store.Reference
	switch kind {
	case model.KindDatalist:
		fields, err := s.List(ctx, model.KindDatafield)
		if err != nil {
			return nil, fmt.Errorf("scan references: %w", err)
		}
		refs = append(refs, store.ListUsers(fields, id)...)

		var props []store.SyncProperty
		err = s.view(ctx, func(txn *badger.Txn) error {
			return scanPrefix(txn, []byte("s/"), true, func(_, val []byte) error {
				var p store.SyncProperty
				if err := json.Unmarshal(val, &p); err != nil {
					return err
				}
				props = append(props, p)
				return nil
			})
		})
		if err != nil {
			return nil, fmt.Errorf("scan references: %w", err)
		}
		refs = append(refs, store.SyncRuleUsers(props, id)...)

	case model.KindDatafield:
		prefix := fieldPrefix(id)
		err := s.view(ctx, func(txn *badger.Txn) error {
			return scanPrefix(txn, prefix, false, func(key, _ []byte) error {
				name := strings.TrimPrefix(string(key), string(prefix))
				refs = append(refs, store.Reference{Kind: store.RefObject, Name: name, Detail: "field assignment"})
				return nil
			})
		})
		if err != nil {
			return nil, fmt.Errorf("scan references: %w", err)
		}

	case model.KindTimePeriod:
		self, err := s.FindByID(ctx, kind, id)
		if err != nil {
			return nil, fmt.Errorf("scan references: %w", err)
		}
		periods, err := s.List(ctx, model.KindTimePeriod)
		if err != nil {
			return nil, fmt.Errorf("scan references: %w", err)
		}
		refs = append(refs, store.PeriodUsers(periods, self.NaturalKey())...)
	}
	store.SortReferences(refs)
	return refs, nil
}

func idForKey(txn *badger.Txn, kind model.Kind, key string) (int64, error) {
	item, err := txn.Get(naturalKey(kind, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	var id int64
	err = item.Value(func(val []byte) error {
		id = decodeID(val)
		return nil
	})
	return id, err
}

func loadEntity(txn *badger.Txn, kind model.Kind, id int64) (*model.Entity, error) {
	rec, err := getRecord(txn, id)
	if err != nil {
		return nil, err
	}
	if rec.Kind != kind {
		return nil, store.ErrNotFound
	}
	return rec.entity()
}
