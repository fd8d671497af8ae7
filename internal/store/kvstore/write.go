package kvstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
)

func objectKey(name string) []byte {
	return append([]byte("o/"), name...)
}

func fieldPrefix(fieldID int64) []byte {
	return fmt.Appendf(nil, "f/%016x/", fieldID)
}

func syncKey(id int64) []byte {
	return fmt.Appendf(nil, "s/%016x", id)
}

// Persist inserts or updates e with its settings and entries in one
// transaction. Removed entries are dropped from the record before the
// remaining ones are written; e.Entries is purged after commit.
func (s *Store) Persist(ctx context.Context, e *model.Entity) error {
	props, err := store.MarshalValues(store.Props(e))
	if err != nil {
		return fmt.Errorf("persist %s: %w", e.Label(), err)
	}

	inserting := !e.Loaded()
	id := e.ID
	if inserting {
		if id, err = next(s.entity); err != nil {
			return fmt.Errorf("persist %s: allocate id: %w", e.Label(), err)
		}
	}

	newEntryIDs := make(map[string]int64)
	if e.Entries != nil {
		for _, entry := range e.Entries.Active() {
			if entry.ID != 0 && !inserting {
				continue
			}
			entryID, err := next(s.entry)
			if err != nil {
				return fmt.Errorf("persist %s: allocate entry id: %w", e.Label(), err)
			}
			newEntryIDs[entry.Name] = entryID
		}
	}

	err = s.update(ctx, func(txn *badger.Txn) error {
		rec := &record{ID: id, Kind: e.Kind}
		var old *record
		if !inserting {
			var err error
			if old, err = getRecord(txn, id); err != nil {
				return err
			}
			if old.Kind != e.Kind {
				return store.ErrNotFound
			}
		}

		if err := s.indexKey(txn, e, id, old); err != nil {
			return err
		}
		if err := s.indexUID(txn, e, id, old); err != nil {
			return err
		}

		rec.UID = store.UIDBytes(e.UID)
		rec.Props = props
		if e.Settings != nil {
			for _, p := range e.Settings.Pairs() {
				rec.Settings = append(rec.Settings, settingRecord{Name: p.Name, Value: p.Value, Format: p.Format})
			}
		}
		entries, err := mergeEntries(e, old, newEntryIDs)
		if err != nil {
			return err
		}
		rec.Entries = entries
		return putJSON(txn, entityKey(id), rec)
	})
	if err != nil {
		return fmt.Errorf("persist %s: %w", e.Label(), err)
	}

	if e.Entries != nil {
		for name, entryID := range newEntryIDs {
			if entry, ok := e.Entries.Get(name); ok {
				entry.ID = entryID
			}
		}
		e.Entries.Purge()
	}
	e.MarkStored(id)
	log.Debug("entity persisted", "kind", e.Kind, "key", e.NaturalKey(), "id", id, "inserted", inserting)
	return nil
}

// indexKey claims e's natural key for id, releasing the previous key on
// rename.
func (s *Store) indexKey(txn *badger.Txn, e *model.Entity, id int64, old *record) error {
	key := e.NaturalKey()
	holder, err := idForKey(txn, e.Kind, key)
	switch {
	case err == nil && holder != id:
		return store.ErrDuplicateKey
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}

	if old != nil {
		oldProps, err := store.UnmarshalValues(old.Props)
		if err != nil {
			return err
		}
		oldKey := oldProps.GetString(e.Schema().Key)
		if oldKey != key {
			if err := txn.Delete(naturalKey(e.Kind, oldKey)); err != nil {
				return err
			}
		}
	}
	return txn.Set(naturalKey(e.Kind, key), encodeID(id))
}

func (s *Store) indexUID(txn *badger.Txn, e *model.Entity, id int64, old *record) error {
	uid := store.UIDBytes(e.UID)
	if old != nil && len(old.UID) > 0 && !bytes.Equal(old.UID, uid) {
		if err := txn.Delete(uidKey(e.Kind, old.UID, id)); err != nil {
			return err
		}
	}
	if len(uid) == 0 {
		return nil
	}
	return txn.Set(uidKey(e.Kind, uid, id), nil)
}

// mergeEntries applies e's entry states to the stored entry list: removals
// first, then upserts.
func mergeEntries(e *model.Entity, old *record, newIDs map[string]int64) ([]entryRecord, error) {
	if e.Entries == nil {
		return nil, nil
	}
	byName := make(map[string]entryRecord)
	if old != nil {
		for _, er := range old.Entries {
			byName[er.Name] = er
		}
	}

	for _, entry := range e.Entries.Removed() {
		delete(byName, entry.Name)
	}

	for _, entry := range e.Entries.Active() {
		cur, exists := byName[entry.Name]
		if exists && entry.State == model.EntryUnchanged {
			continue
		}
		data, err := store.MarshalValues(entry.Values)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry.Name, err)
		}
		entryID := cur.ID
		if !exists {
			if entryID = newIDs[entry.Name]; entryID == 0 {
				entryID = entry.ID
			}
		}
		byName[entry.Name] = entryRecord{ID: entryID, Name: entry.Name, Data: data}
		newIDs[entry.Name] = entryID
	}

	out := make([]entryRecord, 0, len(byName))
	for _, name := range e.Entries.Names() {
		if er, ok := byName[name]; ok {
			out = append(out, er)
		}
	}
	return out, nil
}

// Delete removes e and its index keys.
func (s *Store) Delete(ctx context.Context, e *model.Entity) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		rec, err := getRecord(txn, e.ID)
		if err != nil {
			return err
		}
		if rec.Kind != e.Kind {
			return store.ErrNotFound
		}
		props, err := store.UnmarshalValues(rec.Props)
		if err != nil {
			return err
		}
		if err := txn.Delete(naturalKey(e.Kind, props.GetString(e.Schema().Key))); err != nil {
			return err
		}
		if len(rec.UID) > 0 {
			if err := txn.Delete(uidKey(e.Kind, rec.UID, e.ID)); err != nil {
				return err
			}
		}
		return txn.Delete(entityKey(e.ID))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", e.Label(), err)
	}
	log.Debug("entity deleted", "kind", e.Kind, "key", e.NaturalKey(), "id", e.ID)
	return nil
}

// SaveObject inserts or replaces a configuration object.
func (s *Store) SaveObject(ctx context.Context, obj store.Object) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, objectKey(obj.Name), obj)
	})
	if err != nil {
		return fmt.Errorf("save object %q: %w", obj.Name, err)
	}
	return nil
}

// AssignField attaches a datafield to an object.
func (s *Store) AssignField(ctx context.Context, a store.FieldAssignment) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, append(fieldPrefix(a.FieldID), a.Object...), a)
	})
	if err != nil {
		return fmt.Errorf("assign field %d to %q: %w", a.FieldID, a.Object, err)
	}
	return nil
}

// AddSyncProperty records a sync rule property.
func (s *Store) AddSyncProperty(ctx context.Context, p store.SyncProperty) error {
	id, err := next(s.syncSeq)
	if err != nil {
		return fmt.Errorf("add sync property to %q: %w", p.Rule, err)
	}
	err = s.update(ctx, func(txn *badger.Txn) error {
		return putJSON(txn, syncKey(id), p)
	})
	if err != nil {
		return fmt.Errorf("add sync property to %q: %w", p.Rule, err)
	}
	return nil
}

// RenameVar renames custom variable from to to on every object carrying
// from and not already carrying to.
func (s *Store) RenameVar(ctx context.Context, from, to string) (int, error) {
	if from == to {
		return 0, nil
	}
	changed := 0
	err := s.update(ctx, func(txn *badger.Txn) error {
		var objs []store.Object
		if err := scanPrefix(txn, []byte("o/"), true, func(_, val []byte) error {
			var obj store.Object
			if err := json.Unmarshal(val, &obj); err != nil {
				return err
			}
			objs = append(objs, obj)
			return nil
		}); err != nil {
			return err
		}
		for _, obj := range objs {
			v, ok := obj.Vars[from]
			if _, taken := obj.Vars[to]; !ok || taken {
				continue
			}
			delete(obj.Vars, from)
			obj.Vars[to] = v
			if err := putJSON(txn, objectKey(obj.Name), obj); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rename var %q to %q: %w", from, to, err)
	}
	return changed, nil
}
