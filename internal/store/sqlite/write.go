package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
)

// Persist inserts or updates e with its settings and entries in one
// transaction.
//
// Entries marked for removal are deleted before the remaining entries are
// written, and are purged from e.Entries only once the transaction has
// committed. A failed Persist leaves e untouched.
func (s *Store) Persist(ctx context.Context, e *model.Entity) error {
	props, err := store.MarshalValues(store.Props(e))
	if err != nil {
		return fmt.Errorf("persist %s: %w", e.Label(), err)
	}

	inserting := !e.Loaded()
	id := e.ID
	entryIDs := make(map[string]int64)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if inserting {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO entities (kind, uid, natural_key, properties)
				VALUES (?, ?, ?, ?)
			`, string(e.Kind), uidArg(e.UID), e.NaturalKey(), props)
			if err != nil {
				return constraintError(err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
		} else {
			res, err := tx.ExecContext(ctx, `
				UPDATE entities SET uid = ?, natural_key = ?, properties = ?
				WHERE id = ? AND kind = ?
			`, uidArg(e.UID), e.NaturalKey(), props, id, string(e.Kind))
			if err != nil {
				return constraintError(err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return store.ErrNotFound
			}
		}

		if err := writeSettings(ctx, tx, id, e, inserting); err != nil {
			return err
		}
		return writeEntries(ctx, tx, id, e, inserting, entryIDs)
	})
	if err != nil {
		return fmt.Errorf("persist %s: %w", e.Label(), err)
	}

	if e.Entries != nil {
		for name, entryID := range entryIDs {
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

func writeSettings(ctx context.Context, tx *sql.Tx, id int64, e *model.Entity, inserting bool) error {
	if e.Settings == nil || (!inserting && !e.Settings.Modified()) {
		return nil
	}
	for _, key := range e.Settings.DeletedKeys() {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM entity_settings WHERE entity_id = ? AND setting_name = ?
		`, id, key); err != nil {
			return fmt.Errorf("delete setting %q: %w", key, err)
		}
	}
	for pos, p := range e.Settings.Pairs() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_settings (entity_id, setting_name, setting_value, setting_format, position)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(entity_id, setting_name) DO UPDATE
			SET setting_value = excluded.setting_value,
			    setting_format = excluded.setting_format,
			    position = excluded.position
		`, id, p.Name, p.Value, string(p.Format), pos); err != nil {
			return fmt.Errorf("write setting %q: %w", p.Name, err)
		}
	}
	return nil
}

func writeEntries(ctx context.Context, tx *sql.Tx, id int64, e *model.Entity, inserting bool, assigned map[string]int64) error {
	if e.Entries == nil {
		return nil
	}

	// Phase one: removals.
	for _, entry := range e.Entries.Removed() {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM entity_entries WHERE entity_id = ? AND entry_name = ?
		`, id, entry.Name); err != nil {
			return fmt.Errorf("delete entry %q: %w", entry.Name, err)
		}
	}

	// Phase two: upserts owned by id.
	for _, entry := range e.Entries.Active() {
		if !inserting && entry.State == model.EntryUnchanged {
			continue
		}
		data, err := store.MarshalValues(entry.Values)
		if err != nil {
			return fmt.Errorf("entry %q: %w", entry.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entity_entries (entity_id, entry_name, entry_data)
			VALUES (?, ?, ?)
			ON CONFLICT(entity_id, entry_name) DO UPDATE SET entry_data = excluded.entry_data
		`, id, entry.Name, data); err != nil {
			return fmt.Errorf("write entry %q: %w", entry.Name, err)
		}
		var entryID int64
		if err := tx.QueryRowContext(ctx, `
			SELECT id FROM entity_entries WHERE entity_id = ? AND entry_name = ?
		`, id, entry.Name).Scan(&entryID); err != nil {
			return fmt.Errorf("entry %q id: %w", entry.Name, err)
		}
		assigned[entry.Name] = entryID
	}
	return nil
}

// Delete removes e. Settings and entries cascade.
func (s *Store) Delete(ctx context.Context, e *model.Entity) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ? AND kind = ?`, e.ID, string(e.Kind))
	if err != nil {
		return fmt.Errorf("delete %s: %w", e.Label(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s: %w", e.Label(), store.ErrNotFound)
	}
	log.Debug("entity deleted", "kind", e.Kind, "key", e.NaturalKey(), "id", e.ID)
	return nil
}

// uidArg binds uid as a 16-byte BLOB, or NULL when unassigned.
func uidArg(uid uuid.UUID) any {
	if uid == uuid.Nil {
		return nil
	}
	return store.UIDBytes(uid)
}

// constraintError maps a natural-key collision to store.ErrDuplicateKey.
func constraintError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return store.ErrDuplicateKey
	}
	return err
}
