package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/store"
)

const selectEntity = `SELECT id, uid, properties FROM entities`

// FindByUID returns every entity of kind carrying uid, ordered by id.
func (s *Store) FindByUID(ctx context.Context, kind model.Kind, uid uuid.UUID) ([]*model.Entity, error) {
	if uid == uuid.Nil {
		return nil, nil
	}
	entities, err := s.queryEntities(ctx, kind,
		selectEntity+` WHERE kind = ? AND uid = ? ORDER BY id ASC`,
		string(kind), store.UIDBytes(uid))
	if err != nil {
		return nil, fmt.Errorf("find %s by uid: %w", kind, err)
	}
	return entities, nil
}

// FindByNaturalKey returns the entity of kind named key.
func (s *Store) FindByNaturalKey(ctx context.Context, kind model.Kind, key string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		selectEntity+` WHERE kind = ? AND natural_key = ?`, string(kind), key)
	e, err := s.loadRow(ctx, kind, row)
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", kind, key, err)
	}
	return e, nil
}

// FindByID returns the entity of kind with internal id.
func (s *Store) FindByID(ctx context.Context, kind model.Kind, id int64) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		selectEntity+` WHERE kind = ? AND id = ?`, string(kind), id)
	e, err := s.loadRow(ctx, kind, row)
	if err != nil {
		return nil, fmt.Errorf("find %s %d: %w", kind, id, err)
	}
	return e, nil
}

// List returns all entities of kind ordered by natural key.
func (s *Store) List(ctx context.Context, kind model.Kind) ([]*model.Entity, error) {
	entities, err := s.queryEntities(ctx, kind,
		selectEntity+` WHERE kind = ? ORDER BY natural_key COLLATE BINARY ASC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	return entities, nil
}

// LoadSettings returns the settings of entity id in stored order.
func (s *Store) LoadSettings(ctx context.Context, id int64) (*settings.Map, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT setting_name, setting_value, setting_format
		FROM entity_settings
		WHERE entity_id = ?
		ORDER BY position ASC, setting_name COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	var pairs []settings.Pair
	for rows.Next() {
		var p settings.Pair
		if err := rows.Scan(&p.Name, &p.Value, &p.Format); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings.FromStored(pairs), nil
}

// LoadEntries returns the entries owned by entity id keyed by name.
func (s *Store) LoadEntries(ctx context.Context, id int64) (map[string]*model.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entry_name, entry_data
		FROM entity_entries
		WHERE entity_id = ?
		ORDER BY entry_name COLLATE BINARY ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.Entry)
	for rows.Next() {
		var (
			entryID int64
			name    string
			data    string
		)
		if err := rows.Scan(&entryID, &name, &data); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		values, err := store.UnmarshalValues(data)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", name, err)
		}
		out[name] = model.StoredEntry(entryID, name, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

func (s *Store) queryEntities(ctx context.Context, kind model.Kind, query string, args ...any) ([]*model.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}

	// Rows are drained before attachments are loaded: the pool holds a
	// single connection.
	var entities []*model.Entity
	for rows.Next() {
		e, err := scanEntity(kind, rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	rows.Close()

	for _, e := range entities {
		if err := s.attach(ctx, e); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

func (s *Store) loadRow(ctx context.Context, kind model.Kind, row *sql.Row) (*model.Entity, error) {
	e, err := scanEntity(kind, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.attach(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(kind model.Kind, sc scanner) (*model.Entity, error) {
	var (
		id      int64
		uidRaw  []byte
		rawJSON string
	)
	if err := sc.Scan(&id, &uidRaw, &rawJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	uid, err := store.UIDFromBytes(uidRaw)
	if err != nil {
		return nil, fmt.Errorf("entity %d: %w", id, err)
	}
	props, err := store.UnmarshalValues(rawJSON)
	if err != nil {
		return nil, fmt.Errorf("entity %d: %w", id, err)
	}
	return store.NewLoaded(kind, id, uid, props), nil
}

// attach loads the settings and entries of a freshly scanned entity.
func (s *Store) attach(ctx context.Context, e *model.Entity) error {
	schema := e.Schema()
	if schema.HasSettings() {
		m, err := s.LoadSettings(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("load %s: %w", e.Label(), err)
		}
		e.Settings = m
	}
	if schema.HasEntries() {
		entries, err := s.LoadEntries(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("load %s: %w", e.Label(), err)
		}
		set := model.NewEntrySet()
		for _, entry := range entries {
			set.Put(entry)
		}
		e.Entries = set
	}
	return nil
}
