package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
)

// SaveObject inserts or replaces a configuration object.
func (s *Store) SaveObject(ctx context.Context, obj store.Object) error {
	imports, err := json.Marshal(nonNil(obj.Imports))
	if err != nil {
		return fmt.Errorf("save object %q: %w", obj.Name, err)
	}
	vars, err := json.Marshal(nonNilMap(obj.Vars))
	if err != nil {
		return fmt.Errorf("save object %q: %w", obj.Name, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO config_objects (object_name, object_type, icinga_type, imports, check_command, vars)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_name) DO UPDATE SET
			object_type = excluded.object_type,
			icinga_type = excluded.icinga_type,
			imports = excluded.imports,
			check_command = excluded.check_command,
			vars = excluded.vars
	`, obj.Name, obj.Type, obj.Class, string(imports), obj.Command, string(vars))
	if err != nil {
		return fmt.Errorf("save object %q: %w", obj.Name, err)
	}
	return nil
}

// LoadObject returns the configuration object named name.
func (s *Store) LoadObject(ctx context.Context, name string) (store.Object, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT object_name, object_type, icinga_type, imports, check_command, vars
		FROM config_objects WHERE object_name = ?
	`, name)
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Object{}, fmt.Errorf("load object %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return store.Object{}, fmt.Errorf("load object %q: %w", name, err)
	}
	return obj, nil
}

func scanObject(sc scanner) (store.Object, error) {
	var (
		obj     store.Object
		imports string
		vars    string
	)
	if err := sc.Scan(&obj.Name, &obj.Type, &obj.Class, &imports, &obj.Command, &vars); err != nil {
		return store.Object{}, err
	}
	if err := json.Unmarshal([]byte(imports), &obj.Imports); err != nil {
		return store.Object{}, fmt.Errorf("imports: %w", err)
	}
	if err := json.Unmarshal([]byte(vars), &obj.Vars); err != nil {
		return store.Object{}, fmt.Errorf("vars: %w", err)
	}
	if len(obj.Imports) == 0 {
		obj.Imports = nil
	}
	if len(obj.Vars) == 0 {
		obj.Vars = nil
	}
	return obj, nil
}

// AssignField attaches a datafield to an object.
func (s *Store) AssignField(ctx context.Context, a store.FieldAssignment) error {
	required := "n"
	if a.Required {
		required = "y"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO object_fields (object_name, datafield_id, is_required)
		VALUES (?, ?, ?)
		ON CONFLICT(object_name, datafield_id) DO UPDATE SET is_required = excluded.is_required
	`, a.Object, a.FieldID, required)
	if err != nil {
		return fmt.Errorf("assign field %d to %q: %w", a.FieldID, a.Object, err)
	}
	return nil
}

// AddSyncProperty records a sync rule property.
func (s *Store) AddSyncProperty(ctx context.Context, p store.SyncProperty) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_properties (rule_name, destination_field, source_expression)
		VALUES (?, ?, ?)
	`, p.Rule, p.DestinationField, p.SourceExpression)
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
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT object_name, vars FROM config_objects ORDER BY object_name COLLATE BINARY ASC
		`)
		if err != nil {
			return fmt.Errorf("query objects: %w", err)
		}
		updates := make(map[string]string)
		for rows.Next() {
			var name, raw string
			if err := rows.Scan(&name, &raw); err != nil {
				rows.Close()
				return fmt.Errorf("scan object: %w", err)
			}
			var vars map[string]string
			if err := json.Unmarshal([]byte(raw), &vars); err != nil {
				rows.Close()
				return fmt.Errorf("object %q vars: %w", name, err)
			}
			v, ok := vars[from]
			if _, taken := vars[to]; !ok || taken {
				continue
			}
			delete(vars, from)
			vars[to] = v
			data, err := json.Marshal(vars)
			if err != nil {
				rows.Close()
				return fmt.Errorf("object %q vars: %w", name, err)
			}
			updates[name] = string(data)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate objects: %w", err)
		}
		rows.Close()

		for name, data := range updates {
			if _, err := tx.ExecContext(ctx, `
				UPDATE config_objects SET vars = ? WHERE object_name = ?
			`, data, name); err != nil {
				return fmt.Errorf("update object %q: %w", name, err)
			}
		}
		changed = len(updates)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rename var %q to %q: %w", from, to, err)
	}
	return changed, nil
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

		props, err := s.syncProperties(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan references: %w", err)
		}
		refs = append(refs, store.SyncRuleUsers(props, id)...)

	case model.KindDatafield:
		rows, err := s.db.QueryContext(ctx, `
			SELECT object_name FROM object_fields WHERE datafield_id = ?
			ORDER BY object_name COLLATE BINARY ASC
		`, id)
		if err != nil {
			return nil, fmt.Errorf("scan references: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, fmt.Errorf("scan references: %w", err)
			}
			refs = append(refs, store.Reference{Kind: store.RefObject, Name: name, Detail: "field assignment"})
		}
		if err := rows.Err(); err != nil {
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

func (s *Store) syncProperties(ctx context.Context) ([]store.SyncProperty, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_name, destination_field, source_expression
		FROM sync_properties ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sync properties: %w", err)
	}
	defer rows.Close()

	var out []store.SyncProperty
	for rows.Next() {
		var p store.SyncProperty
		if err := rows.Scan(&p.Rule, &p.DestinationField, &p.SourceExpression); err != nil {
			return nil, fmt.Errorf("scan sync property: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync properties: %w", err)
	}
	return out, nil
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
