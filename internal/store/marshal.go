package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/value"
)

// MarshalValues converts a value map to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func MarshalValues(m value.Map) (string, error) {
	if m == nil {
		m = value.Map{}
	}
	data, err := value.MarshalCanonical(m)
	if err != nil {
		return "", fmt.Errorf("marshal values: %w", err)
	}
	return string(data), nil
}

// UnmarshalValues parses canonical JSON TEXT to a value map.
// Large integers survive via json.Number.
func UnmarshalValues(data string) (value.Map, error) {
	if data == "" || data == "{}" {
		return value.Map{}, nil
	}
	var m value.Map
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal values: %w", err)
	}
	return m, nil
}

// UIDBytes returns the 16-byte storage form of uid, nil when unassigned.
func UIDBytes(uid uuid.UUID) []byte {
	if uid == uuid.Nil {
		return nil
	}
	b := uid
	return b[:]
}

// UIDFromBytes converts the storage form back. Empty input is uuid.Nil.
func UIDFromBytes(b []byte) (uuid.UUID, error) {
	if len(b) == 0 {
		return uuid.Nil, nil
	}
	uid, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, fmt.Errorf("uid: %w", err)
	}
	return uid, nil
}

// Props returns the persisted property map of e: the natural key and
// every declared property.
func Props(e *model.Entity) value.Map {
	schema := e.Schema()
	out := value.Map{schema.Key: e.Get(schema.Key)}
	for _, p := range schema.Properties {
		out[p] = e.Get(p)
	}
	for _, p := range schema.ListProperties {
		out[p] = e.Get(p)
	}
	return out
}

// NewLoaded builds a loaded entity from its stored parts.
func NewLoaded(kind model.Kind, id int64, uid uuid.UUID, props value.Map) *model.Entity {
	e := model.NewEntity(kind)
	e.UID = uid
	for k, v := range props {
		e.Props[k] = v
	}
	e.MarkStored(id)
	return e
}
