package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/settings"
)

// Sentinel errors shared by every backend. Backends wrap them with
// operation context; match with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate natural key")
)

// Reader is the read side of the storage collaborator.
//
// Entities returned by Find* and List are fully loaded (settings and
// entries attached) and report Loaded() == true and Modified() == false.
type Reader interface {
	// FindByUID returns every entity of kind carrying uid. More than one
	// result is an integrity violation the caller must surface.
	FindByUID(ctx context.Context, kind model.Kind, uid uuid.UUID) ([]*model.Entity, error)

	// FindByNaturalKey returns the entity of kind named key, or ErrNotFound.
	FindByNaturalKey(ctx context.Context, kind model.Kind, key string) (*model.Entity, error)

	// FindByID returns the entity with internal id, or ErrNotFound.
	FindByID(ctx context.Context, kind model.Kind, id int64) (*model.Entity, error)

	// LoadSettings returns the settings stored for entity id in stored order.
	LoadSettings(ctx context.Context, id int64) (*settings.Map, error)

	// LoadEntries returns the entries owned by entity id keyed by name.
	LoadEntries(ctx context.Context, id int64) (map[string]*model.Entry, error)

	// List returns all entities of kind ordered by natural key.
	List(ctx context.Context, kind model.Kind) ([]*model.Entity, error)

	// ScanReferences returns everything that refers to entity id of kind.
	// An empty result means the entity may be deleted.
	ScanReferences(ctx context.Context, kind model.Kind, id int64) ([]Reference, error)
}

// Store is the storage collaborator used by the importer.
type Store interface {
	Reader
	Attachments

	// Persist inserts e when it is not Loaded and updates the bound row
	// otherwise. Settings are diffed against their stored state. Entries
	// are written in two phases: removed entries are deleted first, the
	// remaining ones are upserted with e's id as owner, then removed
	// entries are purged from e.Entries. A natural key collision fails with
	// ErrDuplicateKey. On success e.MarkStored is called.
	Persist(ctx context.Context, e *model.Entity) error

	// Delete removes e with its settings and entries. Callers are expected
	// to run the usage guard first.
	Delete(ctx context.Context, e *model.Entity) error

	Close() error
}

// Attachments are the rows outside the importable kinds that refer to
// them: field assignments on configuration objects, the objects' custom
// variables and sync rule properties.
type Attachments interface {
	// SaveObject inserts or replaces a configuration object.
	SaveObject(ctx context.Context, obj Object) error

	// LoadObject returns the configuration object named name, or ErrNotFound.
	LoadObject(ctx context.Context, name string) (Object, error)

	// AssignField attaches datafield fieldID to an object.
	AssignField(ctx context.Context, a FieldAssignment) error

	// AddSyncProperty records a sync rule property.
	AddSyncProperty(ctx context.Context, p SyncProperty) error

	// RenameVar renames custom variable from to to on every object that
	// carries from and not to. It returns the number of objects changed.
	RenameVar(ctx context.Context, from, to string) (int, error)
}

// Object is a configuration object (host, service, command, ...) that can
// carry custom variables and have datafields assigned.
type Object struct {
	Name    string            `json:"object_name"`
	Type    string            `json:"object_type"`
	Class   string            `json:"icinga_type"`
	Imports []string          `json:"imports,omitempty"`
	Command string            `json:"check_command,omitempty"`
	Vars    map[string]string `json:"vars,omitempty"`
}

// IsTemplate reports whether the object is a template.
func (o Object) IsTemplate() bool {
	return o.Type == "template"
}

// FieldAssignment attaches a datafield to an object.
type FieldAssignment struct {
	Object   string `json:"object_name"`
	FieldID  int64  `json:"datafield_id"`
	Required bool   `json:"is_required"`
}

// SyncProperty is one property mapping of a sync rule.
type SyncProperty struct {
	Rule             string `json:"rule_name"`
	DestinationField string `json:"destination_field"`
	SourceExpression string `json:"source_expression"`
}

// Reference describes one thing blocking the deletion of an entity.
type Reference struct {
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// String implements fmt.Stringer.
func (r Reference) String() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s %q", r.Kind, r.Name)
	}
	return fmt.Sprintf("%s %q (%s)", r.Kind, r.Name, r.Detail)
}
