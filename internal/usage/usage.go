// Package usage guards deletes of entities that other configuration still
// refers to.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/basket/internal/logging"
	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
)

var log = logging.Component("usage")

// InUseError rejects the delete of an entity that is still referenced.
type InUseError struct {
	Kind       model.Kind
	Key        string
	References []store.Reference
}

// Error implements the error interface.
func (e *InUseError) Error() string {
	names := make([]string, len(e.References))
	for i, r := range e.References {
		names[i] = r.String()
	}
	return fmt.Sprintf("cannot delete %s %q: still used by %s",
		model.MustSchema(e.Kind).Label, e.Key, strings.Join(names, ", "))
}

// IsInUse returns true if err rejects a delete because of references.
func IsInUse(err error) bool {
	var iu *InUseError
	return errors.As(err, &iu)
}

// Guard scans references before deletes.
type Guard struct {
	r store.Reader
}

// NewGuard returns a guard scanning r.
func NewGuard(r store.Reader) *Guard {
	return &Guard{r: r}
}

// Check returns an *InUseError naming every reference to e, nil when e
// may be deleted.
func (g *Guard) Check(ctx context.Context, e *model.Entity) error {
	refs, err := g.r.ScanReferences(ctx, e.Kind, e.ID)
	if err != nil {
		return fmt.Errorf("check usage of %s: %w", e.Label(), err)
	}
	if len(refs) == 0 {
		return nil
	}
	return &InUseError{Kind: e.Kind, Key: e.NaturalKey(), References: refs}
}

// Delete removes the entity of kind named key after checking that nothing
// refers to it.
func Delete(ctx context.Context, s store.Store, kind model.Kind, key string) (*model.Entity, error) {
	e, err := s.FindByNaturalKey(ctx, kind, key)
	if err != nil {
		return nil, fmt.Errorf("delete %s %q: %w", kind, key, err)
	}
	if err := NewGuard(s).Check(ctx, e); err != nil {
		log.Warn("delete rejected", "kind", kind, "key", key, "error", err)
		return nil, err
	}
	if err := s.Delete(ctx, e); err != nil {
		return nil, err
	}
	log.Info("entity deleted", "kind", kind, "key", key, "id", e.ID)
	return e, nil
}
