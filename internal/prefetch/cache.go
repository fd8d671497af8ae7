// Package prefetch provides the lookup cache shared by one import batch or
// one evaluation request.
//
// A Cache is created for a batch, passed explicitly to the components that
// need it, and discarded afterwards. It answers name⇄id lookups for
// referenced entities and period lookups for the evaluator. It is never
// consulted for UID resolution: identity reads always go to storage.
package prefetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/store"
)

// Cache memoizes reference lookups against a store.Reader. It is not safe
// for concurrent use.
type Cache struct {
	r       store.Reader
	names   map[model.Kind]map[int64]string
	ids     map[model.Kind]map[string]int64
	periods map[string]*model.Entity
	hits    int
	misses  int

	// provisional is the last id handed out by Plan. It counts down from
	// zero so provisional ids never collide with stored ones.
	provisional int64
}

// New returns an empty cache reading through r.
func New(r store.Reader) *Cache {
	return &Cache{
		r:       r,
		names:   make(map[model.Kind]map[int64]string),
		ids:     make(map[model.Kind]map[string]int64),
		periods: make(map[string]*model.Entity),
	}
}

// Warm preloads every entity of the given kinds.
func (c *Cache) Warm(ctx context.Context, kinds ...model.Kind) error {
	for _, kind := range kinds {
		list, err := c.r.List(ctx, kind)
		if err != nil {
			return fmt.Errorf("warm %s: %w", kind, err)
		}
		for _, e := range list {
			c.Observe(e)
		}
	}
	return nil
}

// ReferenceName returns the natural key of entity id of kind.
func (c *Cache) ReferenceName(ctx context.Context, kind model.Kind, id int64) (string, error) {
	if name, ok := c.names[kind][id]; ok {
		c.hits++
		return name, nil
	}
	c.misses++
	e, err := c.r.FindByID(ctx, kind, id)
	if err != nil {
		return "", err
	}
	c.Observe(e)
	return e.NaturalKey(), nil
}

// ReferenceID returns the internal id of the entity of kind named name.
// A missing entity yields an error wrapping store.ErrNotFound.
func (c *Cache) ReferenceID(ctx context.Context, kind model.Kind, name string) (int64, error) {
	if id, ok := c.ids[kind][name]; ok {
		c.hits++
		return id, nil
	}
	c.misses++
	e, err := c.r.FindByNaturalKey(ctx, kind, name)
	if err != nil {
		return 0, err
	}
	c.Observe(e)
	return e.ID, nil
}

// Period returns the time period named name with its ranges.
func (c *Cache) Period(ctx context.Context, name string) (*model.Entity, error) {
	if p, ok := c.periods[name]; ok {
		c.hits++
		return p, nil
	}
	c.misses++
	p, err := c.r.FindByNaturalKey(ctx, model.KindTimePeriod, name)
	if err != nil {
		return nil, err
	}
	c.Observe(p)
	return p, nil
}

// Observe records a stored entity. Import drivers call it after every
// persist so later lookups in the batch see the write, including renames.
func (c *Cache) Observe(e *model.Entity) {
	if e == nil || e.ID == 0 {
		return
	}
	c.record(e, e.ID)
}

// Plan records e as if it had been persisted and returns the id lookups
// will report for it. Entities that are not bound to a stored row get a
// negative provisional id. Dry runs use it so that later payloads can
// refer to entities the run would have created.
func (c *Cache) Plan(e *model.Entity) int64 {
	id := e.ID
	if !e.Loaded() || id == 0 {
		c.provisional--
		id = c.provisional
	}
	c.record(e, id)
	return id
}

func (c *Cache) record(e *model.Entity, id int64) {
	c.forgetID(e.Kind, id)
	key := e.NaturalKey()
	if c.names[e.Kind] == nil {
		c.names[e.Kind] = make(map[int64]string)
		c.ids[e.Kind] = make(map[string]int64)
	}
	c.names[e.Kind][id] = key
	c.ids[e.Kind][key] = id
	if e.Kind == model.KindTimePeriod {
		c.periods[key] = e
	}
}

// Forget drops a deleted entity.
func (c *Cache) Forget(e *model.Entity) {
	if e == nil {
		return
	}
	c.forgetID(e.Kind, e.ID)
}

func (c *Cache) forgetID(kind model.Kind, id int64) {
	old, ok := c.names[kind][id]
	if !ok {
		return
	}
	delete(c.names[kind], id)
	delete(c.ids[kind], old)
	if kind == model.KindTimePeriod {
		delete(c.periods, old)
	}
}

// Stats reports cache hits and misses since creation.
func (c *Cache) Stats() (hits, misses int) {
	return c.hits, c.misses
}

// IsNotFound reports whether err means the looked-up entity does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
