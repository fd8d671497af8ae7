package importer

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/prefetch"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/value"
)

// RenameEvent records one propagated natural-key change.
type RenameEvent struct {
	Kind model.Kind `json:"kind"`
	From string     `json:"from"`
	To   string     `json:"to"`

	// Affected counts the dependent artifacts rewritten.
	Affected int `json:"affected"`
}

// Propagator updates artifacts that refer to an entity by its natural key
// after the entity was renamed.
//
// Datalists are referenced by internal id and need no propagation.
// Datafield renames rename the custom variable on configuration objects.
// Time period renames rewrite the include and exclude lists of other
// periods.
type Propagator struct {
	store store.Store
	cache *prefetch.Cache
}

// NewPropagator returns a propagator writing to s. cache, when not nil,
// observes every period it rewrites.
func NewPropagator(s store.Store, cache *prefetch.Cache) *Propagator {
	return &Propagator{store: s, cache: cache}
}

// Propagate consumes the rename marker of a persisted entity. It returns
// nil when e carries no marker. The marker is cleared before any work so
// a second call is a no-op.
func (p *Propagator) Propagate(ctx context.Context, e *model.Entity) (*RenameEvent, error) {
	marker := e.Rename
	e.Rename = nil
	if marker == nil || !marker.ShouldRename {
		return nil, nil
	}

	ev := &RenameEvent{Kind: e.Kind, From: marker.PreviousNaturalKey, To: e.NaturalKey()}
	if ev.From == ev.To {
		return nil, nil
	}

	var err error
	switch e.Kind {
	case model.KindDatafield:
		ev.Affected, err = p.store.RenameVar(ctx, ev.From, ev.To)
	case model.KindTimePeriod:
		ev.Affected, err = p.renamePeriodReferences(ctx, e.ID, ev.From, ev.To)
	}
	if err != nil {
		return nil, fmt.Errorf("propagate rename of %s from %q: %w", e.Label(), ev.From, err)
	}

	log.Info("rename propagated", "kind", ev.Kind, "from", ev.From, "to", ev.To, "affected", ev.Affected)
	return ev, nil
}

func (p *Propagator) renamePeriodReferences(ctx context.Context, self int64, from, to string) (int, error) {
	periods, err := p.store.List(ctx, model.KindTimePeriod)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, period := range periods {
		if period.ID == self {
			continue
		}
		touched := false
		for _, prop := range []string{"includes", "excludes"} {
			names := period.Props.Strings(prop)
			i := slices.Index(names, from)
			if i < 0 {
				continue
			}
			if slices.Contains(names, to) {
				names = slices.Delete(names, i, i+1)
			} else {
				names[i] = to
			}
			period.Set(prop, value.StringList(names...))
			touched = true
		}
		if !touched {
			continue
		}
		if err := p.store.Persist(ctx, period); err != nil {
			return changed, err
		}
		if p.cache != nil {
			p.cache.Observe(period)
		}
		changed++
	}
	return changed, nil
}
