// Package period answers whether a named time period is active at a given
// instant.
//
// A period is directly active when one of its own ranges contains the
// instant. Included and excluded periods are checked one level deep: only
// their own ranges count, never their includes or excludes. A period with
// no ranges and no includes is never active.
package period

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/basket/internal/logging"
	"github.com/roach88/basket/internal/model"
)

var log = logging.Component("period")

// Source looks up periods by name. prefetch.Cache implements it.
type Source interface {
	Period(ctx context.Context, name string) (*model.Entity, error)
}

// Verdict explains an evaluation.
type Verdict struct {
	Period         string `json:"period"`
	At             string `json:"at"`
	Active         bool   `json:"active"`
	Direct         bool   `json:"direct"`
	PreferIncludes bool   `json:"prefer_includes"`

	// IncludedBy and ExcludedBy name the first include or exclude whose
	// ranges contain the instant.
	IncludedBy string `json:"included_by,omitempty"`
	ExcludedBy string `json:"excluded_by,omitempty"`
}

// Clock supplies the instant used when a caller asks about "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Evaluator evaluates periods read from a Source.
type Evaluator struct {
	src   Source
	clock Clock
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock sets the clock behind IsActiveNow. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(ev *Evaluator) {
		ev.clock = c
	}
}

// New returns an evaluator reading periods from src.
func New(src Source, opts ...Option) *Evaluator {
	ev := &Evaluator{src: src, clock: SystemClock{}}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

// Now returns the evaluator clock's current instant.
func (ev *Evaluator) Now() time.Time {
	return ev.clock.Now()
}

// IsActiveNow reports whether the period named name is active now.
func (ev *Evaluator) IsActiveNow(ctx context.Context, name string) (bool, error) {
	return ev.IsActive(ctx, name, ev.clock.Now())
}

// IsActive reports whether the period named name is active at at.
func (ev *Evaluator) IsActive(ctx context.Context, name string, at time.Time) (bool, error) {
	v, err := ev.Evaluate(ctx, name, at)
	if err != nil {
		return false, err
	}
	return v.Active, nil
}

// Evaluate looks up the period named name and evaluates it at at.
func (ev *Evaluator) Evaluate(ctx context.Context, name string, at time.Time) (Verdict, error) {
	p, err := ev.src.Period(ctx, name)
	if err != nil {
		return Verdict{}, fmt.Errorf("period %q: %w", name, err)
	}
	return ev.EvaluatePeriod(ctx, p, at)
}

// EvaluatePeriod evaluates p at at.
func (ev *Evaluator) EvaluatePeriod(ctx context.Context, p *model.Entity, at time.Time) (Verdict, error) {
	v := Verdict{
		Period:         p.NaturalKey(),
		At:             at.Format(time.RFC3339),
		PreferIncludes: p.GetString("prefer_includes") != "n",
	}

	var err error
	if v.Direct, err = InRange(p, at); err != nil {
		return Verdict{}, err
	}
	if v.IncludedBy, err = ev.firstInRange(ctx, p.Props.Strings("includes"), at); err != nil {
		return Verdict{}, err
	}
	if v.ExcludedBy, err = ev.firstInRange(ctx, p.Props.Strings("excludes"), at); err != nil {
		return Verdict{}, err
	}

	included, excluded := v.IncludedBy != "", v.ExcludedBy != ""
	if v.PreferIncludes {
		switch {
		case included:
			v.Active = true
		case excluded:
			v.Active = false
		default:
			v.Active = v.Direct
		}
	} else {
		switch {
		case excluded:
			v.Active = false
		case included:
			v.Active = true
		default:
			v.Active = v.Direct
		}
	}

	log.Debug("period evaluated",
		"period", v.Period,
		"at", v.At,
		"active", v.Active,
		"direct", v.Direct,
		"included_by", v.IncludedBy,
		"excluded_by", v.ExcludedBy)
	return v, nil
}

func (ev *Evaluator) firstInRange(ctx context.Context, names []string, at time.Time) (string, error) {
	for _, name := range names {
		other, err := ev.src.Period(ctx, name)
		if err != nil {
			return "", fmt.Errorf("period %q: %w", name, err)
		}
		ok, err := InRange(other, at)
		if err != nil {
			return "", err
		}
		if ok {
			return name, nil
		}
	}
	return "", nil
}

// InRange reports whether one of p's own ranges contains at.
func InRange(p *model.Entity, at time.Time) (bool, error) {
	if p.Entries == nil {
		return false, nil
	}
	for _, entry := range p.Entries.Active() {
		r, err := ParseRange(entry.Name, entry.Values.GetString("range_value"))
		if err != nil {
			return false, fmt.Errorf("period %q: %w", p.NaturalKey(), err)
		}
		if r.Contains(at) {
			return true, nil
		}
	}
	return false, nil
}
