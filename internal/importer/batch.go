package importer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/basket/internal/entries"
	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/prefetch"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/value"
)

// Document is one payload of a basket.
type Document struct {
	Kind    model.Kind
	Payload value.Map

	// Source names where the payload came from, for reporting.
	Source string
}

// Options control a batch run.
type Options struct {
	// Replace allows payloads to overwrite entities they match only by
	// natural key.
	Replace bool

	// DryRun reconciles without persisting. Entities the run would create
	// or rename are recorded in the batch cache under provisional ids, so
	// later payloads can refer to them by name.
	DryRun bool

	// FailFast stops the batch at the first failed entity.
	FailFast bool
}

// EntityReport is the per-entity line of a batch result.
type EntityReport struct {
	Kind              model.Kind   `json:"kind"`
	Key               string       `json:"key"`
	UID               string       `json:"uid,omitempty"`
	Source            string       `json:"source,omitempty"`
	Decision          Decision     `json:"decision,omitempty"`
	Changed           []string     `json:"changed,omitempty"`
	Entries           entries.Plan `json:"entries"`
	Fingerprint       string       `json:"fingerprint,omitempty"`
	StoredFingerprint string       `json:"stored_fingerprint,omitempty"`
	Error             string       `json:"error,omitempty"`
	Code              ErrorCode    `json:"code,omitempty"`
}

// Result summarizes a batch run.
type Result struct {
	Created   int            `json:"created"`
	Updated   int            `json:"updated"`
	Unchanged int            `json:"unchanged"`
	Failed    int            `json:"failed"`
	Renamed   []RenameEvent  `json:"renamed,omitempty"`
	Entries   []EntityReport `json:"entries"`
}

// Err returns an error summarizing failed entities, nil when none failed.
func (r *Result) Err() error {
	if r.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d entities failed to import", r.Failed, len(r.Entries))
}

// Batch imports a set of documents against one store. It owns the
// per-batch prefetch cache.
type Batch struct {
	store      store.Store
	opts       Options
	cache      *prefetch.Cache
	importer   *Importer
	propagator *Propagator
}

// NewBatch returns a batch writing to s.
func NewBatch(s store.Store, opts Options, importerOpts ...Option) *Batch {
	cache := prefetch.New(s)
	return &Batch{
		store:      s,
		opts:       opts,
		cache:      cache,
		importer:   New(s, cache, importerOpts...),
		propagator: NewPropagator(s, cache),
	}
}

// Sort orders docs so that referenced kinds come before the kinds
// referring to them. The order within a kind is preserved.
func Sort(docs []Document) []Document {
	out := slices.Clone(docs)
	slices.SortStableFunc(out, func(a, b Document) int {
		return model.DependencyRank(a.Kind) - model.DependencyRank(b.Kind)
	})
	return out
}

// ReferencedKinds returns the kinds the payloads in docs refer to by name,
// in dependency order.
func ReferencedKinds(docs []Document) []model.Kind {
	var kinds []model.Kind
	for _, doc := range docs {
		schema, err := model.SchemaFor(doc.Kind)
		if err != nil {
			continue
		}
		for _, ref := range schema.SettingRefs {
			if !slices.Contains(kinds, ref.Target) {
				kinds = append(kinds, ref.Target)
			}
		}
	}
	slices.SortFunc(kinds, func(a, b model.Kind) int {
		return model.DependencyRank(a) - model.DependencyRank(b)
	})
	return kinds
}

// Run imports docs in dependency order. Per-entity failures are recorded
// in the result and the run continues unless FailFast is set. The
// returned error is non-nil only for a fail-fast stop or a canceled
// context.
func (b *Batch) Run(ctx context.Context, docs []Document) (*Result, error) {
	res := &Result{Entries: make([]EntityReport, 0, len(docs))}
	log.Info("batch starting", "documents", len(docs), "replace", b.opts.Replace, "dry_run", b.opts.DryRun)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if err := b.cache.Warm(ctx, ReferencedKinds(docs)...); err != nil {
		return res, err
	}

	for _, doc := range Sort(docs) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		report, err := b.one(ctx, doc)
		if err == nil {
			switch report.Decision {
			case DecisionCreated:
				res.Created++
			case DecisionUpdated:
				res.Updated++
			case DecisionIdentical:
				res.Unchanged++
			}
			if report.rename != nil {
				res.Renamed = append(res.Renamed, *report.rename)
			}
			res.Entries = append(res.Entries, report.EntityReport)
			continue
		}

		res.Failed++
		report.Error = err.Error()
		report.Code = CodeOf(err)
		res.Entries = append(res.Entries, report.EntityReport)
		if b.opts.FailFast {
			log.Warn("batch stopped", "kind", doc.Kind, "key", report.Key, "error", err)
			return res, err
		}
	}

	hits, misses := b.cache.Stats()
	log.Info("batch finished",
		"created", res.Created,
		"updated", res.Updated,
		"unchanged", res.Unchanged,
		"failed", res.Failed,
		"cache_hits", hits,
		"cache_misses", misses)
	return res, nil
}

type report struct {
	EntityReport
	rename *RenameEvent
}

func (b *Batch) one(ctx context.Context, doc Document) (report, error) {
	r := report{EntityReport: EntityReport{Kind: doc.Kind, Source: doc.Source}}
	if schema, err := model.SchemaFor(doc.Kind); err == nil {
		r.Key = doc.Payload.GetString(schema.Key)
	}

	out, err := b.importer.Import(ctx, doc.Kind, doc.Payload, b.opts.Replace)
	if err != nil {
		return r, err
	}
	e := out.Entity
	r.Key = e.NaturalKey()
	r.UID = e.UID.String()
	r.Decision = out.Decision
	r.Changed = out.Changed
	r.Entries = out.Entries
	r.Fingerprint = out.Fingerprint
	r.StoredFingerprint = out.StoredFingerprint

	if out.Decision == DecisionIdentical {
		return r, nil
	}
	if b.opts.DryRun {
		id := b.cache.Plan(e)
		log.Debug("planned", "kind", doc.Kind, "key", r.Key, "id", id)
		return r, nil
	}

	if err := b.store.Persist(ctx, e); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return r, &Error{
				Code:    ErrCodeDuplicateKey,
				Kind:    doc.Kind,
				Key:     r.Key,
				UID:     r.UID,
				Message: "natural key already exists",
				Err:     err,
			}
		}
		return r, err
	}
	b.cache.Observe(e)

	ev, err := b.propagator.Propagate(ctx, e)
	if err != nil {
		return r, err
	}
	r.rename = ev
	return r, nil
}

// Cache returns the batch's prefetch cache.
func (b *Batch) Cache() *prefetch.Cache {
	return b.cache
}
