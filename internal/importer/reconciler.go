// Package importer reconciles incoming configuration payloads against
// stored entities.
//
// Each payload walks a small state machine:
//
//	START → RESOLVING → COMPARING → IDENTICAL | UPDATING
//	                  → CREATING  → CREATED
//
// with FAILED reachable from any non-terminal state. Identity is the UID;
// payloads without one fall back to the natural key. Identical payloads
// cause no write, so importing the same basket twice is a no-op.
//
// Reconciliation never persists. The Batch driver persists outcomes,
// feeds the per-batch prefetch cache and runs rename propagation.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/roach88/basket/internal/compare"
	"github.com/roach88/basket/internal/entries"
	"github.com/roach88/basket/internal/logging"
	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/prefetch"
	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/store"
	"github.com/roach88/basket/internal/value"
)

var log = logging.Component("importer")

// State is a reconciliation state.
type State int

const (
	StateStart State = iota
	StateResolving
	StateComparing
	StateCreating
	StateIdentical
	StateUpdating
	StateCreated
	StateFailed
)

var stateNames = [...]string{
	StateStart:     "START",
	StateResolving: "RESOLVING",
	StateComparing: "COMPARING",
	StateCreating:  "CREATING",
	StateIdentical: "IDENTICAL",
	StateUpdating:  "UPDATING",
	StateCreated:   "CREATED",
	StateFailed:    "FAILED",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateIdentical, StateUpdating, StateCreated, StateFailed:
		return true
	}
	return false
}

// Decision is the outcome of a successful reconciliation.
type Decision string

const (
	DecisionIdentical Decision = "identical"
	DecisionUpdated   Decision = "updated"
	DecisionCreated   Decision = "created"
)

// Outcome is the result of importing one payload.
type Outcome struct {
	// Entity is the stored entity for identical outcomes, and the entity
	// to persist otherwise.
	Entity   *model.Entity
	Decision Decision

	// Rename is set when an update changed the natural key under a matched
	// UID. The same marker is attached to Entity until propagated.
	Rename *model.RenameMarker

	// Entries is the sub-entity plan for kinds owning a collection.
	Entries entries.Plan

	// Changed lists the top-level canonical fields that differ from the
	// stored entity. Empty for identical and created outcomes.
	Changed []string

	// Fingerprint is the content fingerprint of the incoming canonical
	// form; StoredFingerprint that of the matched stored entity.
	Fingerprint       string
	StoredFingerprint string

	// Trail records the states visited, ending in a terminal one.
	Trail []State
}

// Importer reconciles payloads against a store. Identity lookups always go
// to the store; reference lookups go through the per-batch cache.
type Importer struct {
	store store.Reader
	cache *prefetch.Cache
	norm  *compare.Normalizer
	uids  UIDGenerator
}

// Option configures an Importer.
type Option func(*Importer)

// WithUIDGenerator sets the generator used for entities created without a
// UID. Default: UUIDv7Generator.
func WithUIDGenerator(g UIDGenerator) Option {
	return func(im *Importer) {
		im.uids = g
	}
}

// New creates an Importer reading identities from r and references
// through cache.
func New(r store.Reader, cache *prefetch.Cache, opts ...Option) *Importer {
	im := &Importer{
		store: r,
		cache: cache,
		norm:  compare.New(cache),
		uids:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Cache returns the prefetch cache the importer resolves references with.
func (im *Importer) Cache() *prefetch.Cache {
	return im.cache
}

// run tracks the state machine of one Import call.
type run struct {
	kind  model.Kind
	key   string
	uid   string
	trail []State
}

func (r *run) to(s State) {
	from := r.trail[len(r.trail)-1]
	r.trail = append(r.trail, s)
	log.Debug("state transition", "kind", r.kind, "key", r.key, "from", from, "to", s)
}

func (r *run) fail(err error) error {
	r.to(StateFailed)
	if IsIntegrityError(err) {
		log.Error("import rejected", "kind", r.kind, "key", r.key, "uid", r.uid, "error", err)
	} else {
		log.Warn("import failed", "kind", r.kind, "key", r.key, "uid", r.uid, "error", err)
	}
	return err
}

// Import reconciles one payload of kind.
//
// replaceExisting allows a payload to overwrite a stored entity it can
// only be matched to by natural key. Payloads matched by UID are updated
// whenever their content differs.
//
// On error nothing has been changed and the returned error is an *Error
// unless a storage call failed.
func (im *Importer) Import(ctx context.Context, kind model.Kind, payload value.Map, replaceExisting bool) (*Outcome, error) {
	r := &run{kind: kind, trail: []State{StateStart}}

	p, err := ParsePayload(kind, payload)
	if err != nil {
		return nil, r.fail(err)
	}
	r.key = p.Entity.NaturalKey()
	if p.HasUID() {
		r.uid = p.Entity.UID.String()
	}

	if err := im.resolveReferences(ctx, p); err != nil {
		return nil, r.fail(err)
	}

	r.to(StateResolving)
	existing, byKey, err := im.resolveIdentity(ctx, p, replaceExisting)
	if err != nil {
		return nil, r.fail(err)
	}

	var out *Outcome
	if existing == nil {
		r.to(StateCreating)
		out, err = im.create(ctx, p)
		if err != nil {
			return nil, r.fail(err)
		}
		r.to(StateCreated)
	} else {
		r.to(StateComparing)
		if byKey {
			p.Entity.UID = existing.UID
		}
		out, err = im.compareAndBind(ctx, p, existing, byKey, replaceExisting)
		if err != nil {
			return nil, r.fail(err)
		}
		if out.Decision == DecisionIdentical {
			r.to(StateIdentical)
		} else {
			r.to(StateUpdating)
		}
	}

	out.Trail = r.trail
	attrs := []any{"kind", kind, "key", out.Entity.NaturalKey(), "uid", out.Entity.UID, "decision", out.Decision}
	if out.Rename != nil {
		attrs = append(attrs, "renamed_from", out.Rename.PreviousNaturalKey)
	}
	log.Info("entity reconciled", attrs...)
	return out, nil
}

// resolveReferences rewrites named references in the payload settings to
// internal ids of the referenced entities.
func (im *Importer) resolveReferences(ctx context.Context, p *Payload) error {
	schema := p.Entity.Schema()
	s := p.Entity.Settings
	if s == nil {
		return nil
	}
	for _, ref := range schema.SettingRefs {
		name, ok := s.Get(ref.Alias)
		if !ok {
			continue
		}
		if name == "" {
			s.Delete(ref.Alias)
			continue
		}
		id, err := im.cache.ReferenceID(ctx, ref.Target, name)
		if prefetch.IsNotFound(err) {
			return NewUnresolvedReferenceError(p.Kind, p.Entity.NaturalKey(), ref.Target, name, err)
		}
		if err != nil {
			return fmt.Errorf("resolve %s %q: %w", ref.Target, name, err)
		}
		s.Rename(ref.Alias, ref.Setting)
		s.Set(ref.Setting, strconv.FormatInt(id, 10))
	}
	return nil
}

// resolveIdentity finds the stored entity the payload binds to. byKey is
// true when the match was made by natural key for a payload without UID.
func (im *Importer) resolveIdentity(ctx context.Context, p *Payload, replace bool) (existing *model.Entity, byKey bool, err error) {
	kind, key := p.Kind, p.Entity.NaturalKey()

	if !p.HasUID() {
		holder, err := im.findByKey(ctx, kind, key)
		if err != nil || holder == nil {
			return nil, false, err
		}
		return holder, true, nil
	}

	uid := p.Entity.UID
	res, err := Resolve(ctx, im.store, kind, uid)
	if err != nil {
		return nil, false, err
	}
	switch res.Match {
	case MatchMany:
		return nil, false, NewDuplicateUIDError(kind, key, uid.String(), len(res.Entities))

	case MatchOne:
		existing := res.Entities[0]
		if existing.NaturalKey() != key {
			holder, err := im.findByKey(ctx, kind, key)
			if err != nil {
				return nil, false, err
			}
			if holder != nil && holder.ID != existing.ID {
				return nil, false, NewDuplicateKeyError(kind, key, uid.String(),
					fmt.Sprintf("cannot rename %q, the name is held by %s", existing.NaturalKey(), holder))
			}
		}
		return existing, false, nil
	}

	holder, err := im.findByKey(ctx, kind, key)
	if err != nil || holder == nil {
		return nil, false, err
	}
	if holder.HasUID() {
		return nil, false, NewDuplicateKeyError(kind, key, uid.String(),
			fmt.Sprintf("stored entity has UID %s", holder.UID))
	}
	if !replace {
		return nil, false, NewDuplicateKeyError(kind, key, uid.String(),
			"stored entity has no UID, import with replace to adopt it")
	}
	log.Info("adopting entity without UID", "kind", kind, "key", key, "uid", uid, "id", holder.ID)
	return holder, false, nil
}

func (im *Importer) findByKey(ctx context.Context, kind model.Kind, key string) (*model.Entity, error) {
	e, err := im.store.FindByNaturalKey(ctx, kind, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %q: %w", kind, key, err)
	}
	return e, nil
}

func (im *Importer) create(ctx context.Context, p *Payload) (*Outcome, error) {
	e := p.Entity
	if !e.HasUID() {
		e.UID = im.uids.Generate()
	}
	plan := entries.Plan{}
	if e.Schema().HasEntries() {
		plan = entries.Apply(e, p.Entries)
	}
	form, err := im.norm.Normalize(ctx, e)
	if err != nil {
		return nil, err
	}
	fp, err := compare.Fingerprint(form)
	if err != nil {
		return nil, err
	}
	return &Outcome{Entity: e, Decision: DecisionCreated, Entries: plan, Fingerprint: fp}, nil
}

func (im *Importer) compareAndBind(ctx context.Context, p *Payload, existing *model.Entity, byKey, replace bool) (*Outcome, error) {
	incoming := p.Entity
	if incoming.Schema().HasEntries() {
		entries.Apply(incoming, p.Entries)
	}

	storedForm, err := im.norm.Normalize(ctx, existing)
	if err != nil {
		return nil, err
	}
	incomingForm, err := im.norm.Normalize(ctx, incoming)
	if err != nil {
		return nil, err
	}
	out := &Outcome{}
	if out.StoredFingerprint, err = compare.Fingerprint(storedForm); err != nil {
		return nil, err
	}
	if out.Fingerprint, err = compare.Fingerprint(incomingForm); err != nil {
		return nil, err
	}

	if compare.Equal(storedForm, incomingForm) {
		out.Entity = existing
		out.Decision = DecisionIdentical
		if existing.Entries != nil {
			_, out.Entries = ImportEntries(existing, p.Entries)
		}
		return out, nil
	}

	if byKey && !replace {
		return nil, NewDuplicateKeyError(p.Kind, incoming.NaturalKey(), "",
			"stored entity differs, import with replace to overwrite it")
	}

	out.Changed = compare.Diff(storedForm, incomingForm)
	out.Entity, out.Entries = bind(existing, p)
	out.Decision = DecisionUpdated
	out.Rename = out.Entity.Rename
	return out, nil
}

// bind transfers the payload onto the stored entity so that persisting
// it updates the stored row, and sets the rename marker when the natural
// key changed.
func bind(existing *model.Entity, p *Payload) (*model.Entity, entries.Plan) {
	target := existing
	schema := target.Schema()
	previous := target.NaturalKey()

	if target.UID != p.Entity.UID {
		target.UID = p.Entity.UID
		target.MarkModified()
	}
	target.Set(schema.Key, value.Clone(p.Entity.Get(schema.Key)))
	for _, prop := range schema.Properties {
		target.Set(prop, value.Clone(p.Entity.Get(prop)))
	}
	for _, prop := range schema.ListProperties {
		target.Set(prop, value.Clone(p.Entity.Get(prop)))
	}

	if schema.HasSettings() {
		if target.Settings == nil {
			target.Settings = settings.New()
		}
		target.Settings.ReplaceWith(p.Entity.Settings)
	}

	var plan entries.Plan
	if schema.HasEntries() {
		plan = entries.Apply(target, p.Entries)
	}

	target.BindTo(existing.ID)
	target.MarkModified()
	if key := target.NaturalKey(); key != previous {
		target.Rename = &model.RenameMarker{ShouldRename: true, PreviousNaturalKey: previous}
	}
	return target, plan
}

// ImportEntries reconciles incoming sub-entities against the entries
// parent currently owns and returns the merged set. parent is not
// changed.
func ImportEntries(parent *model.Entity, incoming []*model.Entry) (*model.EntrySet, entries.Plan) {
	var current map[string]*model.Entry
	if parent.Entries != nil {
		current = parent.Entries.Map()
	}
	return entries.Reconcile(current, incoming)
}
