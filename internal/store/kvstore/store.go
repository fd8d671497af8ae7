// Package kvstore implements store.Store on BadgerDB.
//
// Key layout:
//
//	e/<id>                      entity record (JSON)
//	k/<kind>/<natural key>      id of the entity holding the key
//	u/<kind>/<uid hex>/<id>     uid index, one key per holder
//	o/<object name>             configuration object (JSON)
//	f/<datafield id>/<object>   field assignment (JSON)
//	s/<id>                      sync property (JSON)
//
// Ids are fixed-width hex so prefix scans return them in numeric order.
// Iterating k/<kind>/ yields entities ordered by natural key bytes.
package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/basket/internal/logging"
	"github.com/roach88/basket/internal/model"
	"github.com/roach88/basket/internal/settings"
	"github.com/roach88/basket/internal/store"
)

var log = logging.Component("store.kv")

var _ store.Store = (*Store)(nil)

// Options configures the BadgerDB store.
type Options struct {
	// Path to the database directory. If empty, uses in-memory mode.
	Path string
	// InMemory forces in-memory mode even if Path is set.
	InMemory bool
	// Logger for BadgerDB. If nil, badger's own logging is disabled.
	Logger badger.Logger
}

// Store is a store.Store backed by BadgerDB.
type Store struct {
	db      *badger.DB
	entity  *badger.Sequence
	entry   *badger.Sequence
	syncSeq *badger.Sequence
}

// Open opens or creates a BadgerDB store.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	if opts.Path == "" || opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	s := &Store{db: db}
	for name, dst := range map[string]**badger.Sequence{
		"seq/entity": &s.entity,
		"seq/entry":  &s.entry,
		"seq/sync":   &s.syncSeq,
	} {
		seq, err := db.GetSequence([]byte(name), 64)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open sequence %s: %w", name, err)
		}
		*dst = seq
	}

	log.Debug("badger opened", "path", opts.Path, "in_memory", badgerOpts.InMemory)
	return s, nil
}

// Close releases sequences and closes the database.
func (s *Store) Close() error {
	var errs []error
	for _, seq := range []*badger.Sequence{s.entity, s.entry, s.syncSeq} {
		if seq != nil {
			errs = append(errs, seq.Release())
		}
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

// next returns the next id of seq. Ids start at 1; 0 means "unassigned".
func next(seq *badger.Sequence) (int64, error) {
	n, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int64(n) + 1, nil
}

type record struct {
	ID       int64           `json:"id"`
	Kind     model.Kind      `json:"kind"`
	UID      []byte          `json:"uid,omitempty"`
	Props    string          `json:"properties"`
	Settings []settingRecord `json:"settings,omitempty"`
	Entries  []entryRecord   `json:"entries,omitempty"`
}

type settingRecord struct {
	Name   string          `json:"name"`
	Value  string          `json:"value"`
	Format settings.Format `json:"format,omitempty"`
}

type entryRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Data string `json:"data"`
}

func entityKey(id int64) []byte {
	return fmt.Appendf(nil, "e/%016x", id)
}

func naturalKeyPrefix(kind model.Kind) []byte {
	return fmt.Appendf(nil, "k/%s/", kind)
}

func naturalKey(kind model.Kind, key string) []byte {
	return append(naturalKeyPrefix(kind), key...)
}

func uidPrefix(kind model.Kind, uid []byte) []byte {
	return fmt.Appendf(nil, "u/%s/%x/", kind, uid)
}

func uidKey(kind model.Kind, uid []byte, id int64) []byte {
	return fmt.Appendf(uidPrefix(kind, uid), "%016x", id)
}

func encodeID(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func decodeID(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func getRecord(txn *badger.Txn, id int64) (*record, error) {
	item, err := txn.Get(entityKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode entity %d: %w", id, err)
	}
	return &rec, nil
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// scanPrefix calls fn for every key under prefix in key order.
func scanPrefix(txn *badger.Txn, prefix []byte, values bool, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var val []byte
		if values {
			var err error
			if val, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

func (rec *record) entity() (*model.Entity, error) {
	uid, err := store.UIDFromBytes(rec.UID)
	if err != nil {
		return nil, fmt.Errorf("entity %d: %w", rec.ID, err)
	}
	props, err := store.UnmarshalValues(rec.Props)
	if err != nil {
		return nil, fmt.Errorf("entity %d: %w", rec.ID, err)
	}
	e := store.NewLoaded(rec.Kind, rec.ID, uid, props)
	schema := e.Schema()
	if schema.HasSettings() {
		e.Settings = rec.settings()
	}
	if schema.HasEntries() {
		entries, err := rec.entries()
		if err != nil {
			return nil, err
		}
		set := model.NewEntrySet()
		for _, entry := range entries {
			set.Put(entry)
		}
		e.Entries = set
	}
	return e, nil
}

func (rec *record) settings() *settings.Map {
	pairs := make([]settings.Pair, len(rec.Settings))
	for i, p := range rec.Settings {
		pairs[i] = settings.Pair{Name: p.Name, Value: p.Value, Format: p.Format}
	}
	return settings.FromStored(pairs)
}

func (rec *record) entries() (map[string]*model.Entry, error) {
	out := make(map[string]*model.Entry, len(rec.Entries))
	for _, er := range rec.Entries {
		values, err := store.UnmarshalValues(er.Data)
		if err != nil {
			return nil, fmt.Errorf("entity %d entry %q: %w", rec.ID, er.Name, err)
		}
		out[er.Name] = model.StoredEntry(er.ID, er.Name, values)
	}
	return out, nil
}

func (s *Store) view(ctx context.Context, fn func(*badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(*badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}
