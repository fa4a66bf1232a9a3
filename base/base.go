// Package base implements document collections ("bases") on top of a store.
//
// A Base maps string keys to JSON documents. Records are written whole with
// Put, Insert and PutMany, and changed in place with Update, whose field
// operations (Set, Trim, Increment, Append) run inside the store so the
// document never round-trips through the caller.
package base

import (
	"github.com/Masterminds/goutils"
	"github.com/samber/lo"
	"github.com/stevemurr/arowana/store"
	"go.uber.org/zap"
)

// DefaultKeyLength is the length of generated keys.
const DefaultKeyLength = 12

// Record is a key and its document.
type Record struct {
	Key  string   `json:"key"`
	Data Document `json:"data"`
}

// Base is a named collection of records. It holds no locks; concurrent
// callers rely on the store's own atomicity.
type Base struct {
	name      string
	store     store.Store
	logger    *zap.Logger
	keyLength int
	owned     bool
}

// Option configures a Base.
type Option func(*Base)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithKeyLength sets the length of generated keys.
func WithKeyLength(n int) Option {
	return func(b *Base) {
		if n > 0 {
			b.keyLength = n
		}
	}
}

// New returns the base called name in s, creating its table if needed.
func New(s store.Store, name string, opts ...Option) (*Base, error) {
	if err := store.ValidTable(name); err != nil {
		return nil, err
	}
	b := &Base{
		name:      name,
		store:     s,
		logger:    zap.NewNop(),
		keyLength: DefaultKeyLength,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("base", name))
	if err := s.Ensure(name); err != nil {
		return nil, err
	}
	return b, nil
}

// Open opens a store for backend in dataDir and returns a Base that owns
// it. Close releases the store.
func Open(backend, dataDir, name string, opts ...Option) (*Base, error) {
	s, err := store.New(backend, dataDir)
	if err != nil {
		return nil, err
	}
	b, err := New(s, name, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// Name returns the base's name.
func (b *Base) Name() string { return b.name }

// Close closes the store if the Base opened it.
func (b *Base) Close() error {
	if !b.owned {
		return nil
	}
	return b.store.Close()
}

func (b *Base) generateKey() (string, error) {
	return goutils.CryptoRandomAlphaNumeric(b.keyLength)
}

// resolve strips the embedded key field and picks the record key: the
// explicit key, then the embedded one, then a generated one.
func (b *Base) resolve(doc Document, key string) (Record, error) {
	if err := doc.valid(); err != nil {
		return Record{}, err
	}
	body, embedded, err := doc.splitKey()
	if err != nil {
		return Record{}, err
	}
	if key == "" {
		key = embedded
	}
	if key == "" {
		if key, err = b.generateKey(); err != nil {
			return Record{}, err
		}
	}
	return Record{Key: key, Data: body}, nil
}

func (r Record) row() store.Row {
	return store.Row{Key: r.Key, Data: r.Data.raw}
}

// Put stores doc, replacing any record with the same key. An empty key
// means the document's "key" field, or a generated key.
func (b *Base) Put(doc Document, key string) (Record, error) {
	rec, err := b.resolve(doc, key)
	if err != nil {
		return Record{}, err
	}
	if err := b.store.Put(b.name, rec.row()); err != nil {
		return Record{}, err
	}
	b.logger.Debug("put", zap.String("key", rec.Key))
	return rec, nil
}

// Insert stores doc like Put but fails with ErrKeyExists if the key is
// already present.
func (b *Base) Insert(doc Document, key string) (Record, error) {
	rec, err := b.resolve(doc, key)
	if err != nil {
		return Record{}, err
	}
	if err := b.store.Insert(b.name, rec.row()); err != nil {
		return Record{}, err
	}
	b.logger.Debug("insert", zap.String("key", rec.Key))
	return rec, nil
}

// Get returns the record under key, or ErrKeyNotFound. An empty key is
// ErrInvalidName.
func (b *Base) Get(key string) (Record, error) {
	if err := store.ValidKey(key); err != nil {
		return Record{}, err
	}
	raw, err := b.store.Get(b.name, key)
	if err != nil {
		return Record{}, err
	}
	doc, err := Parse(raw)
	if err != nil {
		return Record{}, err
	}
	return Record{Key: key, Data: doc}, nil
}

// Delete removes the record under key. Missing keys are ignored.
func (b *Base) Delete(key string) error {
	if err := store.ValidKey(key); err != nil {
		return err
	}
	if err := b.store.Delete(b.name, key); err != nil {
		return err
	}
	b.logger.Debug("delete", zap.String("key", key))
	return nil
}

// PutMany stores every document in one batch, keyed by their "key" field
// or a generated key. Records come back in input order.
func (b *Base) PutMany(docs []Document) ([]Record, error) {
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		rec, err := b.resolve(doc, "")
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	rows := lo.Map(records, func(r Record, _ int) store.Row { return r.row() })
	if err := b.store.Put(b.name, rows...); err != nil {
		return nil, err
	}
	b.logger.Debug("put many", zap.Int("count", len(records)))
	return records, nil
}

// All returns every record in the store's scan order.
func (b *Base) All() ([]Record, error) {
	rows, err := b.store.All(b.name)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		doc, err := Parse(row.Data)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{Key: row.Key, Data: doc})
	}
	return records, nil
}

// Update applies changes to the record under key, in order, as one
// transaction: either every change lands or none does.
//
//	Set(v)        replaces or adds the field; on a missing key the record
//	              becomes {field: v}
//	Trim()        removes the field; missing keys and fields are ignored
//	Increment()   adds to a numeric field, a missing field counts as 0
//	Append(v)     appends to an array field, a missing field counts as []
//
// Increment and Append on a missing key fail with ErrKeyNotFound, and on a
// value of another type with ErrInvalidMutation.
func (b *Base) Update(key string, changes ...Change) error {
	if err := store.ValidKey(key); err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	patches := make([]store.Patch, 0, len(changes))
	for _, c := range changes {
		p, err := c.patch()
		if err != nil {
			return err
		}
		patches = append(patches, p)
	}
	if err := b.store.Patch(b.name, key, patches...); err != nil {
		return err
	}
	b.logger.Debug("update", zap.String("key", key), zap.Int("count", len(patches)))
	return nil
}

// Drop deletes the base and all its records. The Base stays usable; the
// next write creates it again.
func (b *Base) Drop() error {
	if err := b.store.Drop(b.name); err != nil {
		return err
	}
	b.logger.Debug("drop")
	return nil
}
