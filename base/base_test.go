package base_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stevemurr/arowana/base"
	"github.com/stevemurr/arowana/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

func stores(t *testing.T) map[string]store.Store {
	t.Helper()
	sq, err := store.NewSqliteStore(filepath.Join(t.TempDir(), "arowana.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })
	js, err := store.NewJsonFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]store.Store{
		"memory": store.NewMemoryStore(),
		"json":   js,
		"sqlite": sq,
	}
}

func eachBase(t *testing.T, fn func(t *testing.T, b *base.Base)) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			b, err := base.New(s, "items", base.WithLogger(zaptest.NewLogger(t)))
			require.NoError(t, err)
			fn(t, b)
		})
	}
}

func doc(t *testing.T, v any) base.Document {
	t.Helper()
	d, err := base.NewDocument(v)
	require.NoError(t, err)
	return d
}

// normalize mirrors what encoding/json yields for v after storage.
func normalize(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func fetch(t *testing.T, b *base.Base, key string) any {
	t.Helper()
	rec, err := b.Get(key)
	require.NoError(t, err)
	return rec.Data.Value()
}

func TestPutGet(t *testing.T) {
	eachBase(t, func(t *testing.T, b *base.Base) {
		t.Run("generated key round trip", func(t *testing.T) {
			for i := 0; i < 10; i++ {
				m := gofakeit.Map()
				delete(m, "key")
				rec, err := b.Put(doc(t, m), "")
				require.NoError(t, err)
				assert.Len(t, rec.Key, base.DefaultKeyLength)
				assert.Equal(t, normalize(t, m), fetch(t, b, rec.Key))
			}
		})

		t.Run("embedded key is relocated", func(t *testing.T) {
			rec, err := b.Put(doc(t, map[string]any{"key": "alice", "age": 30}), "")
			require.NoError(t, err)
			assert.Equal(t, "alice", rec.Key)
			assert.Equal(t, map[string]any{"age": float64(30)}, rec.Data.Value())
			assert.Equal(t, map[string]any{"age": float64(30)}, fetch(t, b, "alice"))
		})

		t.Run("duplicate embedded key", func(t *testing.T) {
			d, err := base.Parse([]byte(`{"key":"a","key":"b","x":1}`))
			require.NoError(t, err)
			_, err = b.Put(d, "")
			assert.ErrorIs(t, err, base.ErrInvalidDocument)
			_, err = b.Get("a")
			assert.ErrorIs(t, err, base.ErrKeyNotFound)
		})

		t.Run("empty key", func(t *testing.T) {
			_, err := b.Get("")
			assert.ErrorIs(t, err, base.ErrInvalidName)
		})

		t.Run("numeric embedded key", func(t *testing.T) {
			rec, err := b.Put(doc(t, map[string]any{"key": 42, "a": true}), "")
			require.NoError(t, err)
			assert.Equal(t, "42", rec.Key)
		})

		t.Run("explicit key wins and embedded key is stripped", func(t *testing.T) {
			rec, err := b.Put(doc(t, map[string]any{"key": "ignored", "a": 1}), "explicit")
			require.NoError(t, err)
			assert.Equal(t, "explicit", rec.Key)
			assert.Equal(t, map[string]any{"a": float64(1)}, fetch(t, b, "explicit"))
			_, err = b.Get("ignored")
			assert.ErrorIs(t, err, base.ErrKeyNotFound)
		})

		t.Run("object key field is rejected", func(t *testing.T) {
			_, err := b.Put(doc(t, map[string]any{"key": map[string]any{}}), "")
			assert.ErrorIs(t, err, base.ErrInvalidDocument)
		})

		t.Run("scalars and arrays", func(t *testing.T) {
			cases := map[string]any{
				"str":   "hello",
				"int":   int64(7),
				"float": 2.5,
				"bool":  true,
				"array": []any{"a", float64(1), map[string]any{"b": false}},
			}
			for key, v := range cases {
				_, err := b.Put(doc(t, v), key)
				require.NoError(t, err)
				assert.Equal(t, v, fetch(t, b, key), key)
			}
		})

		t.Run("put overwrites", func(t *testing.T) {
			_, err := b.Put(doc(t, map[string]any{"v": 1}), "over")
			require.NoError(t, err)
			_, err = b.Put(doc(t, map[string]any{"w": 2}), "over")
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"w": float64(2)}, fetch(t, b, "over"))
		})

		t.Run("get missing", func(t *testing.T) {
			_, err := b.Get("missing")
			assert.ErrorIs(t, err, base.ErrKeyNotFound)
		})

		t.Run("zero document", func(t *testing.T) {
			_, err := b.Put(base.Document{}, "zero")
			assert.ErrorIs(t, err, base.ErrInvalidDocument)
		})
	})
}

func TestInsert(t *testing.T) {
	eachBase(t, func(t *testing.T, b *base.Base) {
		_, err := b.Insert(doc(t, map[string]any{"v": "first"}), "k")
		require.NoError(t, err)

		_, err = b.Insert(doc(t, map[string]any{"v": "second"}), "k")
		assert.ErrorIs(t, err, base.ErrKeyExists)
		assert.Equal(t, map[string]any{"v": "first"}, fetch(t, b, "k"))

		_, err = b.Insert(doc(t, map[string]any{"key": "k", "v": "third"}), "")
		assert.ErrorIs(t, err, base.ErrKeyExists)

		rec, err := b.Insert(doc(t, []any{1, 2}), "")
		require.NoError(t, err)
		assert.NotEmpty(t, rec.Key)
	})
}

func TestDelete(t *testing.T) {
	eachBase(t, func(t *testing.T, b *base.Base) {
		_, err := b.Put(doc(t, "v"), "k")
		require.NoError(t, err)
		require.NoError(t, b.Delete("k"))
		_, err = b.Get("k")
		assert.ErrorIs(t, err, base.ErrKeyNotFound)

		assert.ErrorIs(t, b.Delete(""), base.ErrInvalidName)

		before, err := b.All()
		require.NoError(t, err)
		assert.NoError(t, b.Delete("k"))
		after, err := b.All()
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestPutManyAndAll(t *testing.T) {
	eachBase(t, func(t *testing.T, b *base.Base) {
		recs, err := b.PutMany([]base.Document{
			doc(t, map[string]any{"a": 1}),
			doc(t, map[string]any{"a": 2}),
			doc(t, map[string]any{"key": "named", "a": 3}),
			doc(t, "scalar"),
		})
		require.NoError(t, err)
		require.Len(t, recs, 4)
		assert.NotEqual(t, recs[0].Key, recs[1].Key)
		assert.Equal(t, "named", recs[2].Key)
		for i, rec := range recs {
			assert.Equal(t, rec.Data.Value(), fetch(t, b, rec.Key), i)
		}
		assert.Equal(t, map[string]any{"a": float64(3)}, recs[2].Data.Value())

		all, err := b.All()
		require.NoError(t, err)
		keys := map[string]bool{}
		for _, rec := range all {
			assert.False(t, keys[rec.Key], "duplicate %s", rec.Key)
			keys[rec.Key] = true
		}
		assert.Len(t, keys, 4)
		for _, rec := range recs {
			assert.True(t, keys[rec.Key], rec.Key)
		}
	})
}

func TestPutManyIsAtomic(t *testing.T) {
	eachBase(t, func(t *testing.T, b *base.Base) {
		_, err := b.PutMany([]base.Document{
			doc(t, map[string]any{"a": 1}),
			doc(t, map[string]any{"key": []any{}}),
		})
		assert.ErrorIs(t, err, base.ErrInvalidDocument)
		all, err := b.All()
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestDrop(t *testing.T) {
	eachBase(t, func(t *testing.T, b *base.Base) {
		_, err := b.Put(doc(t, map[string]any{"a": 1}), "k")
		require.NoError(t, err)
		require.NoError(t, b.Drop())
		assert.NoError(t, b.Drop())

		all, err := b.All()
		require.NoError(t, err)
		assert.Empty(t, all)
		_, err = b.Get("k")
		assert.ErrorIs(t, err, base.ErrKeyNotFound)
		assert.NoError(t, b.Delete("k"))

		_, err = b.Put(doc(t, map[string]any{"a": 2}), "k")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": float64(2)}, fetch(t, b, "k"))
	})
}

func TestNewRejectsBadNames(t *testing.T) {
	_, err := base.New(store.NewMemoryStore(), "drop table; --")
	assert.ErrorIs(t, err, base.ErrInvalidName)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	b, err := base.Open("sqlite", dir, "notes", base.WithKeyLength(20))
	require.NoError(t, err)
	rec, err := b.Put(doc(t, map[string]any{"title": "persisted"}), "")
	require.NoError(t, err)
	assert.Len(t, rec.Key, 20)
	require.NoError(t, b.Close())

	b, err = base.Open("sqlite", dir, "notes")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "notes", b.Name())
	assert.Equal(t, map[string]any{"title": "persisted"}, fetch(t, b, rec.Key))

	_, err = base.Open("redis", dir, "notes")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	type contact struct {
		Email string `json:"email" fake:"{email}"`
	}
	type user struct {
		Name    string  `json:"name" fake:"{firstname}"`
		Age     int     `json:"age" fake:"{number:1,99}"`
		Contact contact `json:"contact"`
	}
	var u user
	require.NoError(t, gofakeit.Struct(&u))

	b, err := base.New(store.NewMemoryStore(), "users")
	require.NoError(t, err)
	rec, err := b.Put(doc(t, u), "")
	require.NoError(t, err)

	got, err := b.Get(rec.Key)
	require.NoError(t, err)
	var out user
	require.NoError(t, got.Data.Decode(&out))
	assert.Equal(t, u, out)
	assert.Equal(t, u.Contact.Email, got.Data.Get("contact.email"))
}

func TestConcurrentIncrement(t *testing.T) {
	const (
		writers   = 4
		perWriter = 25
	)
	path := filepath.Join(t.TempDir(), "arowana.db")
	var bases []*base.Base
	// Two handles on one file stand in for two processes.
	for i := 0; i < 2; i++ {
		s, err := store.NewSqliteStore(path)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		b, err := base.New(s, "counters")
		require.NoError(t, err)
		bases = append(bases, b)
	}
	_, err := bases[0].Put(doc(t, map[string]any{"n": 0}), "hits")
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < writers; i++ {
		b := bases[i%len(bases)]
		g.Go(func() error {
			for j := 0; j < perWriter; j++ {
				if err := b.Update("hits", base.Field("n", base.Increment())); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, map[string]any{"n": float64(writers * perWriter)}, fetch(t, bases[1], "hits"))
}
