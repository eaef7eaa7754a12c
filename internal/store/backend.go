package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketSecure = []byte("secure")
	bucketMeta   = []byte("meta")
)

// rawTxn is an unsealed view of one backend transaction.
type rawTxn interface {
	get(key string) ([]byte, error)
	put(key string, value []byte) error
	del(key string) error
}

// backend holds sealed bytes. Only the store's worker goroutine calls it.
type backend interface {
	get(key string) ([]byte, error)
	keys(prefix string) ([]string, error)
	update(fn func(tx rawTxn) error) error
	loadMeta(name string) ([]byte, error)
	saveMeta(name string, value []byte) error
	close() error
}

// === BoltDB ===

type boltBackend struct {
	db *bolt.DB
}

func openBolt(dir, file string, timeout time.Duration) (*boltBackend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, file)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSecure, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &boltBackend{db: db}, nil
}

func (b *boltBackend) get(key string) ([]byte, error) {
	return b.getFrom(bucketSecure, key)
}

func (b *boltBackend) getFrom(bucket []byte, key string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucket)
		if bk == nil {
			return nil
		}
		if v := bk.Get([]byte(key)); v != nil {
			// bolt memory is only valid for the life of the transaction
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	return data, err
}

func (b *boltBackend) keys(prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSecure).Cursor()
		prefixBytes := []byte(prefix)
		for k, _ := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

func (b *boltBackend) update(fn func(tx rawTxn) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return fn(boltTxn{bucket: tx.Bucket(bucketSecure)})
	})
}

func (b *boltBackend) loadMeta(name string) ([]byte, error) {
	return b.getFrom(bucketMeta, name)
}

func (b *boltBackend) saveMeta(name string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(name), value)
	})
}

func (b *boltBackend) close() error {
	return b.db.Close()
}

type boltTxn struct {
	bucket *bolt.Bucket
}

func (t boltTxn) get(key string) ([]byte, error) {
	v := t.bucket.Get([]byte(key))
	if v == nil {
		return nil, nil
	}
	data := make([]byte, len(v))
	copy(data, v)
	return data, nil
}

func (t boltTxn) put(key string, value []byte) error {
	// Put replaces any previous value for key
	return t.bucket.Put([]byte(key), value)
}

func (t boltTxn) del(key string) error {
	// Delete of a missing key is a no-op in bolt
	return t.bucket.Delete([]byte(key))
}

// === Memory-only mode (no persistence) ===

type memoryBackend struct {
	data map[string][]byte
	meta map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		data: make(map[string][]byte),
		meta: make(map[string][]byte),
	}
}

func (m *memoryBackend) get(key string) ([]byte, error) {
	return cloneBytes(m.data[key]), nil
}

func (m *memoryBackend) keys(prefix string) ([]string, error) {
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryBackend) update(fn func(tx rawTxn) error) error {
	tx := &memoryTxn{
		base:    m.data,
		writes:  make(map[string][]byte),
		deletes: make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for k := range tx.deletes {
		delete(m.data, k)
	}
	for k, v := range tx.writes {
		m.data[k] = v
	}
	return nil
}

func (m *memoryBackend) loadMeta(name string) ([]byte, error) {
	return cloneBytes(m.meta[name]), nil
}

func (m *memoryBackend) saveMeta(name string, value []byte) error {
	m.meta[name] = cloneBytes(value)
	return nil
}

func (m *memoryBackend) close() error {
	m.data = nil
	return nil
}

// memoryTxn stages writes until the update function succeeds
type memoryTxn struct {
	base    map[string][]byte
	writes  map[string][]byte
	deletes map[string]bool
}

func (t *memoryTxn) get(key string) ([]byte, error) {
	if t.deletes[key] {
		return nil, nil
	}
	if v, ok := t.writes[key]; ok {
		return cloneBytes(v), nil
	}
	return cloneBytes(t.base[key]), nil
}

func (t *memoryTxn) put(key string, value []byte) error {
	t.writes[key] = cloneBytes(value)
	delete(t.deletes, key)
	return nil
}

func (t *memoryTxn) del(key string) error {
	delete(t.writes, key)
	t.deletes[key] = true
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
