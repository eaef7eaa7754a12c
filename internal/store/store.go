// Package store implements SecureStore, the encrypted key-value store every
// cache layer persists through.
//
// Values are sealed with AES-256-GCM before they reach disk. All operations
// run on one worker goroutine, so concurrent Get/Set/Delete calls on the same
// key never interleave and are observed in submission order per caller.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/albumcache/internal/domain"
)

const (
	defaultFile        = "albumcache.db"
	defaultOpenTimeout = 1 * time.Second

	metaSalt     = "kdf_salt"
	metaVerifier = "key_verifier"
)

var verifierPlaintext = []byte("albumcache-key-check")

var (
	// ErrWrongPassphrase indicates the key does not open the existing store
	ErrWrongPassphrase = errors.New("passphrase does not match the existing store")

	// ErrNoKey indicates a persistent store was requested without key material
	ErrNoKey = errors.New("persistent store requires a passphrase or key")

	// ErrCorruptValue indicates a stored value failed authentication
	ErrCorruptValue = errors.New("stored value is corrupt or was written under another key")
)

// StoreError wraps a failure from the underlying store.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Options configures Open.
type Options struct {
	// Dir holds the database file. Empty selects memory-only mode.
	Dir string
	// File is the database file name inside Dir
	File string
	// Key is a raw AES key; when set, Passphrase is ignored
	Key []byte
	// Passphrase is stretched with argon2id into the store key
	Passphrase string
	KDF        KDFParams
	// OpenTimeout bounds waiting for the database file lock
	OpenTimeout time.Duration
}

// request is one unit of work for the store worker
type request struct {
	fn   func()
	done chan struct{}
}

// SecureStore implements domain.KeyValueStore over an encrypted backend.
type SecureStore struct {
	backend backend
	sealer  *aesGCMSealer
	logger  *slog.Logger

	requests chan request
	stopped  chan struct{}

	closeMu sync.RWMutex // Guards closed and sends on requests
	closed  bool
}

var _ domain.KeyValueStore = (*SecureStore)(nil)

// Open opens (or creates) a secure store and starts its worker.
func Open(opts Options, logger *slog.Logger) (*SecureStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.File == "" {
		opts.File = defaultFile
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}

	var be backend
	if opts.Dir == "" {
		be = newMemoryBackend()
	} else {
		if len(opts.Key) == 0 && opts.Passphrase == "" {
			return nil, ErrNoKey
		}
		db, err := openBolt(opts.Dir, opts.File, opts.OpenTimeout)
		if err != nil {
			return nil, err
		}
		be = db
	}

	key, err := resolveKey(be, opts)
	if err != nil {
		be.close()
		return nil, err
	}

	sealer, err := newAESGCMSealer(key)
	if err != nil {
		be.close()
		return nil, err
	}

	if err := checkVerifier(be, sealer); err != nil {
		be.close()
		return nil, err
	}

	s := &SecureStore{
		backend:  be,
		sealer:   sealer,
		logger:   logger,
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
	go s.run()

	logger.Debug("secure store opened", "dir", opts.Dir, "memory", opts.Dir == "")
	return s, nil
}

// resolveKey returns the raw key, deriving it from the passphrase and the
// persisted salt when needed. Memory-only stores without key material get an
// ephemeral random key.
func resolveKey(be backend, opts Options) ([]byte, error) {
	if len(opts.Key) > 0 {
		return opts.Key, nil
	}
	if opts.Passphrase == "" {
		// Only reachable in memory-only mode
		return newRandomKey()
	}

	salt, err := be.loadMeta(metaSalt)
	if err != nil {
		return nil, fmt.Errorf("load salt: %w", err)
	}
	if salt == nil {
		if salt, err = NewSalt(); err != nil {
			return nil, err
		}
		if err := be.saveMeta(metaSalt, salt); err != nil {
			return nil, fmt.Errorf("save salt: %w", err)
		}
	}

	return DeriveKey(opts.Passphrase, salt, opts.KDF), nil
}

func newRandomKey() ([]byte, error) {
	a, err := NewSalt()
	if err != nil {
		return nil, err
	}
	b, err := NewSalt()
	if err != nil {
		return nil, err
	}
	return append(a, b...), nil
}

func checkVerifier(be backend, sealer *aesGCMSealer) error {
	sealed, err := be.loadMeta(metaVerifier)
	if err != nil {
		return fmt.Errorf("load key verifier: %w", err)
	}
	if sealed == nil {
		sealed, err = sealer.Seal(verifierPlaintext, []byte(metaVerifier))
		if err != nil {
			return err
		}
		return be.saveMeta(metaVerifier, sealed)
	}
	if _, err := sealer.Open(sealed, []byte(metaVerifier)); err != nil {
		return ErrWrongPassphrase
	}
	return nil
}

func (s *SecureStore) run() {
	defer close(s.stopped)
	for req := range s.requests {
		req.fn()
		close(req.done)
	}
}

// do enqueues fn on the worker and waits for it to finish.
func (s *SecureStore) do(fn func()) error {
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return domain.ErrStoreClosed
	}
	req := request{fn: fn, done: make(chan struct{})}
	s.requests <- req
	s.closeMu.RUnlock()

	<-req.done
	return nil
}

// Get returns the value stored under key. A missing key is (nil, false, nil).
func (s *SecureStore) Get(key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
		opErr error
	)
	err := s.do(func() {
		sealed, err := s.backend.get(key)
		if err != nil {
			opErr = err
			return
		}
		if sealed == nil {
			return
		}
		value, opErr = s.open(key, sealed)
		found = opErr == nil
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		return nil, false, &StoreError{Op: "get", Key: key, Err: err}
	}
	return value, found, nil
}

// Set replaces any value stored under key.
func (s *SecureStore) Set(key string, value []byte) error {
	return s.Update(func(tx domain.Txn) error {
		return tx.Set(key, value)
	})
}

// Delete removes key. Deleting a missing key succeeds.
func (s *SecureStore) Delete(key string) error {
	return s.Update(func(tx domain.Txn) error {
		return tx.Delete(key)
	})
}

// Keys lists stored keys that start with prefix, in byte order.
func (s *SecureStore) Keys(prefix string) ([]string, error) {
	var (
		keys  []string
		opErr error
	)
	err := s.do(func() {
		keys, opErr = s.backend.keys(prefix)
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		return nil, &StoreError{Op: "keys", Key: prefix, Err: err}
	}
	return keys, nil
}

// Update runs fn inside one backend transaction on the worker. Writes made
// through tx commit together if fn returns nil and are discarded otherwise.
// fn must not call back into the store.
func (s *SecureStore) Update(fn func(tx domain.Txn) error) error {
	var opErr error
	err := s.do(func() {
		opErr = s.backend.update(func(raw rawTxn) error {
			return fn(&sealedTxn{raw: raw, store: s})
		})
	})
	if err == nil {
		err = opErr
	}
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: "update", Err: err}
}

// Close stops the worker after pending operations finish and closes the backend.
func (s *SecureStore) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	close(s.requests)
	s.closeMu.Unlock()

	<-s.stopped
	return s.backend.close()
}

func (s *SecureStore) open(key string, sealed []byte) ([]byte, error) {
	plaintext, err := s.sealer.Open(sealed, []byte(key))
	if err != nil {
		s.logger.Warn("sealed value failed to open", "key", key, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCorruptValue, err)
	}
	return plaintext, nil
}

// sealedTxn seals on write and opens on read. The store key is bound as
// additional data, so a value moved under another key fails to open.
type sealedTxn struct {
	raw   rawTxn
	store *SecureStore
}

func (t *sealedTxn) Get(key string) ([]byte, bool, error) {
	sealed, err := t.raw.get(key)
	if err != nil {
		return nil, false, &StoreError{Op: "get", Key: key, Err: err}
	}
	if sealed == nil {
		return nil, false, nil
	}
	value, err := t.store.open(key, sealed)
	if err != nil {
		return nil, false, &StoreError{Op: "get", Key: key, Err: err}
	}
	return value, true, nil
}

func (t *sealedTxn) Set(key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	sealed, err := t.store.sealer.Seal(value, []byte(key))
	if err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	if err := t.raw.put(key, sealed); err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (t *sealedTxn) Delete(key string) error {
	if err := t.raw.del(key); err != nil {
		return &StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}
