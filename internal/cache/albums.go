package cache

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/mmcdole/albumcache/internal/codec"
	"github.com/mmcdole/albumcache/internal/domain"
)

// AlbumCache maps search terms to their cached album results. Every stored
// term is also recorded in the HistoryIndex, in the same store transaction.
type AlbumCache struct {
	store   domain.KeyValueStore
	history *HistoryIndex
	logger  *slog.Logger
}

// NewAlbumCache creates an album cache sharing kv with history
func NewAlbumCache(kv domain.KeyValueStore, history *HistoryIndex, logger *slog.Logger) *AlbumCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlbumCache{store: kv, history: history, logger: logger}
}

// Get returns the cached albums for term. Misses, store failures and
// corrupted entries all read as (nil, false); failures are logged.
func (c *AlbumCache) Get(term string) ([]domain.Album, bool) {
	albums, err := c.Lookup(term)
	if err != nil {
		if err != domain.ErrCacheMiss {
			c.logger.Warn("album cache read failed, treating as miss", "term", term, "error", err)
		}
		return nil, false
	}
	return albums, true
}

// Lookup is Get with the failure kind kept: domain.ErrCacheMiss when nothing
// is stored, *codec.DecodeError for corrupted bytes, *store.StoreError when
// the store fails.
func (c *AlbumCache) Lookup(term string) ([]domain.Album, error) {
	data, ok, err := c.store.Get(AlbumKey(term))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return codec.DecodeAlbums(data)
}

// Put replaces the cached albums for term and records term in history.
// Both writes commit together or not at all.
func (c *AlbumCache) Put(term string, albums []domain.Album) error {
	if !utf8.ValidString(term) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTerm, term)
	}

	data, err := codec.EncodeAlbums(albums)
	if err != nil {
		return err
	}

	return c.store.Update(func(tx domain.Txn) error {
		if err := tx.Set(AlbumKey(term), data); err != nil {
			return err
		}
		return c.history.RecordTx(tx, term)
	})
}

// ClearAll deletes the album entry of every term in history, then the
// history itself.
func (c *AlbumCache) ClearAll() error {
	var cleared int
	err := c.store.Update(func(tx domain.Txn) error {
		terms, err := c.history.ListTx(tx)
		if err != nil {
			if !isCorruption(err) {
				return err
			}
			c.logger.Warn("clearing corrupted search history", "error", err)
		}

		for _, term := range terms {
			if err := tx.Delete(AlbumKey(term)); err != nil {
				return err
			}
		}
		cleared = len(terms)
		return tx.Delete(HistoryKey)
	})
	if err != nil {
		return err
	}

	c.logger.Debug("cleared album cache", "terms", cleared)
	return nil
}

// ClearOne deletes a single term's albums and its history entry together.
func (c *AlbumCache) ClearOne(term string) error {
	return c.store.Update(func(tx domain.Txn) error {
		if err := tx.Delete(AlbumKey(term)); err != nil {
			return err
		}
		return c.history.RemoveTx(tx, term)
	})
}
