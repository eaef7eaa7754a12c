package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/albumcache/internal/codec"
	"github.com/mmcdole/albumcache/internal/domain"
	"github.com/mmcdole/albumcache/internal/store"
)

// HistoryIndex is the ordered, duplicate-free list of search terms that have
// cached results. It knows nothing about album keys; cascading deletes are
// AlbumCache's job.
type HistoryIndex struct {
	store  domain.KeyValueStore
	logger *slog.Logger
}

// HistoryMatch is a fuzzy match of a query against a recorded term
type HistoryMatch struct {
	Term           string
	Index          int   // Position in history order
	MatchedIndexes []int // Character positions that matched (for highlighting)
	Score          int   // Higher is better
}

// NewHistoryIndex creates a history index on top of kv
func NewHistoryIndex(kv domain.KeyValueStore, logger *slog.Logger) *HistoryIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryIndex{store: kv, logger: logger}
}

// Record appends term if it is not already present.
func (h *HistoryIndex) Record(term string) error {
	return h.store.Update(func(tx domain.Txn) error {
		return h.RecordTx(tx, term)
	})
}

// RecordTx is Record inside a caller-owned transaction. A corrupted history
// list is logged and replaced by a fresh one holding term.
func (h *HistoryIndex) RecordTx(tx domain.Txn, term string) error {
	if !utf8.ValidString(term) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTerm, term)
	}

	terms, err := h.ListTx(tx)
	if err != nil {
		if !isCorruption(err) {
			return err
		}
		h.logger.Warn("discarding corrupted search history", "error", err)
		terms = nil
	}

	if slices.Contains(terms, term) {
		return nil
	}
	return h.write(tx, append(terms, term))
}

// RemoveTx drops term from the history list inside a caller-owned transaction.
func (h *HistoryIndex) RemoveTx(tx domain.Txn, term string) error {
	terms, err := h.ListTx(tx)
	if err != nil {
		if !isCorruption(err) {
			return err
		}
		terms = nil
	}

	i := slices.Index(terms, term)
	if i < 0 {
		return nil
	}
	return h.write(tx, slices.Delete(terms, i, i+1))
}

// ListTx reads the history list inside a transaction. Decode failures are returned.
func (h *HistoryIndex) ListTx(tx domain.Txn) ([]string, error) {
	data, ok, err := tx.Get(HistoryKey)
	if err != nil || !ok {
		return nil, err
	}
	return codec.DecodeStrings(data)
}

// List returns recorded terms in insertion order. Store and decode failures
// are logged and read as an empty history.
func (h *HistoryIndex) List() []string {
	terms, err := h.ListStrict()
	if err != nil {
		h.logger.Warn("failed to read search history", "error", err)
		return []string{}
	}
	return terms
}

// ListStrict is List with failures reported.
func (h *HistoryIndex) ListStrict() ([]string, error) {
	data, ok, err := h.store.Get(HistoryKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	return codec.DecodeStrings(data)
}

// Clear deletes the history list only.
func (h *HistoryIndex) Clear() error {
	return h.store.Delete(HistoryKey)
}

// Match fuzzy-matches query against recorded terms, best match first.
func (h *HistoryIndex) Match(query string) []HistoryMatch {
	query = strings.TrimSpace(query)
	terms := h.List()
	if query == "" || len(terms) == 0 {
		return nil
	}

	// fuzzy folds case itself; matching the stored terms keeps MatchedIndexes
	// as byte offsets into Term
	matches := fuzzy.FindFrom(query, historySource(terms))
	results := make([]HistoryMatch, len(matches))
	for i, m := range matches {
		results[i] = HistoryMatch{
			Term:           terms[m.Index],
			Index:          m.Index,
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return results
}

func (h *HistoryIndex) write(tx domain.Txn, terms []string) error {
	data, err := codec.EncodeStrings(terms)
	if err != nil {
		return err
	}
	return tx.Set(HistoryKey, data)
}

// historySource implements sahilm/fuzzy.Source over recorded terms
type historySource []string

func (s historySource) String(i int) string { return s[i] }

func (s historySource) Len() int { return len(s) }

// isCorruption reports whether err means stored bytes are unreadable, as
// opposed to the store itself failing.
func isCorruption(err error) bool {
	var decErr *codec.DecodeError
	return errors.As(err, &decErr) || errors.Is(err, store.ErrCorruptValue)
}
