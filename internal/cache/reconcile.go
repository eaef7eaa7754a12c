package cache

import (
	"log/slog"
	"slices"
	"unicode/utf8"

	"github.com/mmcdole/albumcache/internal/codec"
	"github.com/mmcdole/albumcache/internal/domain"
)

// ReconcileReport lists what a reconciliation pass repaired
type ReconcileReport struct {
	DroppedTerms  []string // history terms with no readable album entry
	OrphanEntries []string // album entries whose term was not in history
}

// Clean returns true if nothing needed repair
func (r ReconcileReport) Clean() bool {
	return len(r.DroppedTerms) == 0 && len(r.OrphanEntries) == 0
}

// Reconcile restores the history/album invariant: every history term has an
// album entry and every album entry has a history term. Unreadable album
// entries count as missing and are removed along with their term. An
// unreadable history is rebuilt from the album keys in key order; the
// original search order is lost.
func Reconcile(kv domain.KeyValueStore, history *HistoryIndex, logger *slog.Logger) (ReconcileReport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	albumKeys, err := kv.Keys(PrefixAlbums)
	if err != nil {
		return ReconcileReport{}, err
	}

	var report ReconcileReport
	err = kv.Update(func(tx domain.Txn) error {
		report = ReconcileReport{}

		rewrite := false
		terms, err := history.ListTx(tx)
		if err != nil {
			if !isCorruption(err) {
				return err
			}
			logger.Warn("search history unreadable, rebuilding from cached results", "error", err)
			terms = termsFromKeys(albumKeys)
			rewrite = true
		}

		kept := make([]string, 0, len(terms))
		for _, term := range terms {
			data, ok, err := tx.Get(AlbumKey(term))
			if err != nil && !isCorruption(err) {
				return err
			}
			if ok {
				if _, decErr := codec.DecodeAlbums(data); decErr == nil {
					kept = append(kept, term)
					continue
				}
			}
			if err := tx.Delete(AlbumKey(term)); err != nil {
				return err
			}
			report.DroppedTerms = append(report.DroppedTerms, term)
		}

		// Entries written after the key scan are in history already: Put
		// records both in one transaction.
		for _, key := range albumKeys {
			term, _ := TermFromAlbumKey(key)
			if slices.Contains(kept, term) || slices.Contains(report.DroppedTerms, term) {
				continue
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
			report.OrphanEntries = append(report.OrphanEntries, term)
		}

		if !rewrite && len(kept) == len(terms) {
			return nil
		}
		return history.write(tx, kept)
	})
	if err != nil {
		return ReconcileReport{}, err
	}

	if !report.Clean() {
		logger.Info("reconciled album cache",
			"dropped_terms", len(report.DroppedTerms),
			"orphan_entries", len(report.OrphanEntries))
	}
	return report, nil
}

// termsFromKeys recovers history terms from album keys. Terms that could not
// have been recorded are left out and end up as orphans.
func termsFromKeys(keys []string) []string {
	terms := make([]string, 0, len(keys))
	for _, key := range keys {
		term, ok := TermFromAlbumKey(key)
		if ok && utf8.ValidString(term) {
			terms = append(terms, term)
		}
	}
	return terms
}
