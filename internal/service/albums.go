package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mmcdole/albumcache/internal/cache"
	"github.com/mmcdole/albumcache/internal/domain"
)

const defaultPrefetchWorkers = 4

// Options tunes the album service
type Options struct {
	// StrictReads surfaces corrupted or unreadable album entries as errors
	// instead of treating them as cache misses
	StrictReads bool

	// PrefetchArtwork downloads artwork in the background after a network search
	PrefetchArtwork bool
	PrefetchWorkers int
}

// AlbumsResult is the single completion of an async search
type AlbumsResult struct {
	Albums []domain.Album
	Err    error
}

// ImageResult is the single completion of an async image load
type ImageResult struct {
	Data []byte
	Err  error
}

// Service is the cache-first, network-fallback façade the host calls.
// Successful fetches are written back before they are returned; failed
// fetches leave the cache untouched.
type Service struct {
	store   domain.KeyValueStore
	history *cache.HistoryIndex
	albums  *cache.AlbumCache
	images  *cache.ImageCache
	source  domain.AlbumSource
	opts    Options
	logger  *slog.Logger

	// Concurrent misses for the same key share one network request
	searches  singleflight.Group
	downloads singleflight.Group

	background sync.WaitGroup
}

// New wires the caches on top of kv and falls back to source on misses
func New(kv domain.KeyValueStore, source domain.AlbumSource, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PrefetchWorkers <= 0 {
		opts.PrefetchWorkers = defaultPrefetchWorkers
	}

	history := cache.NewHistoryIndex(kv, logger)
	return &Service{
		store:   kv,
		history: history,
		albums:  cache.NewAlbumCache(kv, history, logger),
		images:  cache.NewImageCache(kv, logger),
		source:  source,
		opts:    opts,
		logger:  logger,
	}
}

// SearchAlbums returns cached albums for term, or fetches, stores and returns
// them. Fetch failures are returned as *domain.FetchError.
func (s *Service) SearchAlbums(ctx context.Context, term string) ([]domain.Album, error) {
	if !utf8.ValidString(term) {
		return nil, &domain.FetchError{Kind: domain.FetchInvalidQuery, Op: "search", Err: domain.ErrInvalidTerm}
	}

	albums, hit, err := s.cachedAlbums(term)
	if err != nil {
		return nil, err
	}
	if hit {
		s.logger.Debug("cache hit", "term", term, "albums", len(albums))
		return albums, nil
	}

	// The shared fetch outlives any single caller; each caller stops waiting
	// when its own ctx is done
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.searches.DoChan(term, func() (interface{}, error) {
		albums, err := s.source.SearchAlbums(fetchCtx, term)
		if err != nil {
			s.logger.Warn("album search failed", "term", term, "error", err)
			return nil, err
		}
		if albums == nil {
			albums = []domain.Album{}
		}

		if err := s.albums.Put(term, albums); err != nil {
			s.logger.Warn("failed to cache search results", "term", term, "error", err)
		}
		s.logger.Info("loaded albums", "term", term, "count", len(albums))

		if s.opts.PrefetchArtwork {
			s.prefetchInBackground(fetchCtx, albums)
		}
		return albums, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("joined in-flight search", "term", term)
		}
		return domain.CloneAlbums(res.Val.([]domain.Album)), nil
	case <-ctx.Done():
		return nil, &domain.FetchError{Kind: domain.FetchTransport, Op: "search", Err: ctx.Err()}
	}
}

func (s *Service) cachedAlbums(term string) ([]domain.Album, bool, error) {
	if !s.opts.StrictReads {
		albums, ok := s.albums.Get(term)
		return albums, ok, nil
	}

	albums, err := s.albums.Lookup(term)
	switch {
	case err == nil:
		return albums, true, nil
	case errors.Is(err, domain.ErrCacheMiss):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// SearchAlbumsAsync runs SearchAlbums in the background. The channel yields
// exactly one result and is then closed.
func (s *Service) SearchAlbumsAsync(ctx context.Context, term string) <-chan AlbumsResult {
	ch := make(chan AlbumsResult, 1)
	go func() {
		defer close(ch)
		albums, err := s.SearchAlbums(ctx, term)
		ch <- AlbumsResult{Albums: albums, Err: err}
	}()
	return ch
}

// SearchAlbumsFunc runs SearchAlbums in the background and calls onComplete
// exactly once, on the background goroutine.
func (s *Service) SearchAlbumsFunc(ctx context.Context, term string, onComplete func([]domain.Album, error)) {
	go func() {
		onComplete(s.SearchAlbums(ctx, term))
	}()
}

// LoadImage returns cached image bytes for url, or downloads, stores and
// returns them. Failures wrap both domain.ErrImageUnavailable and the
// *domain.FetchError, and are never cached.
func (s *Service) LoadImage(ctx context.Context, url string) ([]byte, error) {
	if data, ok := s.images.Get(url); ok {
		return data, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.downloads.DoChan(url, func() (interface{}, error) {
		data, err := s.source.FetchImageBytes(fetchCtx, url)
		if err != nil {
			s.logger.Warn("image download failed", "url", url, "error", err)
			return nil, fmt.Errorf("%w: %w", domain.ErrImageUnavailable, err)
		}
		if err := s.images.Put(url, data); err != nil {
			s.logger.Warn("failed to cache image", "url", url, "error", err)
		}
		return data, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		err := &domain.FetchError{Kind: domain.FetchTransport, Op: "image", Err: ctx.Err()}
		return nil, fmt.Errorf("%w: %w", domain.ErrImageUnavailable, err)
	}
	if res.Err != nil {
		return nil, res.Err
	}

	data := res.Val.([]byte)
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// LoadImageOptional is LoadImage for callers that only care whether an image
// is available: any failure reads as (nil, false).
func (s *Service) LoadImageOptional(ctx context.Context, url string) ([]byte, bool) {
	data, err := s.LoadImage(ctx, url)
	if err != nil {
		return nil, false
	}
	return data, true
}

// LoadImageAsync runs LoadImage in the background. The channel yields exactly
// one result and is then closed.
func (s *Service) LoadImageAsync(ctx context.Context, url string) <-chan ImageResult {
	ch := make(chan ImageResult, 1)
	go func() {
		defer close(ch)
		data, err := s.LoadImage(ctx, url)
		ch <- ImageResult{Data: data, Err: err}
	}()
	return ch
}

// LoadImageFunc runs LoadImageOptional in the background and calls
// onComplete exactly once.
func (s *Service) LoadImageFunc(ctx context.Context, url string, onComplete func([]byte, bool)) {
	go func() {
		onComplete(s.LoadImageOptional(ctx, url))
	}()
}

// CachedImages lists the URLs of every cached image
func (s *Service) CachedImages() ([]string, error) {
	return s.images.URLs()
}

// ForgetImage drops one cached image
func (s *Service) ForgetImage(url string) error {
	return s.images.ClearOne(url)
}

// PrefetchArtwork loads every album's artwork into the image cache with a
// bounded number of concurrent downloads. Failures are logged and skipped.
// Returns how many images are now cached.
func (s *Service) PrefetchArtwork(ctx context.Context, albums []domain.Album) int {
	var (
		g      errgroup.Group
		loaded atomic.Int64
	)
	g.SetLimit(s.opts.PrefetchWorkers)

	seen := make(map[string]bool)
	for _, album := range albums {
		url := album.ArtworkURL
		if !album.HasArtwork() || seen[url] {
			continue
		}
		seen[url] = true

		g.Go(func() error {
			if _, err := s.LoadImage(ctx, url); err != nil {
				s.logger.Debug("artwork prefetch skipped", "url", url, "error", err)
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	g.Wait()

	return int(loaded.Load())
}

func (s *Service) prefetchInBackground(ctx context.Context, albums []domain.Album) {
	albums = domain.CloneAlbums(albums)
	ctx = context.WithoutCancel(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		n := s.PrefetchArtwork(ctx, albums)
		s.logger.Debug("artwork prefetched", "count", n, "albums", len(albums))
	}()
}

// Wait blocks until background prefetches finish. Call before closing the store.
func (s *Service) Wait() {
	s.background.Wait()
}

// History returns searched terms in the order they were first searched
func (s *Service) History() []string {
	return s.history.List()
}

// ClearHistory deletes every cached search result and the history itself
func (s *Service) ClearHistory() error {
	if err := s.albums.ClearAll(); err != nil {
		s.logger.Warn("failed to clear history", "error", err)
		return err
	}
	return nil
}

// Forget deletes one term's cached results and its history entry
func (s *Service) Forget(term string) error {
	return s.albums.ClearOne(term)
}

// MatchHistory fuzzy-matches query against the search history
func (s *Service) MatchHistory(query string) []cache.HistoryMatch {
	return s.history.Match(query)
}

// SimilarTerms returns up to limit history terms close to term, nearest first.
// term itself is excluded.
func (s *Service) SimilarTerms(term string, limit int) []string {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil
	}

	var candidates []string
	for _, t := range s.history.List() {
		if !strings.EqualFold(t, term) {
			candidates = append(candidates, t)
		}
	}

	ranks := fuzzy.RankFindFold(term, candidates)
	for _, t := range candidates {
		// Catch near misses that are not subsequences ("qeen" vs "queen")
		if d := fuzzy.LevenshteinDistance(strings.ToLower(term), strings.ToLower(t)); d <= 2 && !containsTarget(ranks, t) {
			ranks = append(ranks, fuzzy.Rank{Source: term, Target: t, Distance: d, OriginalIndex: -1})
		}
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		return ranks[i].Distance < ranks[j].Distance
	})

	var out []string
	for _, r := range ranks {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, r.Target)
	}
	return out
}

func containsTarget(ranks fuzzy.Ranks, target string) bool {
	for _, r := range ranks {
		if r.Target == target {
			return true
		}
	}
	return false
}

// Reconcile repairs history/album mismatches left by interrupted writes
func (s *Service) Reconcile() (cache.ReconcileReport, error) {
	return cache.Reconcile(s.store, s.history, s.logger)
}
