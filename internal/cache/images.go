package cache

import (
	"log/slog"

	"github.com/mmcdole/albumcache/internal/domain"
)

// ImageCache maps image URLs to raw image bytes. It has no tie to history.
type ImageCache struct {
	store  domain.KeyValueStore
	logger *slog.Logger
}

// NewImageCache creates an image cache on top of kv
func NewImageCache(kv domain.KeyValueStore, logger *slog.Logger) *ImageCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageCache{store: kv, logger: logger}
}

// Get returns cached bytes for url; failures are logged and read as a miss.
func (c *ImageCache) Get(url string) ([]byte, bool) {
	data, err := c.Lookup(url)
	if err != nil {
		if err != domain.ErrCacheMiss {
			c.logger.Warn("image cache read failed, treating as miss", "url", url, "error", err)
		}
		return nil, false
	}
	return data, true
}

// Lookup returns cached bytes, domain.ErrCacheMiss, or the store failure.
func (c *ImageCache) Lookup(url string) ([]byte, error) {
	data, ok, err := c.store.Get(ImageKey(url))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return data, nil
}

// Put replaces the cached bytes for url
func (c *ImageCache) Put(url string, data []byte) error {
	return c.store.Set(ImageKey(url), data)
}

// ClearOne removes url from the cache; a missing entry is not an error
func (c *ImageCache) ClearOne(url string) error {
	return c.store.Delete(ImageKey(url))
}

// URLs lists every cached image URL
func (c *ImageCache) URLs() ([]string, error) {
	keys, err := c.store.Keys(PrefixImages)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(keys))
	for i, k := range keys {
		urls[i] = k[len(PrefixImages):]
	}
	return urls, nil
}
