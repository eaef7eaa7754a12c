package cache

import "strings"

// Store key namespaces. The three namespaces are disjoint by construction:
// album and image keys always carry a prefix, and the history key has none.
const (
	// HistoryKey is the reserved key holding the search history list
	HistoryKey = "history"

	// PrefixAlbums is the prefix for album result caches (album:{term})
	PrefixAlbums = "album:"

	// PrefixImages is the prefix for raw image caches (image:{url})
	PrefixImages = "image:"
)

// AlbumKey returns the store key for a search term's album results
func AlbumKey(term string) string {
	return PrefixAlbums + term
}

// ImageKey returns the store key for an image URL
func ImageKey(url string) string {
	return PrefixImages + url
}

// TermFromAlbumKey reverses AlbumKey. ok is false for keys outside the album namespace.
func TermFromAlbumKey(key string) (term string, ok bool) {
	if !strings.HasPrefix(key, PrefixAlbums) {
		return "", false
	}
	return strings.TrimPrefix(key, PrefixAlbums), true
}
