package domain

import (
	"context"
)

// AlbumSource is the remote side of the cache: album search and artwork
// download. Both calls run to completion or failure; failures are *FetchError.
type AlbumSource interface {
	// SearchAlbums returns album results for a search term
	SearchAlbums(ctx context.Context, term string) ([]Album, error)

	// FetchImageBytes downloads the raw image at url
	FetchImageBytes(ctx context.Context, url string) ([]byte, error)
}
