package itunes

import "github.com/mmcdole/albumcache/internal/domain"

// MapAlbums converts search results to domain albums, preserving order
func MapAlbums(results []AlbumResult) []domain.Album {
	albums := make([]domain.Album, 0, len(results))
	for _, r := range results {
		albums = append(albums, MapAlbum(r))
	}
	return albums
}

// MapAlbum converts one search result. The 100px artwork is preferred and
// the 60px one used when it is missing.
func MapAlbum(r AlbumResult) domain.Album {
	artwork := r.ArtworkURL100
	if artwork == "" {
		artwork = r.ArtworkURL60
	}
	return domain.Album{
		ArtistID:        r.ArtistID,
		ArtistName:      r.ArtistName,
		CollectionName:  r.CollectionName,
		ArtworkURL:      artwork,
		CollectionPrice: r.CollectionPrice,
	}
}
