package domain

import "fmt"

// Album is one album returned by a remote search. Values are never mutated
// after decoding; callers share them freely.
type Album struct {
	ArtistID        int     `json:"artistId"`
	ArtistName      string  `json:"artistName"`
	CollectionName  string  `json:"collectionName"`
	ArtworkURL      string  `json:"artworkUrl"`
	CollectionPrice float64 `json:"collectionPrice"`
}

// HasArtwork returns true if the album carries an artwork URL.
func (a Album) HasArtwork() bool {
	return a.ArtworkURL != ""
}

// String returns "Artist - Collection" for display and logging.
func (a Album) String() string {
	return fmt.Sprintf("%s - %s", a.ArtistName, a.CollectionName)
}

// SearchResult is the ordered album list stored for one search term.
type SearchResult struct {
	Term   string
	Albums []Album
}

// Len returns the number of albums in the result
func (r SearchResult) Len() int { return len(r.Albums) }

// CloneAlbums returns a copy of albums so callers can't alias cached slices.
func CloneAlbums(albums []Album) []Album {
	if albums == nil {
		return nil
	}
	out := make([]Album, len(albums))
	copy(out, albums)
	return out
}
