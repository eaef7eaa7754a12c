package itunes

// SearchResponse is the iTunes Search API response envelope
type SearchResponse struct {
	ResultCount int           `json:"resultCount"`
	Results     []AlbumResult `json:"results"`
}

// AlbumResult is one collection entry of a search response
type AlbumResult struct {
	WrapperType     string  `json:"wrapperType,omitempty"`
	CollectionType  string  `json:"collectionType,omitempty"`
	ArtistID        int     `json:"artistId"`
	CollectionID    int     `json:"collectionId,omitempty"`
	ArtistName      string  `json:"artistName"`
	CollectionName  string  `json:"collectionName"`
	ArtworkURL100   string  `json:"artworkUrl100"`
	ArtworkURL60    string  `json:"artworkUrl60,omitempty"`
	CollectionPrice float64 `json:"collectionPrice"`
	Currency        string  `json:"currency,omitempty"`
}
