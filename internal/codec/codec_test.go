package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/albumcache/internal/domain"
)

var queenAlbums = []domain.Album{
	{ArtistID: 3296287, ArtistName: "Queen", CollectionName: "A Night at the Opera", ArtworkURL: "https://x/opera.jpg", CollectionPrice: 9.99},
	{ArtistID: 3296287, ArtistName: "Queen", CollectionName: "News of the World", ArtworkURL: "https://x/news.jpg", CollectionPrice: 7.99},
}

func TestAlbumsRoundTrip(t *testing.T) {
	data, err := EncodeAlbums(queenAlbums)
	require.NoError(t, err)

	got, err := DecodeAlbums(data)
	require.NoError(t, err)
	assert.Equal(t, queenAlbums, got)
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := EncodeAlbums(queenAlbums)
	require.NoError(t, err)
	b, err := EncodeAlbums(queenAlbums)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmptyListsAreNotErrors(t *testing.T) {
	data, err := EncodeAlbums(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	albums, err := DecodeAlbums(data)
	require.NoError(t, err)
	assert.NotNil(t, albums)
	assert.Empty(t, albums)

	data, err = EncodeStrings(nil)
	require.NoError(t, err)
	terms, err := DecodeStrings(data)
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"null", "null"},
		{"object", `{"artistId":1}`},
		{"truncated", `[{"artistId":1,"artistName":"Qu`},
		{"trailing data", `[] []`},
		{"wrong field type", `[{"artistId":"one"}]`},
		{"unknown field", `[{"artistId":1,"genre":"rock"}]`},
		{"raw image bytes", "\xff\xd8\xff\xe0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAlbums([]byte(tt.input))
			require.Error(t, err)

			var decErr *DecodeError
			require.True(t, errors.As(err, &decErr))
			assert.Equal(t, ShapeAlbums, decErr.Shape)
		})
	}
}

func TestDecodeStringsRejectsAlbumShape(t *testing.T) {
	data, err := EncodeAlbums(queenAlbums)
	require.NoError(t, err)

	_, err = DecodeStrings(data)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, ShapeStrings, decErr.Shape)
}

func TestStringsPreserveOrder(t *testing.T) {
	terms := []string{"Queen", "ABBA", "Björk", "AC/DC"}
	data, err := EncodeStrings(terms)
	require.NoError(t, err)

	got, err := DecodeStrings(data)
	require.NoError(t, err)
	assert.Equal(t, terms, got)
}

func TestEncodeStringsRejectsInvalidUTF8(t *testing.T) {
	_, err := EncodeStrings([]string{"Queen", "Qu\xffeen"})
	assert.ErrorIs(t, err, ErrInvalidUTF8)

	// JSON would otherwise decode to a different string than was encoded
	data, err := EncodeStrings([]string{"Björk"})
	require.NoError(t, err)
	got, err := DecodeStrings(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Björk"}, got)
}
