package itunes

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/albumcache/internal/domain"
)

const queenResponse = `{
  "resultCount": 3,
  "results": [
    {"wrapperType":"collection","artistId":3296287,"collectionId":1,"artistName":"Queen","collectionName":"A Night at the Opera","artworkUrl100":"https://x/1.jpg","collectionPrice":9.99,"currency":"USD"},
    {"wrapperType":"collection","artistId":3296287,"collectionId":2,"artistName":"Queen","collectionName":"Jazz","artworkUrl100":"https://x/2.jpg","collectionPrice":7.99},
    {"wrapperType":"collection","artistId":3296287,"collectionId":3,"artistName":"Queen","collectionName":"Innuendo","artworkUrl60":"https://x/3-60.jpg","collectionPrice":8.99}
  ]
}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{SearchURL: srv.URL + "/search", Country: "us", Limit: 25}, quietLogger()), srv
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSearchAlbums(t *testing.T) {
	var rawQuery string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, defaultUserAgent, r.Header.Get("User-Agent"))
		rawQuery = r.URL.RawQuery
		io.WriteString(w, queenResponse)
	})

	albums, err := client.SearchAlbums(context.Background(), "Queen II & more")
	require.NoError(t, err)
	require.Len(t, albums, 3)

	assert.Equal(t, domain.Album{
		ArtistID:        3296287,
		ArtistName:      "Queen",
		CollectionName:  "A Night at the Opera",
		ArtworkURL:      "https://x/1.jpg",
		CollectionPrice: 9.99,
	}, albums[0])
	assert.Equal(t, "https://x/3-60.jpg", albums[2].ArtworkURL)

	assert.True(t, strings.HasPrefix(rawQuery, "term=Queen%20II%20%26%20more&"), rawQuery)
	assert.Contains(t, rawQuery, "entity=album")
	assert.Contains(t, rawQuery, "attribute=albumTerm")
	assert.Contains(t, rawQuery, "country=us")
	assert.Contains(t, rawQuery, "limit=25")
}

func TestSearchAlbumsNoResults(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"resultCount":0,"results":[]}`)
	})

	albums, err := client.SearchAlbums(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.NotNil(t, albums)
	assert.Empty(t, albums)
}

func TestSearchAlbumsErrors(t *testing.T) {
	tests := []struct {
		name    string
		term    string
		handler http.HandlerFunc
		kind    domain.FetchErrorKind
	}{
		{
			name: "blank term",
			term: "   ",
			kind: domain.FetchInvalidQuery,
		},
		{
			name: "invalid utf-8 term",
			term: "Qu\xffeen",
			kind: domain.FetchInvalidQuery,
		},
		{
			name: "empty body",
			term: "Queen",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			kind: domain.FetchEmptyResponse,
		},
		{
			name: "schema mismatch",
			term: "Queen",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `{"results":"nope"}`)
			},
			kind: domain.FetchDecode,
		},
		{
			name: "not json",
			term: "Queen",
			handler: func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, `<html>maintenance</html>`)
			},
			kind: domain.FetchDecode,
		},
		{
			name: "server error",
			term: "Queen",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			kind: domain.FetchTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := tt.handler
			if handler == nil {
				handler = func(w http.ResponseWriter, r *http.Request) {
					t.Error("request should not be sent")
				}
			}
			client, _ := newTestClient(t, handler)

			albums, err := client.SearchAlbums(context.Background(), tt.term)
			assert.Nil(t, albums)

			var fe *domain.FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Equal(t, "search", fe.Op)
		})
	}
}

func TestSearchAlbumsTransportFailure(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.SearchAlbums(context.Background(), "Queen")
	assert.True(t, domain.IsFetchKind(err, domain.FetchTransport), "got %v", err)
}

func TestSearchAlbumsInvalidEndpoint(t *testing.T) {
	client := NewClient(Options{SearchURL: "::not a url"}, quietLogger())
	_, err := client.SearchAlbums(context.Background(), "Queen")
	assert.True(t, domain.IsFetchKind(err, domain.FetchInvalidQuery), "got %v", err)
}

func TestSearchURLKeepsConfiguredQuery(t *testing.T) {
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		query = r.URL.Query()
		io.WriteString(w, queenResponse)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Options{SearchURL: srv.URL + "/search?lang=en_us", Country: "gb"}, quietLogger())
	albums, err := client.SearchAlbums(context.Background(), "Queen")
	require.NoError(t, err)
	assert.Len(t, albums, 3)

	assert.Equal(t, "en_us", query.Get("lang"))
	assert.Equal(t, "Queen", query.Get("term"))
	assert.Equal(t, "album", query.Get("entity"))
	assert.Equal(t, "gb", query.Get("country"))
}

func TestResponseBodyLimit(t *testing.T) {
	img := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			io.WriteString(w, queenResponse)
		default:
			w.Write(img)
		}
	}))
	t.Cleanup(srv.Close)

	limit := int64(len(img))
	client := NewClient(Options{SearchURL: srv.URL + "/search", MaxBodyBytes: limit}, quietLogger())

	// Exactly at the limit is fine
	data, err := client.FetchImageBytes(context.Background(), srv.URL+"/cover.png")
	require.NoError(t, err)
	assert.Equal(t, img, data)

	require.Greater(t, int64(len(queenResponse)), limit)
	_, err = client.SearchAlbums(context.Background(), "Queen")
	assert.True(t, domain.IsFetchKind(err, domain.FetchTransport), "got %v", err)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestFetchImageBytes(t *testing.T) {
	img := pngBytes(t)
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cover.png":
			w.Write(img)
		case "/empty.jpg":
		case "/html.jpg":
			io.WriteString(w, "<html>not an image</html>")
		default:
			http.NotFound(w, r)
		}
	})

	data, err := client.FetchImageBytes(context.Background(), srv.URL+"/cover.png")
	require.NoError(t, err)
	assert.Equal(t, img, data)

	_, err = client.FetchImageBytes(context.Background(), srv.URL+"/empty.jpg")
	assert.True(t, domain.IsFetchKind(err, domain.FetchEmptyResponse), "got %v", err)

	_, err = client.FetchImageBytes(context.Background(), srv.URL+"/html.jpg")
	assert.True(t, domain.IsFetchKind(err, domain.FetchDecode), "got %v", err)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	_, err = client.FetchImageBytes(context.Background(), srv.URL+"/missing.jpg")
	assert.True(t, domain.IsFetchKind(err, domain.FetchTransport), "got %v", err)

	_, err = client.FetchImageBytes(context.Background(), "not-a-url")
	assert.True(t, domain.IsFetchKind(err, domain.FetchInvalidQuery), "got %v", err)
}

func TestValidateImage(t *testing.T) {
	format, err := ValidateImage(pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, err = ValidateImage([]byte{0xff, 0xd8})
	assert.ErrorIs(t, err, domain.ErrInvalidImage)
}

func TestFetchErrorMessage(t *testing.T) {
	err := &domain.FetchError{Kind: domain.FetchEmptyResponse, Op: "search"}
	assert.Equal(t, "search: empty response", err.Error())
}
