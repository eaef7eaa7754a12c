package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmcdole/albumcache/internal/cache"
	"github.com/mmcdole/albumcache/internal/domain"
)

func TestRenderAlbums(t *testing.T) {
	out := renderAlbums("Queen", []domain.Album{
		{ArtistName: "Queen", CollectionName: "Jazz", CollectionPrice: 7.99},
		{ArtistName: "Queen", CollectionName: "Innuendo"},
	})

	assert.Contains(t, out, `"Queen": 2 albums`)
	assert.Contains(t, out, "Jazz")
	assert.Contains(t, out, "Innuendo")
	assert.Contains(t, out, "$7.99")
	assert.Equal(t, 1, strings.Count(out, "$"), "free albums show no price")
}

func TestRenderAlbumsEmpty(t *testing.T) {
	out := renderAlbums("zzzz", []domain.Album{})
	assert.Contains(t, out, "0 albums")
	assert.Contains(t, out, "no albums found")
}

func TestRenderHistory(t *testing.T) {
	out := renderHistory([]string{"Queen", "Jazz"}, nil, false)
	assert.Contains(t, out, "Queen")
	assert.Contains(t, out, "Jazz")

	assert.Contains(t, renderHistory(nil, nil, false), "no search history")
	assert.Contains(t, renderHistory(nil, nil, true), "no matching searches")

	out = renderHistory(nil, []cache.HistoryMatch{{Term: "Queen", Index: 0, MatchedIndexes: []int{0, 1}}}, true)
	assert.Contains(t, out, "Q")
	assert.Contains(t, out, "  1 ")
}
