package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/albumcache/internal/cache"
	"github.com/mmcdole/albumcache/internal/domain"
)

// Color palette
var (
	Accent    = lipgloss.Color("#FA57C1")
	DimGray   = lipgloss.Color("#6B7280")
	LightGray = lipgloss.Color("#9CA3AF")
	White     = lipgloss.Color("#F9FAFB")
	Green     = lipgloss.Color("#10B981")
	Red       = lipgloss.Color("#EF4444")
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(Accent)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)

	HeaderStyle = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(DimGray)
)

// SpinnerFrames for the search spinner
var SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// renderAlbums renders one line per album: name, artist and price
func renderAlbums(term string, albums []domain.Album) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%q: %d albums", term, len(albums))))
	b.WriteString("\n")

	if len(albums) == 0 {
		b.WriteString(DimStyle.Render("  no albums found"))
		b.WriteString("\n")
		return b.String()
	}

	width := 0
	for _, a := range albums {
		width = max(width, lipgloss.Width(a.CollectionName))
	}
	name := lipgloss.NewStyle().Inherit(TitleStyle).Width(width + 2)

	for i, a := range albums {
		b.WriteString(DimStyle.Render(fmt.Sprintf("%3d ", i+1)))
		b.WriteString(name.Render(a.CollectionName))
		b.WriteString(SubtitleStyle.Render(a.ArtistName))
		if a.CollectionPrice > 0 {
			b.WriteString(AccentStyle.Render(fmt.Sprintf("  $%.2f", a.CollectionPrice)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderHistory renders history terms, highlighting fuzzy-matched characters
func renderHistory(terms []string, matches []cache.HistoryMatch, filtered bool) string {
	var b strings.Builder
	if !filtered {
		if len(terms) == 0 {
			return DimStyle.Render("no search history") + "\n"
		}
		for i, t := range terms {
			b.WriteString(DimStyle.Render(fmt.Sprintf("%3d ", i+1)))
			b.WriteString(TitleStyle.Render(t))
			b.WriteString("\n")
		}
		return b.String()
	}

	if len(matches) == 0 {
		return DimStyle.Render("no matching searches") + "\n"
	}
	for _, m := range matches {
		b.WriteString(DimStyle.Render(fmt.Sprintf("%3d ", m.Index+1)))
		b.WriteString(highlight(m.Term, m.MatchedIndexes))
		b.WriteString("\n")
	}
	return b.String()
}

func highlight(s string, indexes []int) string {
	hit := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		hit[i] = true
	}

	var b strings.Builder
	for i, r := range s {
		if hit[i] {
			b.WriteString(AccentStyle.Bold(true).Render(string(r)))
		} else {
			b.WriteString(TitleStyle.Render(string(r)))
		}
	}
	return b.String()
}
