// Package views derives the community listings from a cached shelf
// collection. Hidden shelves and shelves of hidden owners never appear.
package views

import (
	"cmp"
	"slices"
	"strings"

	"github.com/cryptoshelf/shelfsync/internal/domain"
	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
)

// Filter selects an explore ordering.
type Filter string

const (
	// FilterTop orders by total reactions, most first.
	FilterTop Filter = "TOP"
	// FilterNew orders by creation time, newest first.
	FilterNew Filter = "NEW"
	// FilterFeatured keeps featured shelves, most reacted first.
	FilterFeatured Filter = "FEATURED"
)

// ParseFilter accepts a filter name in any case. Empty means TOP.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToUpper(strings.TrimSpace(s))); f {
	case "":
		return FilterTop, nil
	case FilterTop, FilterNew, FilterFeatured:
		return f, nil
	default:
		return "", domainerrors.Validation("unknown explore filter: " + s)
	}
}

// Explore returns the listed shelves in filter order. Equal keys keep their
// input order.
func Explore(shelves []domain.Shelf, f Filter) []domain.Shelf {
	out := listed(shelves, f == FilterFeatured)
	switch f {
	case FilterNew:
		slices.SortStableFunc(out, func(a, b domain.Shelf) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	default:
		slices.SortStableFunc(out, byReactions)
	}
	return out
}

// Ranked is a shelf with its 1-based position.
type Ranked struct {
	Rank  int          `json:"rank"`
	Shelf domain.Shelf `json:"shelf"`
}

// Rankings orders listed shelves by total reactions. Ranks are positions:
// ties keep input order and still get distinct ranks.
func Rankings(shelves []domain.Shelf) []Ranked {
	sorted := listed(shelves, false)
	slices.SortStableFunc(sorted, byReactions)

	out := make([]Ranked, len(sorted))
	for i, s := range sorted {
		out[i] = Ranked{Rank: i + 1, Shelf: s}
	}
	return out
}

// Top returns at most n entries of rankings.
func Top(rankings []Ranked, n int) []Ranked {
	if n < 0 || n >= len(rankings) {
		return rankings
	}
	return rankings[:n]
}

func byReactions(a, b domain.Shelf) int {
	return cmp.Compare(b.TotalReactions, a.TotalReactions)
}

func listed(shelves []domain.Shelf, featuredOnly bool) []domain.Shelf {
	out := make([]domain.Shelf, 0, len(shelves))
	for _, s := range shelves {
		if !s.Listed() || (featuredOnly && !s.IsFeatured) {
			continue
		}
		out = append(out, s)
	}
	return out
}
