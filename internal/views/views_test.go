package views

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoshelf/shelfsync/internal/domain"
)

func ids(shelves []domain.Shelf) []string {
	out := make([]string, len(shelves))
	for i, s := range shelves {
		out[i] = s.ID
	}
	return out
}

func fixture() []domain.Shelf {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Shelf{
		{ID: "a", TotalReactions: 2, CreatedAt: base},
		{ID: "b", TotalReactions: 5, CreatedAt: base.Add(time.Hour), IsFeatured: true},
		{ID: "c", TotalReactions: 2, CreatedAt: base.Add(2 * time.Hour), IsFeatured: true},
		{ID: "hidden", TotalReactions: 9, IsHidden: true, IsFeatured: true},
		{ID: "owner-hidden", TotalReactions: 9, Owner: domain.Owner{IsHidden: true}},
		{ID: "d", TotalReactions: 0, CreatedAt: base.Add(3 * time.Hour)},
	}
}

func TestExplore(t *testing.T) {
	tests := []struct {
		filter Filter
		want   []string
	}{
		{FilterTop, []string{"b", "a", "c", "d"}},
		{FilterNew, []string{"d", "c", "b", "a"}},
		{FilterFeatured, []string{"b", "c"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Explore(fixture(), tt.filter)))
		})
	}
}

func TestExplore_DoesNotReorderInput(t *testing.T) {
	in := fixture()
	Explore(in, FilterTop)
	assert.Equal(t, "a", in[0].ID)
}

func TestRankings(t *testing.T) {
	got := Rankings(fixture())
	require.Len(t, got, 4)
	for i, r := range got {
		assert.Equal(t, i+1, r.Rank)
	}
	assert.Equal(t, "b", got[0].Shelf.ID)
	// Tied shelves keep input order.
	assert.Equal(t, "a", got[1].Shelf.ID)
	assert.Equal(t, "c", got[2].Shelf.ID)

	assert.Len(t, Top(got, 2), 2)
	assert.Len(t, Top(got, 10), 4)
	assert.Empty(t, Rankings(nil))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("featured")
	require.NoError(t, err)
	assert.Equal(t, FilterFeatured, f)

	f, err = ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, FilterTop, f)

	_, err = ParseFilter("oldest")
	assert.Error(t, err)
}
