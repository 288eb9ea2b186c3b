package feed

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/najdeno/internal/model"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func day(n int) time.Time { return base.Add(time.Duration(n) * 24 * time.Hour) }

func sampleItems() []model.Item {
	return []model.Item{
		{ID: "1", Title: "MacBook Pro", Description: "Silver laptop", Category: "electronics", Location: "Library", Status: model.ItemStatusFound, Date: day(0)},
		{ID: "2", Title: "Student ID", Description: "Card of Ana", Category: "student-id", Location: "Gym", Status: model.ItemStatusLost, Date: day(1)},
		{ID: "3", Title: "Keys", Description: "Three keys on a MAC keyring", Category: "keys", Location: "Cafeteria", Status: model.ItemStatusLost, Date: day(2)},
		{ID: "4", Title: "Umbrella", Description: "Blue", Category: "other", Location: "Macro lab", Status: model.ItemStatusFound, Date: day(3)},
		{ID: "5", Title: "Wallet", Description: "Brown leather", Category: "wallet", Location: "Bus stop", Status: model.ItemStatusClaimed, Date: day(4)},
	}
}

func ids(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestApplyScenarioStatusLost(t *testing.T) {
	items := []model.Item{
		{ID: "mac", Title: "MacBook Pro", Category: "electronics", Status: model.ItemStatusFound, Date: day(0)},
		{ID: "sid", Title: "Student ID", Category: "documents", Status: model.ItemStatusLost, Date: day(1)},
	}

	got, err := Apply(items, Filter{Status: StatusLost, SortBy: SortNewest})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Student ID", got[0].Title)
}

func TestApplyScenarioSearch(t *testing.T) {
	items := []model.Item{
		{ID: "mac", Title: "MacBook Pro", Category: "electronics", Status: model.ItemStatusFound, Date: day(0)},
		{ID: "sid", Title: "Student ID", Category: "documents", Status: model.ItemStatusLost, Date: day(1)},
	}

	got, err := Apply(items, Filter{Status: StatusAll, Search: "mac", SortBy: SortNewest})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "MacBook Pro", got[0].Title)
}

func TestApplyEmptyInput(t *testing.T) {
	filters := []Filter{
		{},
		DefaultFilter(),
		{Status: StatusLost, Category: "keys", Search: "x", SortBy: SortOldest},
	}
	for _, f := range filters {
		got, err := Apply(nil, f)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestApplyStatusAllKeepsEverything(t *testing.T) {
	items := sampleItems()
	got, err := Apply(items, Filter{Status: StatusAll})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(items), ids(got))
	assert.Equal(t, []string{"5", "4", "3", "2", "1"}, ids(got))
}

func TestApplyZeroFilterIsDefault(t *testing.T) {
	items := sampleItems()
	a, err := Apply(items, Filter{})
	require.NoError(t, err)
	b, err := Apply(items, DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestApplyCategoryExactMatch(t *testing.T) {
	items := append(sampleItems(),
		model.Item{ID: "6", Title: "Headphones", Category: "Electronics", Location: "Hall", Status: model.ItemStatusLost, Date: day(5)},
		model.Item{ID: "7", Title: "Charger", Category: "electronic", Location: "Hall", Status: model.ItemStatusLost, Date: day(6)},
	)

	got, err := Apply(items, Filter{Category: "electronics"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(got))
	for _, it := range got {
		assert.Equal(t, "electronics", it.Category)
	}
}

func TestApplySearchFields(t *testing.T) {
	items := sampleItems()

	// "mac" hits the title of 1, description of 3 and location of 4.
	got, err := Apply(items, Filter{Search: "MAC", SortBy: SortOldest})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "4"}, ids(got))

	got, err = Apply(items, Filter{Search: "nothing matches this"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApplySearchIsConjunctive(t *testing.T) {
	items := sampleItems()

	// Search alone matches 1, 3 and 4; adding status narrows it.
	got, err := Apply(items, Filter{Status: StatusLost, Search: "mac"})
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids(got))

	got, err = Apply(items, Filter{Category: "other", Search: "mac"})
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, ids(got))

	got, err = Apply(items, Filter{Status: StatusFound, Category: "keys", Search: "mac"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApplyExcludesDeleted(t *testing.T) {
	now := time.Now()
	items := sampleItems()
	items[0].Deleted = true
	items[2].DeletedAt = &now

	filters := []Filter{
		{},
		{Status: StatusFound},
		{Category: "electronics"},
		{Search: "mac"},
		{SortBy: SortOldest},
	}
	for _, f := range filters {
		got, err := Apply(items, f)
		require.NoError(t, err)
		assert.NotContains(t, ids(got), "1", "filter %+v", f)
		assert.NotContains(t, ids(got), "3", "filter %+v", f)
	}
}

func TestApplyStableForEqualDates(t *testing.T) {
	items := []model.Item{
		{ID: "a", Title: "A", Status: model.ItemStatusLost, Date: day(1)},
		{ID: "b", Title: "B", Status: model.ItemStatusLost, Date: day(0)},
		{ID: "c", Title: "C", Status: model.ItemStatusLost, Date: day(1)},
		{ID: "d", Title: "D", Status: model.ItemStatusLost, Date: day(0)},
	}

	got, err := Apply(items, Filter{SortBy: SortNewest})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids(got))

	got, err = Apply(items, Filter{SortBy: SortOldest})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(got))
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	items := sampleItems()
	before := ids(items)
	_, err := Apply(items, Filter{SortBy: SortNewest})
	require.NoError(t, err)
	assert.Equal(t, before, ids(items))
}

func TestApplyMissingDate(t *testing.T) {
	items := sampleItems()
	items[1].Date = time.Time{}

	_, err := Apply(items, Filter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDate))

	var de *DateError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "2", de.ItemID)

	// An item that is filtered out never has its date inspected.
	got, err := Apply(items, Filter{Status: StatusFound})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "1"}, ids(got))
}

// randomItems builds a deterministic pseudo-random collection.
func randomItems(r *rand.Rand, n int) []model.Item {
	words := []string{"mac", "Phone", "keys", "BAG", "scarf", "id", "Library", "hall"}
	cats := []string{"electronics", "keys", "bag", "clothing", "other"}
	statuses := []string{model.ItemStatusLost, model.ItemStatusFound, model.ItemStatusClaimed}
	items := make([]model.Item, n)
	for i := range items {
		items[i] = model.Item{
			ID:          fmt.Sprintf("item-%d", i),
			Title:       words[r.Intn(len(words))] + " " + words[r.Intn(len(words))],
			Description: words[r.Intn(len(words))],
			Location:    words[r.Intn(len(words))],
			Category:    cats[r.Intn(len(cats))],
			Status:      statuses[r.Intn(len(statuses))],
			Date:        day(r.Intn(10)),
			Deleted:     r.Intn(8) == 0,
		}
	}
	return items
}

func TestApplyProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	filters := []Filter{
		{},
		{Status: StatusLost},
		{Status: StatusFound, SortBy: SortOldest},
		{Category: "keys"},
		{Search: "MAC"},
		{Search: "a", Category: "bag", SortBy: SortOldest},
		{Status: StatusLost, Category: "electronics", Search: "phone"},
	}

	for round := 0; round < 50; round++ {
		items := randomItems(r, r.Intn(40))
		for _, f := range filters {
			got, err := Apply(items, f)
			require.NoError(t, err)
			require.LessOrEqual(t, len(got), len(items))

			for i, it := range got {
				assert.False(t, it.IsDeleted())
				if f.Status != "" && f.Status != StatusAll {
					assert.Equal(t, f.Status, it.Status)
				}
				if f.Category != "" {
					assert.Equal(t, f.Category, it.Category)
				}
				if f.Search != "" {
					q := strings.ToLower(f.Search)
					assert.True(t,
						strings.Contains(strings.ToLower(it.Title), q) ||
							strings.Contains(strings.ToLower(it.Description), q) ||
							strings.Contains(strings.ToLower(it.Location), q),
						"item %s does not contain %q", it.ID, f.Search)
				}
				if i > 0 {
					prev := got[i-1].Date
					if f.SortBy == SortOldest {
						assert.False(t, prev.After(it.Date), "oldest order broken at %d", i)
					} else {
						assert.False(t, prev.Before(it.Date), "newest order broken at %d", i)
					}
				}
			}

			// Every matching input item is present.
			want := 0
			for i := range items {
				if f.Matches(&items[i]) {
					want++
				}
			}
			assert.Equal(t, want, len(got))

			again, err := Apply(got, f)
			require.NoError(t, err)
			assert.Equal(t, got, again, "filter must be idempotent")
		}
	}
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{}.Validate())
	assert.NoError(t, Filter{Status: StatusFound, SortBy: SortOldest, Category: "keys"}.Validate())
	assert.ErrorIs(t, Filter{Status: model.ItemStatusClaimed}.Validate(), ErrInvalidFilter)
	assert.ErrorIs(t, Filter{SortBy: "random"}.Validate(), ErrInvalidFilter)
	assert.ErrorIs(t, Filter{Category: "phones"}.Validate(), ErrInvalidFilter)
}

func TestCompute(t *testing.T) {
	res, err := Compute(sampleItems(), Filter{Status: StatusLost})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"3", "2"}, ids(res.Items))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-03-01T12:00:00Z", base},
		{"2025-03-01T14:00:00+02:00", base},
		{"2025-03-01T12:00:00.000Z", base},
		{"2025-03-01 12:00:00", base},
		{"2025-03-01", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseDate("x", tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %v", tt.in, got)
	}

	for _, bad := range []string{"", "yesterday", "2025-13-45", "NaN"} {
		_, err := ParseDate("item-9", bad)
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, ErrInvalidDate)
		assert.Contains(t, err.Error(), "item-9")
	}
}
