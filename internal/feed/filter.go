// Package feed computes the visible, ordered item list from a collection of
// item records and the active filter.
package feed

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/erazemk/najdeno/internal/model"
)

// Status filter values. StatusAll leaves the status unconstrained.
const (
	StatusAll   = "all"
	StatusLost  = model.ItemStatusLost
	StatusFound = model.ItemStatusFound
)

// Sort orders.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// Filter is the set of view constraints chosen by a user.
// Empty fields are unconstrained.
type Filter struct {
	Category string `json:"category"`
	Status   string `json:"status"`
	SortBy   string `json:"sort_by"`
	Search   string `json:"search"`
}

// DefaultFilter returns the unconstrained filter, newest first.
func DefaultFilter() Filter {
	return Filter{Status: StatusAll, SortBy: SortNewest}
}

// Normalized returns f with empty or unknown status and sort replaced by
// their defaults.
func (f Filter) Normalized() Filter {
	if f.Status == "" {
		f.Status = StatusAll
	}
	if f.SortBy != SortOldest {
		f.SortBy = SortNewest
	}
	return f
}

// ErrInvalidFilter is returned by Validate for values outside the enumerations.
var ErrInvalidFilter = errors.New("invalid filter")

// Validate reports filter values that a client should not be sending.
// Apply itself never rejects a filter.
func (f Filter) Validate() error {
	switch f.Status {
	case "", StatusAll, StatusLost, StatusFound:
	default:
		return fmt.Errorf("%w: status %q", ErrInvalidFilter, f.Status)
	}
	switch f.SortBy {
	case "", SortNewest, SortOldest:
	default:
		return fmt.Errorf("%w: sort %q", ErrInvalidFilter, f.SortBy)
	}
	if f.Category != "" && !model.ValidCategory(f.Category) {
		return fmt.Errorf("%w: category %q", ErrInvalidFilter, f.Category)
	}
	return nil
}

// Matches reports whether a single item passes the filter's status,
// category and search stages. Deleted items never match.
func (f Filter) Matches(item *model.Item) bool {
	if item.IsDeleted() {
		return false
	}
	f = f.Normalized()
	if f.Status != StatusAll && item.Status != f.Status {
		return false
	}
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(item.Title), q) &&
			!strings.Contains(strings.ToLower(item.Description), q) &&
			!strings.Contains(strings.ToLower(item.Location), q) {
			return false
		}
	}
	return true
}

// Apply returns the items that pass every active stage of f, ordered by
// date. Items with equal dates keep their input order. The input slice is
// not modified. A retained item without a date yields a *DateError.
func Apply(items []model.Item, f Filter) ([]model.Item, error) {
	f = f.Normalized()

	out := make([]model.Item, 0, len(items))
	for i := range items {
		if !f.Matches(&items[i]) {
			continue
		}
		if items[i].Date.IsZero() {
			return nil, &DateError{ItemID: items[i].ID, Err: ErrInvalidDate}
		}
		out = append(out, items[i])
	}

	if f.SortBy == SortOldest {
		slices.SortStableFunc(out, func(a, b model.Item) int {
			return a.Date.Compare(b.Date)
		})
	} else {
		slices.SortStableFunc(out, func(a, b model.Item) int {
			return b.Date.Compare(a.Date)
		})
	}
	return out, nil
}

// Result is an ordered item list together with its count for display.
type Result struct {
	Items []model.Item `json:"items"`
	Count int          `json:"count"`
}

// Compute applies f to items and wraps the outcome in a Result.
func Compute(items []model.Item, f Filter) (Result, error) {
	out, err := Apply(items, f)
	if err != nil {
		return Result{}, err
	}
	return Result{Items: out, Count: len(out)}, nil
}

// ErrInvalidDate marks an item date that is missing or cannot be parsed.
var ErrInvalidDate = errors.New("invalid item date")

// DateError reports a malformed date on a specific item.
type DateError struct {
	ItemID string
	Value  string
	Err    error
}

func (e *DateError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("item %s: %v: %q", e.ItemID, e.Err, e.Value)
	}
	return fmt.Sprintf("item %s: %v", e.ItemID, e.Err)
}

func (e *DateError) Unwrap() error { return e.Err }

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate parses an item date in any of the accepted wire layouts.
func ParseDate(itemID, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, &DateError{ItemID: itemID, Value: value, Err: ErrInvalidDate}
}
