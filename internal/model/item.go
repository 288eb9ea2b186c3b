package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Item is a single lost/found posting.
type Item struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	Location       string     `json:"location"`
	Date           time.Time  `json:"date"`
	Status         string     `json:"status"`
	Images         []string   `json:"images"`
	UserID         int64      `json:"user_id,omitempty"`
	SubmitterName  string     `json:"submitter_name,omitempty"`
	SubmitterEmail string     `json:"submitter_email,omitempty"`
	IsAnonymous    bool       `json:"is_anonymous"`
	Deleted        bool       `json:"deleted"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Item statuses.
const (
	ItemStatusLost    = "lost"
	ItemStatusFound   = "found"
	ItemStatusClaimed = "claimed"
)

// IsDeleted reports whether the item carries the soft-delete marker.
func (i *Item) IsDeleted() bool {
	return i.Deleted || i.DeletedAt != nil
}

// Masked returns a copy with the submitter identity removed when the
// posting is anonymous.
func (i Item) Masked() Item {
	if i.IsAnonymous {
		i.SubmitterName = ""
		i.SubmitterEmail = ""
		i.UserID = 0
	}
	return i
}

// ValidItemStatus reports whether s is a known item status.
func ValidItemStatus(s string) bool {
	switch s {
	case ItemStatusLost, ItemStatusFound, ItemStatusClaimed:
		return true
	}
	return false
}

// ErrInvalidItem is returned (wrapped) when item fields fail validation.
var ErrInvalidItem = errors.New("invalid item")

// MaxTitleLength is the longest accepted item title.
const MaxTitleLength = 200

// ValidateItem checks the user-editable fields of an item.
func ValidateItem(title, category, location, status string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title required", ErrInvalidItem)
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("%w: title longer than %d characters", ErrInvalidItem, MaxTitleLength)
	}
	if !ValidCategory(category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidItem, category)
	}
	if strings.TrimSpace(location) == "" {
		return fmt.Errorf("%w: location required", ErrInvalidItem)
	}
	if !ValidItemStatus(status) {
		return fmt.Errorf("%w: invalid status %q", ErrInvalidItem, status)
	}
	return nil
}
