package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateItem(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		category string
		location string
		status   string
		wantErr  bool
	}{
		{"valid lost", "Black wallet", "wallet", "Library", ItemStatusLost, false},
		{"valid found", "Keys", "keys", "Cafeteria", ItemStatusFound, false},
		{"empty title", "  ", "keys", "Cafeteria", ItemStatusFound, true},
		{"long title", strings.Repeat("x", MaxTitleLength+1), "keys", "Hall", ItemStatusFound, true},
		{"unknown category", "Phone", "phones", "Hall", ItemStatusLost, true},
		{"category case matters", "Phone", "Electronics", "Hall", ItemStatusLost, true},
		{"empty location", "Phone", "electronics", "", ItemStatusLost, true},
		{"bad status", "Phone", "electronics", "Hall", "stolen", true},
	}

	for _, tt := range tests {
		err := ValidateItem(tt.title, tt.category, tt.location, tt.status)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: ValidateItem error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidItem) {
			t.Errorf("%s: expected ErrInvalidItem, got %v", tt.name, err)
		}
	}
}

func TestItemMasked(t *testing.T) {
	item := Item{ID: "a", UserID: 7, SubmitterName: "Ana", SubmitterEmail: "ana@uni.si", IsAnonymous: true}
	masked := item.Masked()
	if masked.SubmitterName != "" || masked.SubmitterEmail != "" || masked.UserID != 0 {
		t.Errorf("expected identity removed, got %+v", masked)
	}
	if item.SubmitterName != "Ana" {
		t.Error("Masked must not modify the receiver")
	}

	item.IsAnonymous = false
	if item.Masked().SubmitterEmail != "ana@uni.si" {
		t.Error("non-anonymous item should keep submitter email")
	}
}

func TestItemIsDeleted(t *testing.T) {
	now := time.Now()
	if (&Item{}).IsDeleted() {
		t.Error("zero item should not be deleted")
	}
	if !(&Item{Deleted: true}).IsDeleted() {
		t.Error("deleted flag should mark item deleted")
	}
	if !(&Item{DeletedAt: &now}).IsDeleted() {
		t.Error("deleted_at should mark item deleted")
	}
}
