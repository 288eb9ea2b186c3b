package model

import "time"

// Claim records the handover of an item to the person who claimed it.
type Claim struct {
	ID            string    `json:"id"`
	ItemID        string    `json:"item_id"`
	ClaimantName  string    `json:"claimant_name"`
	ClaimantEmail string    `json:"claimant_email,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	ClaimedAt     time.Time `json:"claimed_at"`
	RecordedBy    *int64    `json:"recorded_by,omitempty"`

	// Joined fields (not always populated).
	ItemTitle      string `json:"item_title,omitempty"`
	RecordedByName string `json:"recorded_by_name,omitempty"`
}
