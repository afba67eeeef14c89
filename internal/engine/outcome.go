package engine

import (
	"errors"

	"planline/internal/domain"
)

// Reason codes carried by rejected or failed outcomes. These are values, not
// errors: callers branch on them and render them to users.
const (
	ReasonNoSlotAvailable     = "no_slot_available"
	ReasonDirectionNotAllowed = "direction_not_allowed"
	ReasonPastDueDate         = "past_due_date"
	ReasonNoSpaceOnDay        = "no_space_on_day"
)

// ErrConcurrentConflict is surfaced once the write retries are exhausted.
var ErrConcurrentConflict = errors.New("concurrent update conflict")

// PlacementResult is the outcome of one automatic scheduling attempt. When
// Placed is false, Reason explains why and the item keeps its previous state.
// Moved lists every other item the cascade displaced.
type PlacementResult struct {
	Placed bool               `json:"placed"`
	Date   string             `json:"date,omitempty" format:"date"`
	Start  string             `json:"start,omitempty"`
	Reason string             `json:"reason,omitempty" enum:"no_slot_available"`
	Moved  []domain.MovedItem `json:"moved,omitempty"`
}

// Move outcome states. A drag request ends in exactly one of these.
const (
	MoveConfirmed = "confirmed"
	MoveSnapped   = "snapped"
	MoveRejected  = "rejected"
)

// MoveOutcome is the terminal state of one drag validation.
type MoveOutcome struct {
	Status string `json:"status" enum:"confirmed,snapped,rejected"`
	Date   string `json:"date,omitempty" format:"date"`
	Start  string `json:"start,omitempty"`
	Reason string `json:"reason,omitempty" enum:"direction_not_allowed,past_due_date,no_space_on_day"`
}
