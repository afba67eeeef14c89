package server

import (
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/interval"
)

// Request payloads

type CreateOwnerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty" enum:"planner,assistant"`
}

type CreateItemRequest struct {
	ID             *string `json:"id,omitempty"`
	OwnerID        string  `json:"owner_id"`
	Title          string  `json:"title"`
	DueDate        *string `json:"due_date,omitempty" format:"date"`
	EstimatedHours float64 `json:"estimated_hours"`
	Pinned         bool    `json:"pinned,omitempty"`
	PlacementDate  *string `json:"placement_date,omitempty" format:"date"`
	PlacementStart *string `json:"placement_start,omitempty" example:"09:30"`
}

type LogEffortRequest struct {
	Hours float64 `json:"hours"`
}

type SetDueDateRequest struct {
	DueDate *string `json:"due_date" format:"date"`
}

type MoveItemRequest struct {
	Date  string `json:"date" format:"date"`
	Start string `json:"start" example:"10:00"`
}

type CreateCommitmentRequest struct {
	ID              *string `json:"id,omitempty"`
	OwnerID         string  `json:"owner_id"`
	Title           string  `json:"title,omitempty"`
	Date            string  `json:"date" format:"date"`
	Start           string  `json:"start" example:"10:00"`
	DurationMinutes int     `json:"duration_minutes"`
}

type UpdateCommitmentRequest struct {
	Date            string `json:"date,omitempty" format:"date"`
	Start           string `json:"start,omitempty" example:"10:00"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"planner,assistant"`
}

// Response payloads

type ownerBody struct {
	Owner domain.Owner `json:"owner"`
}

type ownersBody struct {
	Owners []domain.Owner `json:"owners"`
}

type itemsBody struct {
	Items []domain.WorkItem `json:"items"`
}

type commitmentsBody struct {
	Commitments []domain.Commitment `json:"commitments"`
}

type slotsBody struct {
	Slots []SlotResponse `json:"slots"`
}

type ItemResponse struct {
	Item      domain.WorkItem         `json:"item"`
	Placement *engine.PlacementResult `json:"placement,omitempty"`
}

type CommitmentResponse struct {
	Commitment domain.Commitment  `json:"commitment"`
	Moved      []domain.MovedItem `json:"moved"`
}

type SlotResponse struct {
	Start           string `json:"start" example:"09:00"`
	End             string `json:"end" example:"10:30"`
	DurationMinutes int    `json:"duration_minutes"`
}

type ImportResponse struct {
	Created      int      `json:"created"`
	MovedItemIDs []string `json:"moved_item_ids"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"planner,assistant"`
	Source  string `json:"source,omitempty" enum:"jwt,api_key,legacy_header"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func slotResponse(iv interval.Interval) SlotResponse {
	return SlotResponse{
		Start:           interval.FormatClock(iv.Start),
		End:             interval.FormatClock(iv.End),
		DurationMinutes: iv.Duration(),
	}
}

func mapSlots(ivs []interval.Interval) []SlotResponse {
	res := make([]SlotResponse, 0, len(ivs))
	for _, iv := range ivs {
		res = append(res, slotResponse(iv))
	}
	return res
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
