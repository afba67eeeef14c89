package domain

// WorkItem is a movable, schedulable task. Placement is the pair
// (PlacementDate, PlacementStart); both nil means unplaced. Version is the
// optimistic-concurrency counter bumped on every placement write.
type WorkItem struct {
	ID             string  `json:"id"`
	OwnerID        string  `json:"owner_id"`
	Title          string  `json:"title"`
	DueDate        *string `json:"due_date,omitempty" format:"date"`
	EstimatedHours float64 `json:"estimated_hours"`
	LoggedHours    float64 `json:"logged_hours"`
	Pinned         bool    `json:"pinned"`
	PlacementDate  *string `json:"placement_date,omitempty" format:"date"`
	PlacementStart *string `json:"placement_start,omitempty" example:"09:30"`
	Version        int64   `json:"version"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// Placed reports whether the item currently holds a placement.
func (w WorkItem) Placed() bool {
	return w.PlacementDate != nil && w.PlacementStart != nil
}

// Commitment is an immovable calendar event. The placement engine only ever
// reads commitments as an occupancy source.
type Commitment struct {
	ID              string `json:"id"`
	OwnerID         string `json:"owner_id"`
	Title           string `json:"title,omitempty"`
	Date            string `json:"date" format:"date"`
	Start           string `json:"start" example:"10:00"`
	DurationMinutes int    `json:"duration_minutes"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

// Owner is a calendar owner. Role decides the reposition policy: planners may
// drag items in either direction, assistants only backward in time.
type Owner struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Role      string `json:"role" enum:"planner,assistant"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// CanMoveForward resolves the role into the capability flag the engine takes.
func (o Owner) CanMoveForward() bool {
	return o.Role == "planner"
}

// MovedItem records one placement change for caller notification.
type MovedItem struct {
	ItemID   string  `json:"item_id"`
	OldDate  *string `json:"old_date,omitempty" format:"date"`
	OldStart *string `json:"old_start,omitempty"`
	NewDate  string  `json:"new_date" format:"date"`
	NewStart string  `json:"new_start"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OwnerID    string `json:"owner_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
