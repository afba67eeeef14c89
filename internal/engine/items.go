package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/interval"
	"planline/internal/repo"
)

// ItemCreateOptions are parameters for creating a work item. A caller-supplied
// placement must fall inside a free gap on that day; without one, the engine
// places the item at creation when a due date is present and the item is not
// pinned.
type ItemCreateOptions struct {
	ID             string
	OwnerID        string
	Title          string
	DueDate        *string
	EstimatedHours float64
	Pinned         bool
	PlacementDate  *string
	PlacementStart *string
	ActorID        string
}

func (e Engine) CreateItem(ctx context.Context, opts ItemCreateOptions) (domain.WorkItem, PlacementResult, error) {
	var result PlacementResult
	if opts.Title == "" {
		return domain.WorkItem{}, result, errors.New("title is required")
	}
	if opts.OwnerID == "" {
		return domain.WorkItem{}, result, errors.New("owner is required")
	}
	if _, err := e.Repo.GetOwner(ctx, opts.OwnerID); err != nil {
		return domain.WorkItem{}, result, fmt.Errorf("owner %s: %w", opts.OwnerID, err)
	}
	if opts.EstimatedHours <= 0 {
		return domain.WorkItem{}, result, errors.New("estimated hours must be positive")
	}
	if opts.DueDate != nil {
		if err := validDate(*opts.DueDate); err != nil {
			return domain.WorkItem{}, result, err
		}
	}
	if (opts.PlacementDate == nil) != (opts.PlacementStart == nil) {
		return domain.WorkItem{}, result, errors.New("placement date and start must be supplied together")
	}
	if opts.PlacementDate != nil {
		if err := validDate(*opts.PlacementDate); err != nil {
			return domain.WorkItem{}, result, err
		}
		start, err := interval.ParseClock(*opts.PlacementStart)
		if err != nil {
			return domain.WorkItem{}, result, err
		}
		// A supplied placement must land in a free gap, same as a drag.
		need := e.placementMinutes(domain.WorkItem{EstimatedHours: opts.EstimatedHours})
		slots, err := e.freeSlots(ctx, opts.OwnerID, *opts.PlacementDate, need, nil)
		if err != nil {
			return domain.WorkItem{}, result, err
		}
		fits := false
		for _, s := range slots {
			if start >= s.Start && start+need <= s.End {
				fits = true
				break
			}
		}
		if !fits {
			return domain.WorkItem{}, result, fmt.Errorf("placement %s %s overlaps the existing schedule", *opts.PlacementDate, *opts.PlacementStart)
		}
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	w := domain.WorkItem{
		ID:             id,
		OwnerID:        opts.OwnerID,
		Title:          opts.Title,
		DueDate:        opts.DueDate,
		EstimatedHours: opts.EstimatedHours,
		Pinned:         opts.Pinned,
		PlacementDate:  opts.PlacementDate,
		PlacementStart: opts.PlacementStart,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, result, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertWorkItem(ctx, tx, w); err != nil {
		return w, result, err
	}
	if err := e.Events.Append(ctx, tx, "item.created", w.OwnerID, "work_item", w.ID, opts.ActorID, events.EventPayload{
		"title":           w.Title,
		"estimated_hours": w.EstimatedHours,
	}); err != nil {
		return w, result, err
	}
	if err := tx.Commit(); err != nil {
		return w, result, err
	}

	if w.DueDate != nil && !w.Pinned && !w.Placed() {
		result, err = e.AutoPlace(ctx, w.ID, opts.ActorID)
		if err != nil {
			return w, result, err
		}
		w, err = e.Repo.GetWorkItem(ctx, w.ID)
		if err != nil {
			return w, result, err
		}
	}
	return w, result, nil
}

// LogEffort adds logged hours to an item and re-derives its placement, since
// the remaining duration just shrank.
func (e Engine) LogEffort(ctx context.Context, itemID string, hours float64, actorID string) (domain.WorkItem, PlacementResult, error) {
	var result PlacementResult
	if hours <= 0 {
		return domain.WorkItem{}, result, errors.New("hours must be positive")
	}
	item, err := e.Repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return item, result, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return item, result, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.LogEffort(ctx, tx, itemID, hours, now); err != nil {
		return item, result, err
	}
	if err := e.Events.Append(ctx, tx, "item.effort_logged", item.OwnerID, "work_item", itemID, actorID, events.EventPayload{
		"hours": hours,
	}); err != nil {
		return item, result, err
	}
	if err := tx.Commit(); err != nil {
		return item, result, err
	}

	if !item.Pinned && item.DueDate != nil {
		result, err = e.AutoPlace(ctx, itemID, actorID)
		if err != nil {
			return item, result, err
		}
	}
	item, err = e.Repo.GetWorkItem(ctx, itemID)
	return item, result, err
}

// SetDueDate changes an item's due date and re-derives its placement.
func (e Engine) SetDueDate(ctx context.Context, itemID string, dueDate *string, actorID string) (domain.WorkItem, PlacementResult, error) {
	var result PlacementResult
	if dueDate != nil {
		if err := validDate(*dueDate); err != nil {
			return domain.WorkItem{}, result, err
		}
	}
	item, err := e.Repo.GetWorkItem(ctx, itemID)
	if err != nil {
		return item, result, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return item, result, err
	}
	defer tx.Rollback()
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.SetDueDate(ctx, tx, itemID, dueDate, now); err != nil {
		return item, result, err
	}
	payload := events.EventPayload{}
	if item.DueDate != nil {
		payload["old_due_date"] = *item.DueDate
	}
	if dueDate != nil {
		payload["new_due_date"] = *dueDate
	}
	if err := e.Events.Append(ctx, tx, "item.due_changed", item.OwnerID, "work_item", itemID, actorID, payload); err != nil {
		return item, result, err
	}
	if err := tx.Commit(); err != nil {
		return item, result, err
	}

	if !item.Pinned && dueDate != nil {
		result, err = e.AutoPlace(ctx, itemID, actorID)
		if err != nil {
			return item, result, err
		}
	}
	item, err = e.Repo.GetWorkItem(ctx, itemID)
	return item, result, err
}

// CreateOwner registers a calendar owner.
func (e Engine) CreateOwner(ctx context.Context, id, name, role string) (domain.Owner, error) {
	if id == "" {
		return domain.Owner{}, errors.New("id is required")
	}
	if role == "" {
		role = "planner"
	}
	if role != "planner" && role != "assistant" {
		return domain.Owner{}, fmt.Errorf("unknown role %q", role)
	}
	o := domain.Owner{
		ID:        id,
		Name:      name,
		Role:      role,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertOwner(ctx, o); err != nil {
		return domain.Owner{}, err
	}
	return o, nil
}

// ResolveMoveCapability maps an actor's stored role onto the reposition policy
// flag ValidateMove takes. Unknown owners may not move anything forward.
func (e Engine) ResolveMoveCapability(ctx context.Context, actorID string) (bool, error) {
	o, err := e.Repo.GetOwner(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return o.CanMoveForward(), nil
}
