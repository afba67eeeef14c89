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
)

// CommitmentCreateOptions are parameters for creating a fixed commitment.
type CommitmentCreateOptions struct {
	ID              string
	OwnerID         string
	Title           string
	Date            string
	Start           string
	DurationMinutes int
	ActorID         string
}

func (e Engine) validateCommitment(ctx context.Context, ownerID, date, start string, durationMinutes int) error {
	if ownerID == "" {
		return errors.New("owner is required")
	}
	if _, err := e.Repo.GetOwner(ctx, ownerID); err != nil {
		return fmt.Errorf("owner %s: %w", ownerID, err)
	}
	if err := validDate(date); err != nil {
		return err
	}
	startMin, err := interval.ParseClock(start)
	if err != nil {
		return err
	}
	if durationMinutes <= 0 {
		return errors.New("duration must be positive")
	}
	if _, err := interval.New(startMin, startMin+durationMinutes); err != nil {
		return err
	}
	return nil
}

// CreateCommitment inserts an immovable commitment and re-derives placements
// for any work items it now overlaps. The returned list holds every item that
// had to move.
func (e Engine) CreateCommitment(ctx context.Context, opts CommitmentCreateOptions) (domain.Commitment, []domain.MovedItem, error) {
	if err := e.validateCommitment(ctx, opts.OwnerID, opts.Date, opts.Start, opts.DurationMinutes); err != nil {
		return domain.Commitment{}, nil, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	c := domain.Commitment{
		ID:              id,
		OwnerID:         opts.OwnerID,
		Title:           opts.Title,
		Date:            opts.Date,
		Start:           opts.Start,
		DurationMinutes: opts.DurationMinutes,
		CreatedAt:       e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCommitment(ctx, tx, c); err != nil {
		return c, nil, err
	}
	if err := e.Events.Append(ctx, tx, "commitment.created", c.OwnerID, "commitment", c.ID, opts.ActorID, events.EventPayload{
		"date":             c.Date,
		"start":            c.Start,
		"duration_minutes": c.DurationMinutes,
	}); err != nil {
		return c, nil, err
	}
	if err := tx.Commit(); err != nil {
		return c, nil, err
	}

	moved, err := e.ReconcileCommitmentChange(ctx, c, opts.ActorID)
	return c, moved, err
}

// UpdateCommitment rewrites a commitment's schedule and re-derives placements
// for items overlapping its new interval.
func (e Engine) UpdateCommitment(ctx context.Context, id, date, start string, durationMinutes int, actorID string) (domain.Commitment, []domain.MovedItem, error) {
	c, err := e.Repo.GetCommitment(ctx, id)
	if err != nil {
		return c, nil, err
	}
	if date == "" {
		date = c.Date
	}
	if start == "" {
		start = c.Start
	}
	if durationMinutes == 0 {
		durationMinutes = c.DurationMinutes
	}
	if err := e.validateCommitment(ctx, c.OwnerID, date, start, durationMinutes); err != nil {
		return c, nil, err
	}
	old := c
	c.Date, c.Start, c.DurationMinutes = date, start, durationMinutes

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateCommitment(ctx, tx, c); err != nil {
		return c, nil, err
	}
	if err := e.Events.Append(ctx, tx, "commitment.updated", c.OwnerID, "commitment", c.ID, actorID, events.EventPayload{
		"old_date":  old.Date,
		"old_start": old.Start,
		"new_date":  c.Date,
		"new_start": c.Start,
	}); err != nil {
		return c, nil, err
	}
	if err := tx.Commit(); err != nil {
		return c, nil, err
	}

	moved, err := e.ReconcileCommitmentChange(ctx, c, actorID)
	return c, moved, err
}

// DeleteCommitment removes a commitment. Freed space is used by future
// placements; existing items are never auto-moved into it.
func (e Engine) DeleteCommitment(ctx context.Context, id, actorID string) error {
	c, err := e.Repo.GetCommitment(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCommitment(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "commitment.deleted", c.OwnerID, "commitment", c.ID, actorID, events.EventPayload{
		"date":  c.Date,
		"start": c.Start,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
