package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/interval"
	"planline/internal/repo"
)

// Engine is the scheduling core: it derives placements for work items around
// immovable commitments inside the fixed daily working window. All operations
// are synchronous and request-scoped; occupancy is recomputed per call and
// never cached across requests.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Log    zerolog.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Log:    zerolog.Nop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

const dateLayout = "2006-01-02"

func validDate(s string) error {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return nil
}

func prevDay(date string) (string, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return "", fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}
	return t.AddDate(0, 0, -1).Format(dateLayout), nil
}

// placementMinutes is the occupancy duration of an item: remaining effort with
// a floor so a nearly-done task still holds a visible block.
func (e Engine) placementMinutes(w domain.WorkItem) int {
	mins := int(math.Ceil((w.EstimatedHours - w.LoggedHours) * 60))
	if floor := e.Config.Scheduling.MinPlaceMinutes; mins < floor {
		return floor
	}
	return mins
}

func (e Engine) withWriteRetries(fn func() error) error {
	attempts := e.Config.Scheduling.WriteRetries
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, repo.ErrVersionConflict) {
			return err
		}
		e.Log.Debug().Int("attempt", i+1).Msg("placement write lost version race; retrying")
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrConcurrentConflict, attempts, err)
}

// FindFreeSlots returns the free gaps of at least minDuration minutes on one
// owner's day, earliest first. An empty result is a valid answer, not an error.
func (e Engine) FindFreeSlots(ctx context.Context, ownerID, date string, minDuration int) ([]interval.Interval, error) {
	if _, err := e.Repo.GetOwner(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("owner %s: %w", ownerID, err)
	}
	return e.freeSlots(ctx, ownerID, date, minDuration, nil)
}

func (e Engine) freeSlots(ctx context.Context, ownerID, date string, minDuration int, exclude map[string]bool) ([]interval.Interval, error) {
	if err := validDate(date); err != nil {
		return nil, err
	}
	if minDuration <= 0 {
		return nil, fmt.Errorf("min duration must be positive, got %d", minDuration)
	}
	window, err := e.Config.Window()
	if err != nil {
		return nil, err
	}
	occ, err := e.loadOccupancy(ctx, ownerID, date, exclude)
	if err != nil {
		return nil, err
	}
	ivs := make([]interval.Interval, len(occ))
	for i, o := range occ {
		ivs[i] = o.iv
	}
	gaps, err := interval.Gaps(window, ivs)
	if err != nil {
		return nil, err
	}
	var slots []interval.Interval
	for _, g := range gaps {
		if g.Duration() >= minDuration {
			slots = append(slots, g)
		}
	}
	return slots, nil
}

// AutoPlace derives a placement for the item starting at its due date,
// cascading earlier placements backward when the day is full. Pinned items are
// never touched. The returned result carries any items the cascade displaced.
func (e Engine) AutoPlace(ctx context.Context, itemID, actorID string) (PlacementResult, error) {
	var result PlacementResult
	err := e.withWriteRetries(func() error {
		result = PlacementResult{}
		item, err := e.Repo.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Pinned {
			// Manually placed items keep their slot; report it unchanged.
			if item.Placed() {
				result = PlacementResult{Placed: true, Date: *item.PlacementDate, Start: *item.PlacementStart}
			}
			return nil
		}
		if item.DueDate == nil {
			return fmt.Errorf("work item %s has no due date", itemID)
		}
		need := e.placementMinutes(item)
		p, err := e.newPlanner(item.ID)
		if err != nil {
			return err
		}
		date, start, err := p.place(ctx, item.OwnerID, *item.DueDate, need)
		if errors.Is(err, errNoSlot) {
			result = PlacementResult{Reason: ReasonNoSlotAvailable}
			e.Log.Info().Str("item_id", itemID).Str("due_date", *item.DueDate).Msg("no slot available; item left unplaced")
			return nil
		}
		if err != nil {
			return err
		}
		p.assign(item.OwnerID, date, item.ID, start, need, false, item.Version, item.PlacementDate, item.PlacementStart)
		moved, err := e.applyPlan(ctx, p, item.OwnerID, item.ID, actorID)
		if err != nil {
			return err
		}
		result = PlacementResult{Placed: true, Date: date, Start: interval.FormatClock(start), Moved: moved}
		return nil
	})
	return result, err
}

// ReconcileCommitmentChange re-derives placements for every unpinned item
// whose interval overlaps the given commitment, restarting each search from
// the item's own due date. Returns the placement changes for notification.
func (e Engine) ReconcileCommitmentChange(ctx context.Context, c domain.Commitment, actorID string) ([]domain.MovedItem, error) {
	start, err := interval.ParseClock(c.Start)
	if err != nil {
		return nil, fmt.Errorf("commitment %s: %w", c.ID, err)
	}
	civ, err := interval.New(start, start+c.DurationMinutes)
	if err != nil {
		return nil, fmt.Errorf("commitment %s: %w", c.ID, err)
	}

	var moved []domain.MovedItem
	err = e.withWriteRetries(func() error {
		moved = nil
		items, err := e.Repo.ListPlacedItems(ctx, c.OwnerID, c.Date)
		if err != nil {
			return err
		}
		var conflicting []domain.WorkItem
		for _, w := range items {
			if w.Pinned {
				continue
			}
			ws, err := interval.ParseClock(*w.PlacementStart)
			if err != nil {
				return fmt.Errorf("work item %s: %w", w.ID, err)
			}
			wiv := interval.Interval{Start: ws, End: ws + e.placementMinutes(w)}
			if interval.Overlaps(wiv, civ) {
				conflicting = append(conflicting, w)
			}
		}
		if len(conflicting) == 0 {
			return nil
		}
		// Re-place in the same deterministic order the cascade uses.
		sort.Slice(conflicting, func(i, j int) bool {
			a, b := conflicting[i], conflicting[j]
			da, db := e.placementMinutes(a), e.placementMinutes(b)
			if da != db {
				return da > db
			}
			if *a.PlacementStart != *b.PlacementStart {
				return *a.PlacementStart < *b.PlacementStart
			}
			return a.ID < b.ID
		})

		exclude := make([]string, len(conflicting))
		for i, w := range conflicting {
			exclude[i] = w.ID
		}
		p, err := e.newPlanner(exclude...)
		if err != nil {
			return err
		}
		for _, w := range conflicting {
			from := w.PlacementDate
			if w.DueDate != nil {
				from = w.DueDate
			}
			need := e.placementMinutes(w)
			date, slot, err := p.place(ctx, c.OwnerID, *from, need)
			if errors.Is(err, errNoSlot) {
				// Items are never auto-unplaced; keep the old slot occupied
				// in the snapshot and surface the condition in the log.
				ws, _ := interval.ParseClock(*w.PlacementStart)
				if rerr := p.restore(ctx, c.OwnerID, *w.PlacementDate, occupant{
					id: w.ID, kind: occupantItem,
					iv:        interval.Interval{Start: ws, End: ws + need},
					remaining: need, version: w.Version,
				}); rerr != nil {
					return rerr
				}
				e.Log.Warn().Str("item_id", w.ID).Str("commitment_id", c.ID).Msg("no slot available; item left in conflicting position")
				continue
			}
			if err != nil {
				return err
			}
			p.assign(c.OwnerID, date, w.ID, slot, need, false, w.Version, w.PlacementDate, w.PlacementStart)
		}
		moved, err = e.applyPlan(ctx, p, c.OwnerID, "", actorID)
		return err
	})
	return moved, err
}

// applyPlan writes the planner's pending moves in one transaction, each write
// conditioned on the version observed while planning. Unchanged placements are
// skipped so repeated planning over identical occupancy is a no-op.
func (e Engine) applyPlan(ctx context.Context, p *planner, ownerID, targetItemID, actorID string) ([]domain.MovedItem, error) {
	var pending []plannedMove
	for _, m := range p.moves {
		if m.oldDate != nil && m.oldStart != nil && !m.pin &&
			*m.oldDate == m.date && *m.oldStart == interval.FormatClock(m.start) {
			continue
		}
		pending = append(pending, m)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	nowStr := e.now().UTC().Format(time.RFC3339)
	var moved []domain.MovedItem
	for _, m := range pending {
		startStr := interval.FormatClock(m.start)
		if err := e.Repo.UpdatePlacement(ctx, tx, m.itemID, m.date, startStr, m.pin, m.version, nowStr); err != nil {
			return nil, err
		}
		evtType := "item.moved"
		if m.itemID == targetItemID {
			evtType = "placement.assigned"
		}
		payload := events.EventPayload{"new_date": m.date, "new_start": startStr}
		if m.oldDate != nil {
			payload["old_date"] = *m.oldDate
			payload["old_start"] = *m.oldStart
		}
		if err := e.Events.Append(ctx, tx, evtType, ownerID, "work_item", m.itemID, actorID, payload); err != nil {
			return nil, err
		}
		if m.itemID != targetItemID {
			moved = append(moved, m.moved())
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return moved, nil
}

// ValidateMove checks and applies a user-initiated drag. Confirmed and snapped
// moves persist the placement and pin the item; rejections write nothing.
func (e Engine) ValidateMove(ctx context.Context, canMoveForward bool, itemID, targetDate, targetStart, actorID string) (MoveOutcome, error) {
	if err := validDate(targetDate); err != nil {
		return MoveOutcome{}, err
	}
	reqStart, err := interval.ParseClock(targetStart)
	if err != nil {
		return MoveOutcome{}, err
	}

	var outcome MoveOutcome
	err = e.withWriteRetries(func() error {
		item, err := e.Repo.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		if !canMoveForward && item.Placed() {
			curDate, curStart := *item.PlacementDate, *item.PlacementStart
			if targetDate > curDate || (targetDate == curDate && targetStart >= curStart) {
				outcome = MoveOutcome{Status: MoveRejected, Reason: ReasonDirectionNotAllowed}
				return nil
			}
		}
		if item.DueDate != nil && targetDate > *item.DueDate {
			outcome = MoveOutcome{Status: MoveRejected, Reason: ReasonPastDueDate}
			return nil
		}
		need := e.placementMinutes(item)
		slots, err := e.freeSlots(ctx, item.OwnerID, targetDate, need, map[string]bool{item.ID: true})
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			outcome = MoveOutcome{Status: MoveRejected, Reason: ReasonNoSpaceOnDay}
			return nil
		}

		status := MoveSnapped
		best, bestDist := -1, 0
		for _, s := range slots {
			if reqStart >= s.Start && reqStart+need <= s.End {
				status = MoveConfirmed
				best = reqStart
				break
			}
			cand := clamp(reqStart, s.Start, s.End-need)
			dist := abs(cand - reqStart)
			if best == -1 || dist < bestDist || (dist == bestDist && cand < best) {
				best, bestDist = cand, dist
			}
		}
		startStr := interval.FormatClock(best)

		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		nowStr := e.now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdatePlacement(ctx, tx, item.ID, targetDate, startStr, true, item.Version, nowStr); err != nil {
			return err
		}
		payload := events.EventPayload{
			"requested_date":  targetDate,
			"requested_start": targetStart,
			"new_date":        targetDate,
			"new_start":       startStr,
		}
		if item.Placed() {
			payload["old_date"] = *item.PlacementDate
			payload["old_start"] = *item.PlacementStart
		}
		evtType := "move.confirmed"
		if status == MoveSnapped {
			evtType = "move.snapped"
		}
		if err := e.Events.Append(ctx, tx, evtType, item.OwnerID, "work_item", item.ID, actorID, payload); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		outcome = MoveOutcome{Status: status, Date: targetDate, Start: startStr}
		return nil
	})
	return outcome, err
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
