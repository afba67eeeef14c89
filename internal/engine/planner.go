package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"planline/internal/domain"
	"planline/internal/interval"
)

// errNoSlot signals an exhausted cascade inside the planner. It never escapes
// the engine: callers see a PlacementResult with ReasonNoSlotAvailable.
var errNoSlot = errors.New("no slot available")

const (
	occupantItem       = "item"
	occupantCommitment = "commitment"
)

// occupant is one occupancy interval inside a day snapshot: a commitment or a
// placed work item. Built fresh for every planning call, never persisted.
type occupant struct {
	id        string
	kind      string
	iv        interval.Interval
	remaining int // minutes, items only
	pinned    bool
	version   int64
}

// plannedMove is one pending placement write: item id, old placement for the
// notification list, new slot, and the version the write is conditioned on.
type plannedMove struct {
	itemID   string
	oldDate  *string
	oldStart *string
	date     string
	start    int
	duration int
	pin      bool
	version  int64
}

func (m plannedMove) moved() domain.MovedItem {
	return domain.MovedItem{
		ItemID:   m.itemID,
		OldDate:  m.oldDate,
		OldStart: m.oldStart,
		NewDate:  m.date,
		NewStart: interval.FormatClock(m.start),
	}
}

// planner computes a set of placement writes over an in-memory snapshot of the
// affected days. All reads happen while planning; the resulting moves are
// applied in one transaction afterwards. Days are loaded lazily and mutated as
// the cascade relocates items, so repeated lookups see the plan so far.
type planner struct {
	e           Engine
	window      interval.Interval
	exclude     map[string]bool // items whose stored placement must not count as occupied
	days        map[string][]occupant
	relocations int
	moves       []plannedMove
}

func (e Engine) newPlanner(exclude ...string) (*planner, error) {
	window, err := e.Config.Window()
	if err != nil {
		return nil, err
	}
	p := &planner{
		e:       e,
		window:  window,
		exclude: make(map[string]bool, len(exclude)),
		days:    make(map[string][]occupant),
	}
	for _, id := range exclude {
		p.exclude[id] = true
	}
	return p, nil
}

func dayKey(ownerID, date string) string {
	return ownerID + "|" + date
}

// day returns the snapshot for one owner's day, loading it on first use.
func (p *planner) day(ctx context.Context, ownerID, date string) ([]occupant, error) {
	key := dayKey(ownerID, date)
	if occ, ok := p.days[key]; ok {
		return occ, nil
	}
	occ, err := p.e.loadOccupancy(ctx, ownerID, date, p.exclude)
	if err != nil {
		return nil, err
	}
	p.days[key] = occ
	return occ, nil
}

// firstFit returns the start of the earliest gap on the day that holds need
// minutes, or ok=false when the day is full.
func (p *planner) firstFit(ctx context.Context, ownerID, date string, need int) (int, bool, error) {
	occ, err := p.day(ctx, ownerID, date)
	if err != nil {
		return 0, false, err
	}
	ivs := make([]interval.Interval, len(occ))
	for i, o := range occ {
		ivs[i] = o.iv
	}
	gaps, err := interval.Gaps(p.window, ivs)
	if err != nil {
		return 0, false, err
	}
	for _, g := range gaps {
		if g.Duration() >= need {
			return g.Start, true, nil
		}
	}
	return 0, false, nil
}

// place finds a slot of need minutes for one item on date, cascading the
// largest unpinned occupant backward a day at a time when the day is full.
// Relocations across the whole planning call are bounded by the cascade depth;
// exhausting it yields errNoSlot and the plan is discarded unwritten.
func (p *planner) place(ctx context.Context, ownerID, date string, need int) (string, int, error) {
	for {
		start, ok, err := p.firstFit(ctx, ownerID, date, need)
		if err != nil {
			return "", 0, err
		}
		if ok {
			return date, start, nil
		}
		if p.relocations >= p.e.Config.Scheduling.MaxCascadeDepth {
			return "", 0, errNoSlot
		}
		victim, ok := p.pickVictim(dayKey(ownerID, date))
		if !ok {
			return "", 0, errNoSlot
		}
		p.relocations++
		oldDate, oldStart := date, interval.FormatClock(victim.iv.Start)
		p.removeOccupant(ownerID, date, victim.id)

		prev, err := prevDay(date)
		if err != nil {
			return "", 0, err
		}
		newDate, newStart, err := p.place(ctx, ownerID, prev, victim.remaining)
		if err != nil {
			return "", 0, err
		}
		p.assign(ownerID, newDate, victim.id, newStart, victim.remaining, false, victim.version, &oldDate, &oldStart)
		p.e.Log.Debug().
			Str("owner_id", ownerID).
			Str("item_id", victim.id).
			Str("from", date).
			Str("to", newDate).
			Int("relocations", p.relocations).
			Msg("cascade relocated item")
	}
}

// pickVictim selects the unpinned item with the largest remaining duration,
// breaking ties toward the earliest start, then lowest id. Commitments are
// never candidates.
func (p *planner) pickVictim(key string) (occupant, bool) {
	var candidates []occupant
	for _, o := range p.days[key] {
		if o.kind == occupantItem && !o.pinned {
			candidates = append(candidates, o)
		}
	}
	if len(candidates) == 0 {
		return occupant{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.remaining != b.remaining {
			return a.remaining > b.remaining
		}
		if a.iv.Start != b.iv.Start {
			return a.iv.Start < b.iv.Start
		}
		return a.id < b.id
	})
	return candidates[0], true
}

func (p *planner) removeOccupant(ownerID, date, id string) {
	key := dayKey(ownerID, date)
	occ := p.days[key]
	for i, o := range occ {
		if o.id == id {
			p.days[key] = append(occ[:i:i], occ[i+1:]...)
			return
		}
	}
}

// assign records a pending placement write for an item and adds it to the
// target day's snapshot so subsequent planning sees it. When the same item is
// moved more than once inside one plan, the pending write is coalesced and the
// originally observed placement is kept for the notification list.
func (p *planner) assign(ownerID, date, itemID string, start, need int, pin bool, version int64, oldDate, oldStart *string) {
	key := dayKey(ownerID, date)
	p.days[key] = append(p.days[key], occupant{
		id:        itemID,
		kind:      occupantItem,
		iv:        interval.Interval{Start: start, End: start + need},
		remaining: need,
		pinned:    pin,
		version:   version,
	})
	for i := range p.moves {
		if p.moves[i].itemID == itemID {
			p.moves[i].date = date
			p.moves[i].start = start
			p.moves[i].duration = need
			p.moves[i].pin = pin
			return
		}
	}
	p.moves = append(p.moves, plannedMove{
		itemID:   itemID,
		oldDate:  oldDate,
		oldStart: oldStart,
		date:     date,
		start:    start,
		duration: need,
		pin:      pin,
		version:  version,
	})
}

// restore re-adds a stored occupancy to a day snapshot when an item could not
// be re-placed and keeps its old position.
func (p *planner) restore(ctx context.Context, ownerID, date string, o occupant) error {
	if _, err := p.day(ctx, ownerID, date); err != nil {
		return err
	}
	key := dayKey(ownerID, date)
	p.days[key] = append(p.days[key], o)
	return nil
}

// loadOccupancy builds the occupant set for one owner's day from commitments
// and placed, non-excluded work items.
func (e Engine) loadOccupancy(ctx context.Context, ownerID, date string, exclude map[string]bool) ([]occupant, error) {
	commitments, err := e.Repo.ListCommitments(ctx, ownerID, date)
	if err != nil {
		return nil, err
	}
	items, err := e.Repo.ListPlacedItems(ctx, ownerID, date)
	if err != nil {
		return nil, err
	}
	occ := make([]occupant, 0, len(commitments)+len(items))
	for _, c := range commitments {
		start, err := interval.ParseClock(c.Start)
		if err != nil {
			return nil, fmt.Errorf("commitment %s: %w", c.ID, err)
		}
		iv, err := interval.New(start, start+c.DurationMinutes)
		if err != nil {
			return nil, fmt.Errorf("commitment %s: %w", c.ID, err)
		}
		occ = append(occ, occupant{id: c.ID, kind: occupantCommitment, iv: iv})
	}
	for _, w := range items {
		if exclude[w.ID] {
			continue
		}
		start, err := interval.ParseClock(*w.PlacementStart)
		if err != nil {
			return nil, fmt.Errorf("work item %s: %w", w.ID, err)
		}
		need := e.placementMinutes(w)
		occ = append(occ, occupant{
			id:        w.ID,
			kind:      occupantItem,
			iv:        interval.Interval{Start: start, End: start + need},
			remaining: need,
			pinned:    w.Pinned,
			version:   w.Version,
		})
	}
	return occ, nil
}
