package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"planline/internal/config"
	"planline/internal/db"
	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/interval"
	"planline/internal/migrate"
	"planline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateOwner(ctx, "alice", "Alice", "planner"); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	if _, err := eng.CreateOwner(ctx, "bob", "Bob", "assistant"); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) addCommitment(t *testing.T, owner, date, start string, minutes int) domain.Commitment {
	t.Helper()
	c, _, err := env.Engine.CreateCommitment(env.Ctx, engine.CommitmentCreateOptions{
		OwnerID: owner, Title: "meeting", Date: date, Start: start, DurationMinutes: minutes, ActorID: "test",
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	return c
}

func (env testEnv) addItem(t *testing.T, opts engine.ItemCreateOptions) (domain.WorkItem, engine.PlacementResult) {
	t.Helper()
	if opts.ActorID == "" {
		opts.ActorID = "test"
	}
	w, res, err := env.Engine.CreateItem(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create item %q: %v", opts.Title, err)
	}
	return w, res
}

func strPtr(s string) *string { return &s }

func placementOf(t *testing.T, env testEnv, id string) (string, string) {
	t.Helper()
	w, err := env.Engine.Repo.GetWorkItem(env.Ctx, id)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !w.Placed() {
		return "", ""
	}
	return *w.PlacementDate, *w.PlacementStart
}

// assertNoOverlaps checks the core invariant for one owner's day: no two
// occupants (items or commitments) share time.
func assertNoOverlaps(t *testing.T, env testEnv, owner, date string) {
	t.Helper()
	var ivs []interval.Interval
	commitments, err := env.Engine.Repo.ListCommitments(env.Ctx, owner, date)
	if err != nil {
		t.Fatalf("list commitments: %v", err)
	}
	for _, c := range commitments {
		start, _ := interval.ParseClock(c.Start)
		ivs = append(ivs, interval.Interval{Start: start, End: start + c.DurationMinutes})
	}
	items, err := env.Engine.Repo.ListPlacedItems(env.Ctx, owner, date)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	for _, w := range items {
		if w.Pinned {
			// Pinned items may legitimately conflict after a commitment change.
			continue
		}
		start, _ := interval.ParseClock(*w.PlacementStart)
		need := int((w.EstimatedHours - w.LoggedHours) * 60)
		if need < config.DefaultMinPlaceMinutes {
			need = config.DefaultMinPlaceMinutes
		}
		ivs = append(ivs, interval.Interval{Start: start, End: start + need})
	}
	for i := 0; i < len(ivs); i++ {
		for j := i + 1; j < len(ivs); j++ {
			if interval.Overlaps(ivs[i], ivs[j]) {
				t.Errorf("overlap on %s: %v and %v", date, ivs[i], ivs[j])
			}
		}
	}
}

func TestEarliestGapSelection(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	env.addCommitment(t, "alice", day, "10:00", 120)

	_, res := env.addItem(t, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "report", DueDate: strPtr(day), EstimatedHours: 3,
	})
	if !res.Placed {
		t.Fatalf("expected placement, got reason %s", res.Reason)
	}
	// 09:00-10:00 is too short for 3h; first sufficient gap starts at 12:00.
	if res.Date != day || res.Start != "12:00" {
		t.Fatalf("expected 12:00 on %s, got %s %s", day, res.Date, res.Start)
	}
	assertNoOverlaps(t, env, "alice", day)
}

func TestCascadeMovesLargestItemBackward(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	prev := "2025-03-09"
	env.addCommitment(t, "alice", day, "09:00", 240)
	big, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "big", DueDate: strPtr(day), EstimatedHours: 3})
	small, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "small", DueDate: strPtr(day), EstimatedHours: 1.5})

	// Day now holds 8.5h; a 1h item cannot fit without a cascade.
	_, res := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "new", DueDate: strPtr(day), EstimatedHours: 1})
	if !res.Placed {
		t.Fatalf("expected placement, got reason %s", res.Reason)
	}
	if res.Date != day || res.Start != "13:00" {
		t.Fatalf("expected 13:00 on %s, got %s %s", day, res.Date, res.Start)
	}
	if len(res.Moved) != 1 || res.Moved[0].ItemID != big.ID {
		t.Fatalf("expected big item in moved list, got %+v", res.Moved)
	}
	if d, s := placementOf(t, env, big.ID); d != prev || s != "09:00" {
		t.Fatalf("big item should overflow to %s 09:00, got %s %s", prev, d, s)
	}
	if d, _ := placementOf(t, env, small.ID); d != day {
		t.Fatalf("small item should stay on %s, got %s", day, d)
	}
	assertNoOverlaps(t, env, "alice", day)
	assertNoOverlaps(t, env, "alice", prev)
}

func TestCascadeVictimTieBreaksByEarliestStart(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	first, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "first", DueDate: strPtr(day), EstimatedHours: 2})
	second, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "second", DueDate: strPtr(day), EstimatedHours: 2})
	env.addCommitment(t, "alice", day, "13:00", 300)

	_, res := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "third", DueDate: strPtr(day), EstimatedHours: 2})
	if !res.Placed {
		t.Fatalf("expected placement, got reason %s", res.Reason)
	}
	if len(res.Moved) != 1 || res.Moved[0].ItemID != first.ID {
		t.Fatalf("tie should move earliest-start item %s, got %+v", first.ID, res.Moved)
	}
	if d, _ := placementOf(t, env, second.ID); d != day {
		t.Fatalf("second item should not move, got %s", d)
	}
}

func TestNoVictimMeansNoSlot(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	env.addCommitment(t, "alice", day, "09:00", 540)

	item, res := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "stuck", DueDate: strPtr(day), EstimatedHours: 1})
	if res.Placed {
		t.Fatalf("expected no placement on a day of solid commitments")
	}
	if res.Reason != engine.ReasonNoSlotAvailable {
		t.Fatalf("expected reason %s, got %s", engine.ReasonNoSlotAvailable, res.Reason)
	}
	if item.Placed() {
		t.Fatalf("item should remain unplaced")
	}
}

func TestCascadeDepthBoundDiscardsWholePlan(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Scheduling.MaxCascadeDepth = 1
	day := "2025-03-10"
	t1, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "t1", DueDate: strPtr(day), EstimatedHours: 5})
	t2, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "t2", DueDate: strPtr(day), EstimatedHours: 5})
	d1, s1 := placementOf(t, env, t1.ID)
	d2, s2 := placementOf(t, env, t2.ID)

	// Placing a third 5h item would need two relocations; the bound is one.
	t3, res := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "t3", DueDate: strPtr(day), EstimatedHours: 5})
	if res.Placed {
		t.Fatalf("expected cascade exhaustion")
	}
	if res.Reason != engine.ReasonNoSlotAvailable {
		t.Fatalf("expected reason %s, got %s", engine.ReasonNoSlotAvailable, res.Reason)
	}
	if t3.Placed() {
		t.Fatalf("failed placement must leave item unplaced")
	}
	// The discarded plan must not have moved anything.
	if d, s := placementOf(t, env, t1.ID); d != d1 || s != s1 {
		t.Fatalf("t1 moved by a failed plan: %s %s -> %s %s", d1, s1, d, s)
	}
	if d, s := placementOf(t, env, t2.ID); d != d2 || s != s2 {
		t.Fatalf("t2 moved by a failed plan: %s %s -> %s %s", d2, s2, d, s)
	}
}

func TestAutoPlaceIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	env.addCommitment(t, "alice", day, "10:00", 60)
	item, first := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "steady", DueDate: strPtr(day), EstimatedHours: 2})

	second, err := env.Engine.AutoPlace(env.Ctx, item.ID, "test")
	if err != nil {
		t.Fatalf("autoplace: %v", err)
	}
	if second.Date != first.Date || second.Start != first.Start {
		t.Fatalf("repeat placement differs: %s %s vs %s %s", first.Date, first.Start, second.Date, second.Start)
	}
	if len(second.Moved) != 0 {
		t.Fatalf("repeat placement moved items: %+v", second.Moved)
	}
}

func TestAutoPlaceSkipsPinnedItems(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	item, _ := env.addItem(t, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "pinned", DueDate: strPtr(day), EstimatedHours: 1,
		Pinned: true, PlacementDate: strPtr(day), PlacementStart: strPtr("14:00"),
	})
	res, err := env.Engine.AutoPlace(env.Ctx, item.ID, "test")
	if err != nil {
		t.Fatalf("autoplace: %v", err)
	}
	if d, s := placementOf(t, env, item.ID); d != day || s != "14:00" {
		t.Fatalf("pinned item moved to %s %s", d, s)
	}
	if !res.Placed || res.Start != "14:00" {
		t.Fatalf("expected pinned placement reported unchanged, got %+v", res)
	}
}

func TestEffortLogShrinksAndRelocatesEarlier(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	env.addCommitment(t, "alice", day, "10:00", 120)
	item, res := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "shrinking", DueDate: strPtr(day), EstimatedHours: 3})
	if res.Start != "12:00" {
		t.Fatalf("setup: expected 12:00, got %s", res.Start)
	}

	// 2h logged leaves 1h remaining, which now fits before the commitment.
	_, res, err := env.Engine.LogEffort(env.Ctx, item.ID, 2, "test")
	if err != nil {
		t.Fatalf("log effort: %v", err)
	}
	if !res.Placed || res.Start != "09:00" {
		t.Fatalf("expected re-placement at 09:00, got %+v", res)
	}
	assertNoOverlaps(t, env, "alice", day)
}

func TestMinimumDurationFloor(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	item, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "nearly done", DueDate: strPtr(day), EstimatedHours: 1})
	if _, _, err := env.Engine.LogEffort(env.Ctx, item.ID, 0.9, "test"); err != nil {
		t.Fatalf("log effort: %v", err)
	}
	// 6 remaining minutes still occupy the half-hour floor.
	slots, err := env.Engine.FindFreeSlots(env.Ctx, "alice", day, 30)
	if err != nil {
		t.Fatalf("find slots: %v", err)
	}
	if len(slots) == 0 || slots[0].Start != 9*60+30 {
		t.Fatalf("expected first free slot at 09:30, got %+v", slots)
	}
}

func TestReconcileAfterCommitmentChange(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	a, _ := env.addItem(t, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "a", DueDate: strPtr(day), EstimatedHours: 0.6,
		PlacementDate: strPtr(day), PlacementStart: strPtr("10:00"),
	})
	b, _ := env.addItem(t, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "b", DueDate: strPtr(day), EstimatedHours: 0.6,
		PlacementDate: strPtr(day), PlacementStart: strPtr("10:40"),
	})
	pinned, _ := env.addItem(t, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "pinned", DueDate: strPtr(day), EstimatedHours: 0.6,
		Pinned: true, PlacementDate: strPtr(day), PlacementStart: strPtr("11:20"),
	})

	_, moved, err := env.Engine.CreateCommitment(env.Ctx, engine.CommitmentCreateOptions{
		OwnerID: "alice", Title: "all hands", Date: day, Start: "10:00", DurationMinutes: 120, ActorID: "test",
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	if len(moved) != 2 {
		t.Fatalf("expected two moved items, got %+v", moved)
	}
	movedIDs := map[string]bool{}
	for _, m := range moved {
		movedIDs[m.ItemID] = true
	}
	if !movedIDs[a.ID] || !movedIDs[b.ID] {
		t.Fatalf("expected %s and %s in moved list, got %+v", a.ID, b.ID, moved)
	}
	if movedIDs[pinned.ID] {
		t.Fatalf("pinned item must not be reconciled")
	}
	if d, s := placementOf(t, env, pinned.ID); d != day || s != "11:20" {
		t.Fatalf("pinned item moved to %s %s", d, s)
	}
	// Re-placed items land in the free morning gap, earliest first.
	if d, s := placementOf(t, env, a.ID); d != day || s != "09:00" {
		t.Fatalf("item a at %s %s, want %s 09:00", d, s, day)
	}
	if d, s := placementOf(t, env, b.ID); d != day || s != "09:36" {
		t.Fatalf("item b at %s %s, want %s 09:36", d, s, day)
	}
	assertNoOverlaps(t, env, "alice", day)
}

func TestCommitmentDeleteDoesNotMoveItems(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	c := env.addCommitment(t, "alice", day, "09:00", 120)
	item, res := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "after", DueDate: strPtr(day), EstimatedHours: 1})
	if res.Start != "11:00" {
		t.Fatalf("setup: expected 11:00, got %s", res.Start)
	}
	if err := env.Engine.DeleteCommitment(env.Ctx, c.ID, "test"); err != nil {
		t.Fatalf("delete commitment: %v", err)
	}
	if d, s := placementOf(t, env, item.ID); d != day || s != "11:00" {
		t.Fatalf("item moved after commitment delete: %s %s", d, s)
	}
}

func TestFindFreeSlots(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	env.addCommitment(t, "alice", day, "10:00", 120)

	slots, err := env.Engine.FindFreeSlots(env.Ctx, "alice", day, 60)
	if err != nil {
		t.Fatalf("find slots: %v", err)
	}
	want := []interval.Interval{{Start: 540, End: 600}, {Start: 720, End: 1080}}
	if len(slots) != len(want) {
		t.Fatalf("got %+v, want %+v", slots, want)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Errorf("slot %d: got %v, want %v", i, slots[i], want[i])
		}
	}

	// A min duration larger than any gap is a valid empty answer.
	slots, err = env.Engine.FindFreeSlots(env.Ctx, "alice", day, 7*60)
	if err != nil {
		t.Fatalf("find slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %+v", slots)
	}

	if _, err := env.Engine.FindFreeSlots(env.Ctx, "nobody", day, 60); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown owner should be a hard error, got %v", err)
	}
}

func TestValidateMoveDirectionPolicy(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	next := "2025-03-11"
	item, _ := env.addItem(t, engine.ItemCreateOptions{
		OwnerID: "bob", Title: "restricted", DueDate: strPtr(next), EstimatedHours: 1,
		PlacementDate: strPtr(day), PlacementStart: strPtr("10:00"),
	})

	outcome, err := env.Engine.ValidateMove(env.Ctx, false, item.ID, next, "10:00", "bob")
	if err != nil {
		t.Fatalf("validate move: %v", err)
	}
	if outcome.Status != engine.MoveRejected || outcome.Reason != engine.ReasonDirectionNotAllowed {
		t.Fatalf("expected direction rejection, got %+v", outcome)
	}
	if d, s := placementOf(t, env, item.ID); d != day || s != "10:00" {
		t.Fatalf("rejection must not write: item at %s %s", d, s)
	}

	// Backward on the same day is allowed for restricted movers.
	outcome, err = env.Engine.ValidateMove(env.Ctx, false, item.ID, day, "09:00", "bob")
	if err != nil {
		t.Fatalf("validate move: %v", err)
	}
	if outcome.Status != engine.MoveConfirmed || outcome.Start != "09:00" {
		t.Fatalf("expected confirmed 09:00, got %+v", outcome)
	}
}

func TestValidateMovePastDueDate(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	item, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "due bound", DueDate: strPtr(day), EstimatedHours: 1})

	outcome, err := env.Engine.ValidateMove(env.Ctx, true, item.ID, "2025-03-11", "09:00", "alice")
	if err != nil {
		t.Fatalf("validate move: %v", err)
	}
	if outcome.Status != engine.MoveRejected || outcome.Reason != engine.ReasonPastDueDate {
		t.Fatalf("expected past-due rejection, got %+v", outcome)
	}
}

func TestValidateMoveSnapsToNearestSlot(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	env.addCommitment(t, "alice", day, "09:00", 150)
	env.addCommitment(t, "alice", day, "12:30", 330)
	item, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "dragged", DueDate: strPtr("2025-03-12"), EstimatedHours: 1})

	outcome, err := env.Engine.ValidateMove(env.Ctx, true, item.ID, day, "10:00", "alice")
	if err != nil {
		t.Fatalf("validate move: %v", err)
	}
	if outcome.Status != engine.MoveSnapped {
		t.Fatalf("expected snap, got %+v", outcome)
	}
	if outcome.Date != day || outcome.Start != "11:30" {
		t.Fatalf("expected snap to 11:30, got %s %s", outcome.Date, outcome.Start)
	}
	w, err := env.Engine.Repo.GetWorkItem(env.Ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if !w.Pinned {
		t.Fatalf("snapped item must be pinned")
	}
	assertNoOverlaps(t, env, "alice", day)
}

func TestValidateMoveRejectsFullDay(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	env.addCommitment(t, "alice", day, "09:00", 540)
	item, _ := env.addItem(t, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "nowhere to go", DueDate: strPtr("2025-03-12"), EstimatedHours: 1,
	})
	before, beforeStart := placementOf(t, env, item.ID)

	outcome, err := env.Engine.ValidateMove(env.Ctx, true, item.ID, day, "10:00", "alice")
	if err != nil {
		t.Fatalf("validate move: %v", err)
	}
	if outcome.Status != engine.MoveRejected || outcome.Reason != engine.ReasonNoSpaceOnDay {
		t.Fatalf("expected no-space rejection, got %+v", outcome)
	}
	if d, s := placementOf(t, env, item.ID); d != before || s != beforeStart {
		t.Fatalf("rejection must not write: item at %s %s", d, s)
	}
}

func TestPinnedItemSurvivesCascadeAndReconcile(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	pinned, _ := env.addItem(t, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "anchor", DueDate: strPtr(day), EstimatedHours: 4,
		Pinned: true, PlacementDate: strPtr(day), PlacementStart: strPtr("09:00"),
	})
	env.addCommitment(t, "alice", day, "13:00", 240)

	// Day is full; the only unpinned candidate pool is empty, so no cascade.
	_, res := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "blocked", DueDate: strPtr(day), EstimatedHours: 2})
	if res.Placed {
		t.Fatalf("expected no slot with only pinned occupants")
	}
	if d, s := placementOf(t, env, pinned.ID); d != day || s != "09:00" {
		t.Fatalf("pinned item moved: %s %s", d, s)
	}
}

func TestDueDateBoundHolds(t *testing.T) {
	env := newTestEnv(t)
	due := "2025-03-10"
	for i := 0; i < 3; i++ {
		item, res := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "load", DueDate: strPtr(due), EstimatedHours: 4})
		if !res.Placed {
			t.Fatalf("item %s unplaced", item.ID)
		}
		if res.Date > due {
			t.Fatalf("placement %s is after due date %s", res.Date, due)
		}
	}
	items, err := env.Engine.Repo.ListWorkItems(env.Ctx, "alice", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, w := range items {
		if w.Placed() && *w.PlacementDate > due {
			t.Errorf("item %s landed on %s, after due date", w.ID, *w.PlacementDate)
		}
	}
}

func TestWindowContainment(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	env.addCommitment(t, "alice", day, "10:00", 120)
	for i := 0; i < 4; i++ {
		env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "chunk", DueDate: strPtr(day), EstimatedHours: 1.5})
	}
	items, err := env.Engine.Repo.ListWorkItems(env.Ctx, "alice", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, w := range items {
		if !w.Placed() {
			continue
		}
		start, err := interval.ParseClock(*w.PlacementStart)
		if err != nil {
			t.Fatalf("parse start: %v", err)
		}
		end := start + 90
		if start < 9*60 || end > 18*60 {
			t.Errorf("item %s outside window: %s + 90m", w.ID, *w.PlacementStart)
		}
	}
}

func TestStalePlacementWriteConflicts(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	item, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "alice", Title: "raced", DueDate: strPtr(day), EstimatedHours: 1})
	w, err := env.Engine.Repo.GetWorkItem(env.Ctx, item.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := env.Engine.Repo.UpdatePlacement(env.Ctx, nil, w.ID, day, "15:00", false, w.Version, now); err != nil {
		t.Fatalf("first write: %v", err)
	}
	err = env.Engine.Repo.UpdatePlacement(env.Ctx, nil, w.ID, day, "16:00", false, w.Version, now)
	if !errors.Is(err, repo.ErrVersionConflict) {
		t.Fatalf("stale write should conflict, got %v", err)
	}
}

func TestCreateItemRejectsOverlappingSuppliedPlacement(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	env.addCommitment(t, "alice", day, "10:00", 120)

	_, _, err := env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "clashing", EstimatedHours: 1,
		PlacementDate: strPtr(day), PlacementStart: strPtr("10:30"), ActorID: "test",
	})
	if err == nil {
		t.Fatalf("expected rejection of placement inside a commitment")
	}
	_, _, err = env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "clashing pinned", EstimatedHours: 1,
		Pinned: true, PlacementDate: strPtr(day), PlacementStart: strPtr("11:00"), ActorID: "test",
	})
	if err == nil {
		t.Fatalf("expected rejection of pinned placement inside a commitment")
	}
	assertNoOverlaps(t, env, "alice", day)

	// A supplied start that falls in a free gap is kept as given.
	w, _ := env.addItem(t, engine.ItemCreateOptions{
		OwnerID: "alice", Title: "fits", EstimatedHours: 1,
		PlacementDate: strPtr(day), PlacementStart: strPtr("13:00"),
	})
	if d, s := placementOf(t, env, w.ID); d != day || s != "13:00" {
		t.Fatalf("supplied placement not kept: %s %s", d, s)
	}
	assertNoOverlaps(t, env, "alice", day)
}

func TestValidateMoveUnplacedItemAnyDirection(t *testing.T) {
	env := newTestEnv(t)
	day := "2025-03-10"
	// No due date, no placement: nothing to move relative to, so even a
	// backward-only actor may drop it on any day.
	item, _ := env.addItem(t, engine.ItemCreateOptions{OwnerID: "bob", Title: "backlog", EstimatedHours: 1})
	if item.Placed() {
		t.Fatalf("item should start unplaced")
	}

	outcome, err := env.Engine.ValidateMove(env.Ctx, false, item.ID, day, "10:00", "bob")
	if err != nil {
		t.Fatalf("validate move: %v", err)
	}
	if outcome.Status != engine.MoveConfirmed || outcome.Start != "10:00" {
		t.Fatalf("expected confirmed drop at 10:00, got %+v", outcome)
	}
	if d, s := placementOf(t, env, item.ID); d != day || s != "10:00" {
		t.Fatalf("placement not persisted: %s %s", d, s)
	}
}
