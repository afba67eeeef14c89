// Package ics converts external calendar exports into commitment records.
// Commitments usually originate in a user's real calendar; importing an ICS
// file is how those fixed blocks reach the scheduler.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"planline/internal/engine"
)

// ParsedCommitment is one timed VEVENT normalized to the scheduler's
// date/start/duration shape. All-day and zero-length events are skipped.
type ParsedCommitment struct {
	UID             string
	Title           string
	Date            string
	Start           string
	DurationMinutes int
}

// Parse reads an ICS payload and returns its timed events, skipping entries
// without a concrete start and end. Times are converted to local wall clock.
func Parse(r io.Reader) ([]ParsedCommitment, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}
	var out []ParsedCommitment
	for _, ve := range cal.Events() {
		pc, err := parseVEvent(ve)
		if err != nil {
			continue
		}
		out = append(out, pc)
	}
	return out, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedCommitment, error) {
	var pc ParsedCommitment
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		pc.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		pc.Title = p.Value
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return pc, err
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return pc, err
	}
	if !end.After(start) {
		return pc, errors.New("event has no duration")
	}
	start, end = start.Local(), end.Local()
	if start.Format("2006-01-02") != end.Format("2006-01-02") {
		// Multi-day blocks cannot occupy a single working day.
		return pc, errors.New("event spans multiple days")
	}
	pc.Date = start.Format("2006-01-02")
	pc.Start = start.Format("15:04")
	pc.DurationMinutes = int(end.Sub(start) / time.Minute)
	return pc, nil
}

// Import parses an ICS payload and creates one commitment per timed event for
// the given owner, reconciling placements after each insert. It returns the
// created commitments and the accumulated list of items that had to move.
func Import(ctx context.Context, e engine.Engine, r io.Reader, ownerID, actorID string) (int, []string, error) {
	parsed, err := Parse(r)
	if err != nil {
		return 0, nil, err
	}
	var movedIDs []string
	created := 0
	for _, pc := range parsed {
		_, moved, err := e.CreateCommitment(ctx, engine.CommitmentCreateOptions{
			OwnerID:         ownerID,
			Title:           pc.Title,
			Date:            pc.Date,
			Start:           pc.Start,
			DurationMinutes: pc.DurationMinutes,
			ActorID:         actorID,
		})
		if err != nil {
			return created, movedIDs, fmt.Errorf("import event %q: %w", pc.UID, err)
		}
		created++
		for _, m := range moved {
			movedIDs = append(movedIDs, m.ItemID)
		}
	}
	return created, movedIDs, nil
}
