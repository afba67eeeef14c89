package ics

import (
	"strings"
	"testing"
)

const sampleCalendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:standup@test
SUMMARY:Daily standup
DTSTART:20250310T100000
DTEND:20250310T103000
END:VEVENT
BEGIN:VEVENT
UID:zero@test
SUMMARY:Zero length
DTSTART:20250310T120000
DTEND:20250310T120000
END:VEVENT
BEGIN:VEVENT
UID:offsite@test
SUMMARY:Offsite
DTSTART:20250311T150000
DTEND:20250312T110000
END:VEVENT
BEGIN:VEVENT
UID:review@test
SUMMARY:Design review
DTSTART:20250311T140000
DTEND:20250311T160000
END:VEVENT
END:VCALENDAR
`

func TestParseKeepsOnlySingleDayTimedEvents(t *testing.T) {
	parsed, err := Parse(strings.NewReader(sampleCalendar))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(parsed), parsed)
	}
	standup := parsed[0]
	if standup.UID != "standup@test" || standup.Title != "Daily standup" {
		t.Fatalf("unexpected first event: %+v", standup)
	}
	if standup.Date != "2025-03-10" || standup.Start != "10:00" || standup.DurationMinutes != 30 {
		t.Fatalf("unexpected schedule: %+v", standup)
	}
	review := parsed[1]
	if review.Date != "2025-03-11" || review.Start != "14:00" || review.DurationMinutes != 120 {
		t.Fatalf("unexpected schedule: %+v", review)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse(strings.NewReader("not a calendar")); err == nil {
		t.Fatalf("expected parse error")
	}
}
