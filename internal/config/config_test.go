package config

import (
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	win, err := c.Window()
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if win.Start != 9*60 || win.End != 18*60 {
		t.Fatalf("unexpected default window: %v", win)
	}
}

func TestFromYAMLOverrides(t *testing.T) {
	c, err := FromYAML([]byte(`
scheduling:
  window_start: "08:00"
  window_end: "16:00"
  max_cascade_depth: 3
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	win, err := c.Window()
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if win.Start != 8*60 || win.End != 16*60 {
		t.Fatalf("override not applied: %v", win)
	}
	if c.Scheduling.MaxCascadeDepth != 3 {
		t.Fatalf("max_cascade_depth not applied: %d", c.Scheduling.MaxCascadeDepth)
	}
	// Unset fields keep the defaults.
	if c.Scheduling.MinPlaceMinutes != DefaultMinPlaceMinutes {
		t.Fatalf("min_place_minutes default lost: %d", c.Scheduling.MinPlaceMinutes)
	}
}

func TestFromYAMLRejectsUnknownFields(t *testing.T) {
	_, err := FromYAML([]byte("scheduling:\n  window_begins: \"08:00\"\n"))
	if err == nil {
		t.Fatalf("expected unknown-field error")
	}
}

func TestFromYAMLRejectsInvalidWindow(t *testing.T) {
	for _, payload := range []string{
		"scheduling:\n  window_start: \"18:00\"\n  window_end: \"09:00\"\n",
		"scheduling:\n  window_start: \"9am\"\n",
		"scheduling:\n  min_place_minutes: 0\n",
		"scheduling:\n  max_cascade_depth: 0\n",
		"webhooks:\n  - events: [item.moved]\n",
	} {
		if _, err := FromYAML([]byte(payload)); err == nil {
			t.Errorf("expected error for %q", strings.TrimSpace(payload))
		}
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	c := Default()
	c.Auth.JWTSecret = "s3cret"
	out, err := c.ToYAML()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := FromYAML(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if parsed.Auth.JWTSecret != "s3cret" {
		t.Fatalf("secret lost in round trip")
	}
}
