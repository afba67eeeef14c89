package interval

import (
	"errors"
	"testing"
)

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", Interval{540, 600}, Interval{600, 660}, false},
		{"adjacent half-open do not overlap", Interval{540, 600}, Interval{600, 720}, false},
		{"partial overlap", Interval{540, 620}, Interval{600, 660}, true},
		{"containment", Interval{540, 720}, Interval{600, 660}, true},
		{"identical", Interval{540, 600}, Interval{540, 600}, true},
		{"zero length never overlaps", Interval{600, 600}, Interval{540, 720}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := (Interval{Start: 600, End: 540}).Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("end before start: got %v, want ErrInvalidInterval", err)
	}
	if err := (Interval{Start: 600, End: 600}).Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("zero length: got %v, want ErrInvalidInterval", err)
	}
	if err := (Interval{Start: -10, End: 60}).Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("negative start: got %v, want ErrInvalidInterval", err)
	}
	if err := (Interval{Start: 540, End: 1080}).Validate(); err != nil {
		t.Errorf("valid interval rejected: %v", err)
	}
}

func TestGaps(t *testing.T) {
	window := Interval{Start: 9 * 60, End: 18 * 60} // 09:00-18:00

	tests := []struct {
		name     string
		occupied []Interval
		want     []Interval
	}{
		{
			"empty day is one gap",
			nil,
			[]Interval{{540, 1080}},
		},
		{
			"single commitment splits window",
			[]Interval{{600, 720}},
			[]Interval{{540, 600}, {720, 1080}},
		},
		{
			"unsorted input",
			[]Interval{{840, 900}, {600, 720}},
			[]Interval{{540, 600}, {720, 840}, {900, 1080}},
		},
		{
			"overlapping occupied merged",
			[]Interval{{600, 720}, {660, 780}},
			[]Interval{{540, 600}, {780, 1080}},
		},
		{
			"adjacent occupied merged",
			[]Interval{{600, 720}, {720, 780}},
			[]Interval{{540, 600}, {780, 1080}},
		},
		{
			"occupied clipped to window",
			[]Interval{{480, 620}, {1020, 1140}},
			[]Interval{{620, 1020}},
		},
		{
			"fully occupied day",
			[]Interval{{540, 1080}},
			nil,
		},
		{
			"occupied outside window ignored",
			[]Interval{{300, 420}},
			[]Interval{{540, 1080}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Gaps(window, tt.occupied)
			if err != nil {
				t.Fatalf("Gaps: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("gap %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGapsInvalidInput(t *testing.T) {
	if _, err := Gaps(Interval{600, 540}, nil); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("bad window: got %v", err)
	}
	if _, err := Gaps(Interval{540, 1080}, []Interval{{700, 700}}); !errors.Is(err, ErrInvalidInterval) {
		t.Errorf("bad occupied: got %v", err)
	}
}

func TestClockRoundTrip(t *testing.T) {
	for _, s := range []string{"00:00", "09:00", "13:37", "23:59"} {
		m, err := ParseClock(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := FormatClock(m); got != s {
			t.Errorf("round trip %q -> %d -> %q", s, m, got)
		}
	}
	for _, s := range []string{"9:00", "24:00", "12:60", "nope!", "12-30"} {
		if _, err := ParseClock(s); !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("ParseClock(%q): expected ErrInvalidInterval, got %v", s, err)
		}
	}
}
