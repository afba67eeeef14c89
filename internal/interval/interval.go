// Package interval provides half-open minute-of-day intervals and the gap
// arithmetic the placement engine is built on. All functions are pure.
package interval

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidInterval reports a malformed interval (end <= start or out of day range).
var ErrInvalidInterval = errors.New("invalid interval")

// Interval is a half-open time range [Start, End) in minutes since midnight.
type Interval struct {
	Start int `json:"start_minutes"`
	End   int `json:"end_minutes"`
}

// New builds a validated interval.
func New(start, end int) (Interval, error) {
	iv := Interval{Start: start, End: end}
	return iv, iv.Validate()
}

// Validate rejects intervals with end <= start or bounds outside a single day.
func (iv Interval) Validate() error {
	if iv.End <= iv.Start {
		return fmt.Errorf("%w: [%s, %s)", ErrInvalidInterval, FormatClock(iv.Start), FormatClock(iv.End))
	}
	if iv.Start < 0 || iv.End > 24*60 {
		return fmt.Errorf("%w: [%s, %s) outside day", ErrInvalidInterval, FormatClock(iv.Start), FormatClock(iv.End))
	}
	return nil
}

// Duration returns the interval length in minutes.
func (iv Interval) Duration() int {
	return iv.End - iv.Start
}

func (iv Interval) String() string {
	return FormatClock(iv.Start) + "-" + FormatClock(iv.End)
}

// Overlaps reports whether two half-open intervals share any time.
// Zero-length intervals never overlap anything.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

// Gaps returns the free intervals inside window once the occupied intervals are
// removed. Occupied intervals may be unsorted and may overlap each other; they
// are clipped to the window. Results are sorted by start time.
func Gaps(window Interval, occupied []Interval) ([]Interval, error) {
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("window: %w", err)
	}
	clipped := make([]Interval, 0, len(occupied))
	for _, iv := range occupied {
		if err := iv.Validate(); err != nil {
			return nil, err
		}
		if !Overlaps(iv, window) {
			continue
		}
		if iv.Start < window.Start {
			iv.Start = window.Start
		}
		if iv.End > window.End {
			iv.End = window.End
		}
		clipped = append(clipped, iv)
	}
	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start < clipped[j].Start })

	// Merge overlapping or adjacent occupied intervals.
	merged := clipped[:0]
	for _, iv := range clipped {
		if n := len(merged); n > 0 && iv.Start <= merged[n-1].End {
			if iv.End > merged[n-1].End {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}

	var gaps []Interval
	cursor := window.Start
	for _, iv := range merged {
		if iv.Start > cursor {
			gaps = append(gaps, Interval{Start: cursor, End: iv.Start})
		}
		cursor = iv.End
	}
	if cursor < window.End {
		gaps = append(gaps, Interval{Start: cursor, End: window.End})
	}
	return gaps, nil
}

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidInterval, s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("%w: clock %q", ErrInvalidInterval, s)
		}
	}
	hours := int(s[0]-'0')*10 + int(s[1]-'0')
	mins := int(s[3]-'0')*10 + int(s[4]-'0')
	if hours > 23 || mins > 59 {
		return 0, fmt.Errorf("%w: clock %q", ErrInvalidInterval, s)
	}
	return hours*60 + mins, nil
}

// FormatClock converts minutes since midnight to "HH:MM".
func FormatClock(m int) string {
	if m < 0 {
		m = 0
	}
	if m > 24*60 {
		m = 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
