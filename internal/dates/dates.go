// Package dates parses natural-language and ISO date expressions and
// computes the relative-date predicates the task lifecycle depends on.
//
// Parsing is an ordered list of independent lexical matchers, first match
// wins. There is no locale or timezone negotiation: everything is resolved
// against the local system day.
package dates

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate marks unparseable date text. The wrapped message carries
// the offending input verbatim.
var ErrInvalidDate = errors.New("invalid date")

// now is swapped out in tests to pin the reference day.
var now = time.Now

const isoLayout = "2006-01-02"

var (
	isoPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	inPattern  = regexp.MustCompile(`^in (\d+) (day|days|week|weeks)$`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// matcher attempts one parsing rule against normalized input.
type matcher func(s string, today time.Time) (time.Time, bool, error)

// matchers are tried in priority order; the order is part of the contract
// (e.g. "next week" must win before the weekday rule sees "next").
var matchers = []matcher{
	matchISO,
	matchKeyword,
	matchInN,
	matchWeekday,
	matchEndOf,
}

// Parse resolves free-form date text to an absolute day at local midnight.
// Matching is case-insensitive and ignores surrounding whitespace. Returns
// ErrInvalidDate (carrying the input) when no rule matches.
func Parse(text string) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrInvalidDate)
	}

	today := Midnight(now())
	for _, m := range matchers {
		t, ok, err := m(s, today)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, text)
}

func matchISO(s string, _ time.Time) (time.Time, bool, error) {
	if !isoPattern.MatchString(s) {
		return time.Time{}, false, nil
	}
	t, err := time.ParseInLocation(isoLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, true, nil
}

func matchKeyword(s string, today time.Time) (time.Time, bool, error) {
	switch s {
	case "today":
		return today, true, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), true, nil
	case "yesterday":
		return today.AddDate(0, 0, -1), true, nil
	case "next week":
		return today.AddDate(0, 0, 7), true, nil
	}
	return time.Time{}, false, nil
}

func matchInN(s string, today time.Time) (time.Time, bool, error) {
	m := inPattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	if strings.HasPrefix(m[2], "week") {
		n *= 7
	}
	return today.AddDate(0, 0, n), true, nil
}

func matchWeekday(s string, today time.Time) (time.Time, bool, error) {
	name, skip := strings.CutPrefix(s, "next ")
	wd, ok := weekdays[name]
	if !ok {
		return time.Time{}, false, nil
	}
	// Closest upcoming occurrence; a weekday names next week's day when
	// today already is that day.
	offset := (int(wd) - int(today.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	if skip {
		offset += 7
	}
	return today.AddDate(0, 0, offset), true, nil
}

func matchEndOf(s string, today time.Time) (time.Time, bool, error) {
	switch s {
	case "end of week", "eow":
		// The coming Friday, strictly in the future: Fri/Sat/Sun roll
		// to the Friday of the following week.
		offset := int(time.Friday) - int(today.Weekday())
		if offset <= 0 {
			offset += 7
		}
		return today.AddDate(0, 0, offset), true, nil
	case "end of month", "eom":
		// Day 0 of next month normalizes to this month's last day.
		return time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, time.Local), true, nil
	case "end of year", "eoy":
		return time.Date(today.Year(), time.December, 31, 0, 0, 0, 0, time.Local), true, nil
	}
	return time.Time{}, false, nil
}

// FormatISO renders the date as YYYY-MM-DD.
func FormatISO(t time.Time) string {
	return t.Format(isoLayout)
}

// Midnight truncates t to the start of its calendar day.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DaysUntil returns the whole-day delta between t's day and today,
// negative for past days.
func DaysUntil(t time.Time) int {
	delta := Midnight(t).Sub(Midnight(now()))
	return int(math.Round(delta.Hours() / 24))
}

// FormatRelative buckets the date by whole-day distance from today.
func FormatRelative(t time.Time) string {
	switch d := DaysUntil(t); {
	case d < -1:
		return fmt.Sprintf("%d days ago", -d)
	case d == -1:
		return "yesterday"
	case d == 0:
		return "today"
	case d == 1:
		return "tomorrow"
	case d < 7:
		return t.Weekday().String()
	case d < 14:
		return "next " + t.Weekday().String()
	default:
		return t.Format("Jan 2")
	}
}

// IsOverdue reports whether the day is strictly before today.
func IsOverdue(t time.Time) bool {
	return DaysUntil(t) < 0
}

// IsDueToday reports whether the day is today.
func IsDueToday(t time.Time) bool {
	return DaysUntil(t) == 0
}

// IsDueThisWeek reports whether the day falls within the next week,
// inclusive of today and of exactly seven days out.
func IsDueThisWeek(t time.Time) bool {
	d := DaysUntil(t)
	return d >= 0 && d <= 7
}
