// Package search turns time-range filters into IMAP SEARCH terms.
package search

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the date form IMAP SEARCH expects (RFC 3501 date-text).
const DateLayout = "02-Jan-2006"

type TimeRange string

const (
	None      TimeRange = "none"
	Today     TimeRange = "today"
	Yesterday TimeRange = "yesterday"
	ThisWeek  TimeRange = "thisWeek"
	Last7Days TimeRange = "last7days"
	ThisMonth TimeRange = "thisMonth"
	LastMonth TimeRange = "lastMonth"
)

// TimeRanges lists every supported range in display order.
var TimeRanges = []TimeRange{None, Today, Yesterday, ThisWeek, Last7Days, ThisMonth, LastMonth}

// Filter selects which messages a retrieval call returns. A Limit of zero
// or less means no limit.
type Filter struct {
	Range TimeRange
	Limit int
}

type Term struct {
	Key   string
	Value string
}

// Query is an ordered list of search terms.
type Query []Term

func (q Query) String() string {
	parts := make([]string, 0, len(q))
	for _, t := range q {
		if t.Value == "" {
			parts = append(parts, t.Key)
			continue
		}
		parts = append(parts, t.Key+" "+t.Value)
	}
	return strings.Join(parts, " ")
}

// InvalidFilterError is returned for a time range this package does not know.
type InvalidFilterError struct {
	Value string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid time range %q (use one of %s)", e.Value, rangeNames())
}

// ParseTimeRange maps user input to a TimeRange. Matching ignores case
// and '-' or '_' separators, so "this-week" and "LAST_7_DAYS" both work.
// An empty string selects None.
func ParseTimeRange(s string) (TimeRange, error) {
	key := normalize(s)
	if key == "" {
		return None, nil
	}
	for _, r := range TimeRanges {
		if normalize(string(r)) == key {
			return r, nil
		}
	}
	return "", &InvalidFilterError{Value: s}
}

// BuildAt computes the query for filter relative to now. Each range is a
// half-open [SINCE, BEFORE) interval of whole days in now's location.
func BuildAt(filter Filter, now time.Time) (Query, error) {
	rng := filter.Range
	if rng == "" {
		rng = None
	}

	today := startOfDay(now)
	var since, before time.Time

	switch rng {
	case None:
		return Query{{Key: "ALL"}}, nil
	case Today:
		since = today
		before = today.AddDate(0, 0, 1)
	case Yesterday:
		since = today.AddDate(0, 0, -1)
		before = today
	case ThisWeek:
		since = today.AddDate(0, 0, -int(today.Weekday()))
		before = since.AddDate(0, 0, 7)
	case Last7Days:
		since = today.AddDate(0, 0, -6)
		before = today.AddDate(0, 0, 1)
	case ThisMonth:
		since = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		before = since.AddDate(0, 1, 0)
	case LastMonth:
		before = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		since = before.AddDate(0, -1, 0)
	default:
		return nil, &InvalidFilterError{Value: string(rng)}
	}

	return Query{
		{Key: "SINCE", Value: FormatDate(since)},
		{Key: "BEFORE", Value: FormatDate(before)},
	}, nil
}

// FormatDate renders t as DD-Mon-YYYY, e.g. 05-Mar-2024.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate is the inverse of FormatDate, in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "")
	return strings.ReplaceAll(s, "_", "")
}

func rangeNames() string {
	names := make([]string, len(TimeRanges))
	for i, r := range TimeRanges {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
