package tools

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"
)

//go:embed data/events.json
var defaultEvents []byte

const dateLayout = "2006-01-02"

// FindEventsTool is the tool name for FindEvents.
const FindEventsTool = "FindEvents"

type eventRecord struct {
	EventName   string `json:"eventName"`
	DateFrom    string `json:"dateFrom"`
	DateTo      string `json:"dateTo"`
	Description string `json:"description"`
}

// EventFinder searches a fixed set of city events.
type EventFinder struct {
	cities []string
	events map[string][]eventRecord
	now    func() time.Time
}

// NewEventFinder loads events from path, or the built-in data set when
// path is empty.
func NewEventFinder(path string) (*EventFinder, error) {
	data := defaultEvents
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("reading events file: %w", err)
		}
	}
	return newEventFinder(data, time.Now)
}

func newEventFinder(data []byte, now func() time.Time) (*EventFinder, error) {
	var events map[string][]eventRecord
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	for city, list := range events {
		for _, e := range list {
			if _, err := time.Parse(dateLayout, e.DateFrom); err != nil {
				return nil, fmt.Errorf("event %q in %s: bad dateFrom: %w", e.EventName, city, err)
			}
			if _, err := time.Parse(dateLayout, e.DateTo); err != nil {
				return nil, fmt.Errorf("event %q in %s: bad dateTo: %w", e.EventName, city, err)
			}
		}
	}
	cities := make([]string, 0, len(events))
	for city := range events {
		cities = append(cities, city)
	}
	slices.Sort(cities)
	return &EventFinder{cities: cities, events: events, now: now}, nil
}

// parseMonth accepts full or abbreviated English month names in any case.
func parseMonth(s string) (time.Month, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	for _, layout := range []string{"January", "Jan"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Month(), true
		}
	}
	return 0, false
}

func prevMonth(m time.Month) time.Month {
	if m == time.January {
		return time.December
	}
	return m - 1
}

func nextMonth(m time.Month) time.Month {
	if m == time.December {
		return time.January
	}
	return m + 1
}

// Find returns events in city (substring match, case-insensitive; empty
// matches all) during month or the month either side. Events whose start
// date has passed are rolled into next year.
func (f *EventFinder) Find(ctx context.Context, args map[string]any) (map[string]any, error) {
	city := strings.ToLower(stringArg(args, "city"))
	month, ok := parseMonth(stringArg(args, "month"))
	if !ok {
		return nil, argumentError(FindEventsTool, "Invalid month provided.")
	}

	prev, next := prevMonth(month), nextMonth(month)
	inWindow := func(m time.Month) bool { return m == prev || m == month || m == next }

	now := f.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	matches := []map[string]any{}
	for _, name := range f.cities {
		if city != "" && !strings.Contains(strings.ToLower(name), city) {
			continue
		}
		for _, e := range f.events[name] {
			from, _ := time.Parse(dateLayout, e.DateFrom)
			to, _ := time.Parse(dateLayout, e.DateTo)
			if from.Before(today) {
				years := today.Year() + 1 - from.Year()
				from = from.AddDate(years, 0, 0)
				to = to.AddDate(years, 0, 0)
			}
			if !inWindow(from.Month()) && !inWindow(to.Month()) {
				continue
			}

			label := "next month"
			switch {
			case from.Month() == month || to.Month() == month:
				label = "requested month"
			case from.Month() == prev || to.Month() == prev:
				label = "previous month"
			}

			matches = append(matches, map[string]any{
				"city":        name,
				"eventName":   e.EventName,
				"dateFrom":    from.Format(dateLayout),
				"dateTo":      to.Format(dateLayout),
				"description": e.Description,
				"month":       label,
			})
		}
	}

	return map[string]any{
		"note": fmt.Sprintf("Returning events from %s plus one month either side (i.e., %s, %s, %s).",
			month, prev, month, next),
		"events": matches,
	}, nil
}
