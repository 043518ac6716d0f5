package datenorm

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Timestamp is the structured {seconds, nanoseconds} shape exported by document stores.
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int64 `json:"nanoseconds"`
}

func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, t.Nanoseconds)
}

// Window is a closed instant range covering one or more business days.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(w.From) && !t.After(w.To)
}

// Calendar anchors day arithmetic and naive date strings to the business timezone.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	DateLayout,
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"2006.01.02",
	"2006. 1. 2.",
}

// Parse converts a string, time.Time, structured timestamp or epoch-millis
// number into an instant in the business timezone. ok is false for anything
// it cannot read.
func (c Calendar) Parse(value any) (time.Time, bool) {
	loc := c.Location()
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.In(loc), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return c.Parse(*v)
	case Timestamp:
		return v.Time().In(loc), true
	case *Timestamp:
		if v == nil {
			return time.Time{}, false
		}
		return v.Time().In(loc), true
	case map[string]any:
		return c.parseObject(v)
	case string:
		return c.parseString(v)
	case json.Number:
		millis, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return c.fromMillis(millis)
	case float64:
		return c.fromMillis(v)
	case int64:
		return c.fromMillis(float64(v))
	case int:
		return c.fromMillis(float64(v))
	default:
		return time.Time{}, false
	}
}

func (c Calendar) parseObject(obj map[string]any) (time.Time, bool) {
	seconds, ok := numberField(obj, "seconds", "_seconds")
	if !ok {
		return time.Time{}, false
	}
	nanos, _ := numberField(obj, "nanoseconds", "_nanoseconds")
	return time.Unix(int64(seconds), int64(nanos)).In(c.Location()), true
}

func numberField(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch n := obj[key].(type) {
		case float64:
			return n, true
		case int64:
			return float64(n), true
		case int:
			return float64(n), true
		case json.Number:
			f, err := n.Float64()
			if err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func (c Calendar) fromMillis(millis float64) (time.Time, bool) {
	if millis <= 0 || math.IsNaN(millis) || math.IsInf(millis, 0) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(millis)).In(c.Location()), true
}

func (c Calendar) parseString(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	// Browser Date.toString() appends a zone name in parentheses.
	if idx := strings.Index(s, " ("); idx > 0 && strings.HasSuffix(s, ")") {
		s = s[:idx]
	}
	loc := c.Location()
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDay reads a YYYY-MM-DD calendar day.
func (c Calendar) ParseDay(raw string) (time.Time, bool) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(raw), c.Location())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c Calendar) StartOfDay(t time.Time) time.Time {
	local := t.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location())
}

func (c Calendar) EndOfDay(t time.Time) time.Time {
	return c.AddDays(c.StartOfDay(t), 1).Add(-time.Nanosecond)
}

func (c Calendar) DayWindow(t time.Time) Window {
	return Window{From: c.StartOfDay(t), To: c.EndOfDay(t)}
}

// RangeWindow spans from the start of the first day to the end of the last.
func (c Calendar) RangeWindow(first time.Time, last time.Time) Window {
	return Window{From: c.StartOfDay(first), To: c.EndOfDay(last)}
}

func (c Calendar) AddDays(day time.Time, n int) time.Time {
	local := day.In(c.Location())
	return time.Date(local.Year(), local.Month(), local.Day()+n, 0, 0, 0, 0, c.Location())
}

// DayKey formats the business day of t; zero instants yield "".
func (c Calendar) DayKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(c.Location()).Format(DateLayout)
}

func (c Calendar) SameDay(a time.Time, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	return c.DayKey(a) == c.DayKey(b)
}

// DaysBetween counts calendar days from a to b in the business timezone.
func (c Calendar) DaysBetween(a time.Time, b time.Time) int {
	la := a.In(c.Location())
	lb := b.In(c.Location())
	da := time.Date(la.Year(), la.Month(), la.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(lb.Year(), lb.Month(), lb.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// DateOf rebuilds a DATE column value (midnight UTC from the driver) as a business day.
func (c Calendar) DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.Location())
}
