package datenorm

import (
	"encoding/json"
	"testing"
	"time"
)

var seoul = time.FixedZone("KST", 9*60*60)

func TestParseAcceptsKnownShapes(t *testing.T) {
	cal := NewCalendar(seoul)
	want := time.Date(2024, 1, 15, 10, 0, 0, 0, seoul)

	cases := map[string]any{
		"rfc3339 utc":      "2024-01-15T01:00:00Z",
		"rfc3339 offset":   "2024-01-15T10:00:00+09:00",
		"naive iso":        "2024-01-15T10:00:00",
		"naive space":      "2024-01-15 10:00",
		"browser string":   "Mon Jan 15 2024 10:00:00 GMT+0900 (한국 표준시)",
		"time value":       want.UTC(),
		"structured":       Timestamp{Seconds: want.Unix()},
		"structured map":   map[string]any{"seconds": float64(want.Unix()), "nanoseconds": float64(0)},
		"underscored map":  map[string]any{"_seconds": float64(want.Unix()), "_nanoseconds": float64(0)},
		"epoch millis":     float64(want.UnixMilli()),
		"json number":      json.Number("1705280400000"),
		"epoch millis int": want.UnixMilli(),
	}

	for name, value := range cases {
		got, ok := cal.Parse(value)
		if !ok {
			t.Fatalf("%s: expected %v to parse", name, value)
		}
		if !got.Equal(want) {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
		if got.Location() != seoul {
			t.Fatalf("%s: expected business timezone, got %s", name, got.Location())
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	cal := NewCalendar(seoul)
	for _, value := range []any{nil, "", "   ", "not a date", "2024-13-45", float64(0), -5, time.Time{}, map[string]any{"nanoseconds": 3}, []int{1}} {
		if got, ok := cal.Parse(value); ok {
			t.Fatalf("expected %#v to be rejected, got %s", value, got)
		}
	}
}

func TestDateOnlyStringIsLocalMidnight(t *testing.T) {
	cal := NewCalendar(seoul)
	got, ok := cal.Parse("2024-01-15")
	if !ok {
		t.Fatalf("expected date-only string to parse")
	}
	if !got.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, seoul)) {
		t.Fatalf("unexpected instant %s", got)
	}
}

func TestDayWindowIsClosedAndContiguous(t *testing.T) {
	cal := NewCalendar(seoul)
	w := cal.DayWindow(time.Date(2024, 1, 15, 13, 0, 0, 0, seoul))

	if !w.Contains(w.From) || !w.Contains(w.To) {
		t.Fatalf("window must include both ends: %+v", w)
	}
	next := cal.DayWindow(w.To.Add(time.Nanosecond))
	if !next.From.Equal(w.To.Add(time.Nanosecond)) {
		t.Fatalf("expected next window to start right after %s, got %s", w.To, next.From)
	}
	if w.Contains(time.Time{}) {
		t.Fatalf("zero instant must never fall in a window")
	}
}

func TestDayKeyUsesBusinessTimezone(t *testing.T) {
	cal := NewCalendar(seoul)
	// 2024-01-14T16:00Z is already the 15th in Seoul.
	if got := cal.DayKey(time.Date(2024, 1, 14, 16, 0, 0, 0, time.UTC)); got != "2024-01-15" {
		t.Fatalf("expected 2024-01-15, got %q", got)
	}
	if got := cal.DayKey(time.Time{}); got != "" {
		t.Fatalf("expected empty key for zero instant, got %q", got)
	}
}

func TestDaysBetween(t *testing.T) {
	cal := NewCalendar(seoul)
	anchor := time.Date(2024, 2, 1, 0, 0, 0, 0, seoul)

	if got := cal.DaysBetween(anchor, time.Date(2024, 3, 1, 0, 0, 0, 0, seoul)); got != 29 {
		t.Fatalf("expected 29 days across leap February, got %d", got)
	}
	if got := cal.DaysBetween(anchor, cal.AddDays(anchor, 59)); got != 59 {
		t.Fatalf("expected 59, got %d", got)
	}
	if got := cal.DaysBetween(anchor, anchor.Add(23*time.Hour)); got != 0 {
		t.Fatalf("expected same day, got %d", got)
	}
}

func TestDaysBetweenAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	cal := NewCalendar(ny)
	from := time.Date(2024, 3, 9, 0, 0, 0, 0, ny)
	if got := cal.DaysBetween(from, cal.AddDays(from, 2)); got != 2 {
		t.Fatalf("expected 2 days across spring-forward, got %d", got)
	}
	w := cal.DayWindow(time.Date(2024, 3, 10, 12, 0, 0, 0, ny))
	if got := w.To.Sub(w.From) + time.Nanosecond; got != 23*time.Hour {
		t.Fatalf("expected a 23h day, got %s", got)
	}
}

func TestDateOfKeepsCalendarDay(t *testing.T) {
	cal := NewCalendar(seoul)
	got := cal.DateOf(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	if cal.DayKey(got) != "2024-01-15" {
		t.Fatalf("expected 2024-01-15, got %s", cal.DayKey(got))
	}
}
