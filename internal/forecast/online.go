package forecast

import "time"

const (
	DefaultActiveStart = 8
	DefaultActiveEnd   = 22
)

// ActiveHours is the recurring daily local-time window [Start:00, End:00)
// during which quota is assumed to be consumed.
type ActiveHours struct {
	Start    int
	End      int
	Location *time.Location
}

func DefaultActiveHours() ActiveHours {
	return ActiveHours{Start: DefaultActiveStart, End: DefaultActiveEnd, Location: time.Local}
}

func (h ActiveHours) location() *time.Location {
	if h.Location == nil {
		return time.Local
	}
	return h.Location
}

// Online returns how much of [start, end) falls inside the active window,
// truncated to whole seconds per calendar day. It returns 0 when end <= start.
func (h ActiveHours) Online(start, end time.Time) time.Duration {
	if !end.After(start) {
		return 0
	}

	loc := h.location()
	startLocal := start.In(loc)
	endLocal := end.In(loc)
	first := civilDate(startLocal)
	last := civilDate(endLocal)

	var total time.Duration
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		open, okOpen := resolveLocal(day, h.Start, loc)
		shut, okShut := resolveLocal(day, h.End, loc)
		if !okOpen || !okShut {
			continue
		}

		segStart, segEnd := open, shut
		if day.Equal(first) && startLocal.After(segStart) {
			segStart = startLocal
		}
		if day.Equal(last) && endLocal.Before(segEnd) {
			segEnd = endLocal
		}
		if segEnd.After(segStart) {
			total += segEnd.Sub(segStart).Truncate(time.Second)
		}
	}

	if total < 0 {
		return 0
	}
	return total
}

// civilDate returns the calendar day of t as midnight UTC, used only for
// day arithmetic and comparison.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// resolveLocal maps a calendar day and hour to an instant in loc. A wall
// clock reading skipped by a DST jump does not exist and reports false; a
// reading repeated by a DST fallback resolves to the earlier instant.
func resolveLocal(day time.Time, hour int, loc *time.Location) (time.Time, bool) {
	y, m, d := day.Date()
	t := time.Date(y, m, d, hour, 0, 0, 0, loc)
	if hour == 24 {
		// 24:00 is the following midnight and always exists as a reading.
		return t, true
	}
	if t.Hour() != hour || t.Day() != d {
		return time.Time{}, false
	}

	_, offset := t.Zone()
	for _, probe := range []time.Time{t.Add(-12 * time.Hour), t.Add(12 * time.Hour)} {
		_, other := probe.Zone()
		if other == offset {
			continue
		}
		alt := t.Add(time.Duration(offset-other) * time.Second)
		if alt.Before(t) && sameWallClock(alt.In(loc), t) {
			t = alt
		}
	}
	return t, true
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() && a.Second() == b.Second()
}
