package schedule

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start LocalTime
	End   LocalTime
}

// Busy is anything occupying the calendar. ok is false when its bounds are
// missing or unusable; such entries never conflict.
type Busy interface {
	Bounds() (start, end LocalTime, ok bool)
}

// Overlaps reports whether a and b share at least one instant.
func Overlaps(a, b Interval) bool {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	return start.Before(end)
}

func overlapsBusy[B Busy](iv Interval, b B) bool {
	start, end, ok := b.Bounds()
	if !ok || !start.Before(end) {
		return false
	}
	return Overlaps(iv, Interval{Start: start, End: end})
}

// Conflicts reports whether any busy entry overlaps slot.
func Conflicts[B Busy](slot TimeSlot, busy []B) bool {
	iv := slot.Interval()
	for _, b := range busy {
		if overlapsBusy(iv, b) {
			return true
		}
	}
	return false
}

// Available keeps the slots that no busy entry overlaps, in their original order.
func Available[B Busy](slots []TimeSlot, busy []B) []TimeSlot {
	out := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		if !Conflicts(s, busy) {
			out = append(out, s)
		}
	}
	return out
}
