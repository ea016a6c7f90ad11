package domain

import "time"

// Window is the interval against which monthly grants are counted.
type Window struct {
	Start time.Time
	End   time.Time
}

// CalendarCycleStart returns midnight on the first day of now's month.
func CalendarCycleStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// CycleStart returns the start of the billing cycle anchored on
// anniversaryDay. In months shorter than anniversaryDay the anchor falls on
// the month's last day. If this month's anchor is still ahead of now, the
// cycle began at the previous month's anchor.
func CycleStart(anniversaryDay int, now time.Time) time.Time {
	if anniversaryDay < 1 {
		anniversaryDay = 1
	}
	start := anchorIn(now.Year(), now.Month(), anniversaryDay, now.Location())
	if start.After(now) {
		prev := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, now.Location())
		start = anchorIn(prev.Year(), prev.Month(), anniversaryDay, now.Location())
	}
	return start
}

func anchorIn(year int, month time.Month, day int, loc *time.Location) time.Time {
	if last := daysIn(year, month, loc); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// CycleWindow returns the window that applies to member on plan at now.
// Free plans, and members without an enrollment date, use the calendar month.
func CycleWindow(plan MembershipPlan, member Member, now time.Time) Window {
	if plan.IsFree() || member.EnrollmentStartDate.IsZero() {
		return Window{Start: CalendarCycleStart(now), End: now}
	}
	day := member.EnrollmentStartDate.In(now.Location()).Day()
	return Window{Start: CycleStart(day, now), End: now}
}
