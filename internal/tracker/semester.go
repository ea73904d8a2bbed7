package tracker

import "time"

// Semester identifies an academic term on the remote service.
// Term 1 runs August through December of the academic year; term 2 runs
// January through May of the following calendar year; term 3 is the
// June–July summer session.
type Semester struct {
	Term int
	Year int // Academic year, not always the calendar year
}

// CurrentSemester derives the semester the given instant falls in.
func CurrentSemester(now time.Time) Semester {
	month := now.Month()
	year := now.Year()

	switch {
	case month >= time.August:
		return Semester{Term: 1, Year: year}
	case month <= time.May:
		return Semester{Term: 2, Year: year - 1}
	default: // June or July
		return Semester{Term: 3, Year: year - 1}
	}
}
