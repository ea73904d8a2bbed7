package tracker

import (
	"fmt"
	"time"
)

// Urgency describes how a notification for an assignment should be worded
// and styled. The tracker core only ever emits the enum value; mapping an
// urgency to colors or fonts belongs to the rendering collaborator.
type Urgency string

const (
	SubmittedOnTime      Urgency = "submitted_on_time"
	SubmittedOverdue     Urgency = "submitted_overdue"
	NotSubmittedNormal   Urgency = "not_submitted_normal"
	NotSubmittedWarning  Urgency = "not_submitted_warning"
	NotSubmittedCritical Urgency = "not_submitted_critical"
	NotSubmittedOverdue  Urgency = "not_submitted_overdue"
)

// Upstream status strings with dedicated classification rules.
const (
	StatusSubmitted = "SUBMITTED"
	StatusOverdue   = "OVERDUE"
)

// Thresholds holds the urgency cutoffs in seconds remaining.
// An assignment is critical within Critical seconds of its due date and a
// warning within Warning seconds.
type Thresholds struct {
	Critical int64
	Warning  int64
}

// DefaultThresholds are the stock cutoffs: critical inside 25 hours,
// warning inside roughly three days.
var DefaultThresholds = Thresholds{Critical: 90000, Warning: 265000}

// Classify maps an upstream status and the seconds remaining until the due
// date to an Urgency using DefaultThresholds. It is total: every input
// yields exactly one state.
func Classify(status string, secondsLeft int64) Urgency {
	return DefaultThresholds.Classify(status, secondsLeft)
}

// Classify applies the threshold cutoffs. The checks overlap, so order
// matters: status strings win over time, overdue wins over critical,
// critical over warning.
func (t Thresholds) Classify(status string, secondsLeft int64) Urgency {
	switch {
	case status == StatusSubmitted:
		return SubmittedOnTime
	case status == StatusOverdue:
		return NotSubmittedOverdue
	case secondsLeft <= 0:
		return NotSubmittedOverdue
	case secondsLeft <= t.Critical:
		return NotSubmittedCritical
	case secondsLeft <= t.Warning:
		return NotSubmittedWarning
	default:
		return NotSubmittedNormal
	}
}

// TimeLeft describes the remaining time until a due date.
// Known is false when the due date is missing or unparseable, in which case
// Label is "N/A" and Seconds is meaningless.
type TimeLeft struct {
	Label   string
	Seconds int64
	Known   bool
}

// TimeRemaining computes the time left until due, formatted with the
// coarsest applicable unit. A nil due date yields {"N/A", 0, false}; a due
// date in the past yields {"Overdue", -1, true}.
func TimeRemaining(due *time.Time, now time.Time) TimeLeft {
	if due == nil {
		return TimeLeft{Label: "N/A"}
	}

	diff := due.Sub(now)
	if diff < 0 {
		return TimeLeft{Label: "Overdue", Seconds: -1, Known: true}
	}

	total := int64(diff / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60

	var label string
	switch {
	case total < 60:
		label = "Less than a minute"
	case days > 2:
		label = plural(days, "day")
	case days > 0:
		label = plural(days, "day") + " " + plural(hours, "hour")
	case hours > 6:
		label = plural(hours, "hour")
	case hours > 0:
		label = plural(hours, "hour") + " " + plural(minutes, "min")
	case minutes > 1:
		label = plural(minutes, "min")
	default:
		label = "less than a minute"
	}

	return TimeLeft{Label: label, Seconds: total, Known: true}
}

// FormatDue renders a due date as "02 Jan 2006 at 15:04" for display.
// A nil due date renders as "N/A".
func FormatDue(due *time.Time) string {
	if due == nil {
		return "N/A"
	}
	return due.Format("02 Jan 2006 at 15:04")
}

func plural(n int64, unit string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss", n, unit)
	}
	return fmt.Sprintf("%d %s", n, unit)
}
