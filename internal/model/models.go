package model

import "time"

// User is a registered account whose assignments are tracked.
// Credentials is an opaque encrypted blob holding the remote-site
// username and password; only the credential cipher can open it.
type User struct {
	ID          string // Remote-site user identifier
	DisplayName string
	Credentials []byte // Encrypted credential blob, never logged
	RecipientID string // Chat recipient (LINE user ID) for notifications
}

// Course represents a course as reported by the remote service.
// Identity is the remote course ID; courses are upserted, never deleted.
type Course struct {
	ID          string
	Name        string
	Number      string // Faculty course number, e.g. "2110316"
	Thumbnail   string // Thumbnail URI from the remote service
	Semester    string
	Assignments []Assignment // Populated by the query client, not by the store
}

// Assignment represents a single assignment within a course.
// Name, Type and DueAt may change between syncs; last write wins.
// Status is per-user: assignments are always fetched with one user's
// credentials, and the status lands on that user's link row.
type Assignment struct {
	ID       string
	CourseID string
	Name     string
	Type     string
	Status   string     // Upstream submission status, e.g. SUBMITTED / OVERDUE / ASSIGNED
	DueAt    *time.Time // nil when the remote service reports no due date
}

// DueLink is a (user, assignment) pair whose due date falls inside the
// notification window and which still has an unset notify flag.
type DueLink struct {
	UserID       string
	RecipientID  string
	AssignmentID string
	DueAt        time.Time
	Notified3Day bool
	Notified1Day bool
}

// OpenAssignment is a denormalized row joining an assignment, its course
// and the per-user status, used to build notification content.
type OpenAssignment struct {
	AssignmentID string
	Name         string
	Type         string
	DueAt        *time.Time
	Status       string // Free-form upstream status, e.g. SUBMITTED / OVERDUE / ASSIGNED
	CourseID     string
	CourseName   string
	CourseNumber string
	Thumbnail    string
	Semester     string
}

// BatchRun records one invocation of a mutating CLI command.
type BatchRun struct {
	ID         int64
	Operation  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "running", "success" or "error"
}
