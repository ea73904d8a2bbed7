package tracker

import (
	"time"

	"cvn-go/internal/model"
)

// Database provides storage for users, courses, assignments and the
// per-user notification flags. Implementations must keep flag updates
// monotonic: a notify flag that is already set must never be cleared by
// UpdateNotifyFlags.
type Database interface {
	// User operations

	// ListUsers returns all registered users.
	ListUsers() ([]model.User, error)

	// UpsertUser creates or replaces a user row keyed by user ID.
	UpsertUser(u model.User) error

	// DeleteUser removes a user and their assignment links.
	DeleteUser(userID string) error

	// Sync operations

	// SyncCourses persists one user's fetched course list in a single
	// transaction: upserts every course and assignment, and creates the
	// (user, assignment) link with fresh notify flags where missing.
	SyncCourses(userID string, courses []model.Course) error

	// Notification operations

	// DueLinks returns (user, assignment) pairs whose due date falls in
	// [from, to] and which still have at least one unset notify flag.
	DueLinks(from, to time.Time) ([]model.DueLink, error)

	// OpenAssignments returns a user's assignments due in [from, to],
	// joined with course data, ordered by course then due date.
	OpenAssignments(userID string, from, to time.Time) ([]model.OpenAssignment, error)

	// UpdateNotifyFlags ORs the given flag values into the stored ones.
	// Returns whether a row was updated.
	UpdateNotifyFlags(userID, assignmentID string, notified3Day, notified1Day bool) (bool, error)

	// Run history

	// CreateBatchRun records the start of a mutating command.
	CreateBatchRun(operation string) (*model.BatchRun, error)

	// FinishBatchRun stamps the end of a run with its final status.
	FinishBatchRun(id int64, status string) error

	// ListBatchRuns returns the most recent runs, newest first.
	ListBatchRuns(limit int) ([]*model.BatchRun, error)

	// Close closes the underlying store.
	Close() error
}
