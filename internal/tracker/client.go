package tracker

import (
	"context"

	"cvn-go/internal/model"
)

// Credentials are the decrypted remote-site username and password.
// They exist in memory only for the duration of one user's sync.
type Credentials struct {
	Username string
	Password string
}

// CourseClient fetches one user's course and assignment data from the
// remote service. Implementations perform the full login handshake per
// call with session state private to that call, so concurrent calls for
// different users are safe.
type CourseClient interface {
	FetchAssignments(ctx context.Context, creds Credentials, sem Semester) ([]model.Course, error)
}
