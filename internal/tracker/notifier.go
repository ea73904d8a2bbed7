package tracker

import "context"

// Notice carries the structured fields the rendering collaborator needs to
// produce one assignment notification. The core never emits style
// constants; styling is derived from Urgency by the renderer.
type Notice struct {
	CourseID       string
	CourseName     string
	AssignmentID   string
	AssignmentName string
	AssignmentType string
	Urgency        Urgency
	DueLabel       string
	TimeLeft       TimeLeft
	DetailURL      string
}

// Notifier delivers a batch of notices to a chat recipient. An
// implementation may split the batch into several requests to honor
// provider limits; it must return an error unless every part was accepted.
type Notifier interface {
	Push(ctx context.Context, recipientID string, notices []Notice) error
}
