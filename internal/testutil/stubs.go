package testutil

import (
	"context"
	"sync"

	"cvn-go/internal/encryption"
	"cvn-go/internal/model"
	"cvn-go/internal/tracker"
)

// NewTestCipher creates a deterministic credential cipher for testing.
func NewTestCipher() tracker.CredentialCipher {
	return encryption.NewTestCipher()
}

// ScriptedCourseClient returns canned courses per username and records the
// calls it receives. Safe for concurrent use, since the sync worker pool
// fetches users in parallel.
type ScriptedCourseClient struct {
	mu      sync.Mutex
	Courses map[string][]model.Course // username -> canned response
	Errors  map[string]error          // username -> forced failure
	Calls   []string                  // usernames in call order
}

func NewScriptedCourseClient() *ScriptedCourseClient {
	return &ScriptedCourseClient{
		Courses: make(map[string][]model.Course),
		Errors:  make(map[string]error),
	}
}

func (c *ScriptedCourseClient) FetchAssignments(ctx context.Context, creds tracker.Credentials, sem tracker.Semester) ([]model.Course, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls = append(c.Calls, creds.Username)
	if err := c.Errors[creds.Username]; err != nil {
		return nil, err
	}
	return c.Courses[creds.Username], nil
}

var _ tracker.CourseClient = (*ScriptedCourseClient)(nil)

// RecordingNotifier captures pushed notices per recipient. A non-nil Err
// makes every Push fail without recording, which is how dispatch-failure
// retry behavior gets tested.
type RecordingNotifier struct {
	mu     sync.Mutex
	Err    error
	Pushes []RecordedPush
}

type RecordedPush struct {
	RecipientID string
	Notices     []tracker.Notice
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Push(ctx context.Context, recipientID string, notices []tracker.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Err != nil {
		return n.Err
	}
	n.Pushes = append(n.Pushes, RecordedPush{RecipientID: recipientID, Notices: notices})
	return nil
}

// SetErr switches the notifier into (or out of) failure mode.
func (n *RecordingNotifier) SetErr(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Err = err
}

// PushCount returns the number of successful pushes recorded.
func (n *RecordingNotifier) PushCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Pushes)
}

var _ tracker.Notifier = (*RecordingNotifier)(nil)
