package courseville

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cvn-go/internal/config"
	"cvn-go/internal/model"
	"cvn-go/internal/tracker"
)

// assignmentQuery mirrors the query the site's own frontend issues for the
// assignment summary page.
const assignmentQuery = `query AssignmentSummaryPageQuery($semester: String! $year: String! $filter: AssignmentFilter!) {...AssignmentSummaryFragment_bZQ9B} fragment AssignmentSummaryFragment_bZQ9B on Query { me {myCoursesBySemester(semester: $semester, year: $year) { student { courseID title courseNumber courseYear thumbnail semester assignments(filter: $filter) {courseID id title type status outDate dueDate}}}}}`

// Client fetches assignment data from the remote service. It implements
// tracker.CourseClient by running the full login handshake with a private
// session per call, so calls for different users may run concurrently.
type Client struct {
	cfg    config.CoursevilleConfig
	clock  tracker.Clock
	logger tracker.Logger
}

func NewClient(cfg config.CoursevilleConfig, clock tracker.Clock, logger tracker.Logger) *Client {
	return &Client{cfg: cfg, clock: clock, logger: logger}
}

type queryPayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type queryResponse struct {
	Data struct {
		Me struct {
			MyCoursesBySemester struct {
				Student []courseData `json:"student"`
			} `json:"myCoursesBySemester"`
		} `json:"me"`
	} `json:"data"`
}

type courseData struct {
	CourseID     string           `json:"courseID"`
	Title        string           `json:"title"`
	CourseNumber string           `json:"courseNumber"`
	Thumbnail    string           `json:"thumbnail"`
	Assignments  []assignmentData `json:"assignments"`
}

type assignmentData struct {
	CourseID string `json:"courseID"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	DueDate  string `json:"dueDate"`
}

// FetchAssignments logs in as the given user and queries that user's
// courses for the semester.
func (c *Client) FetchAssignments(ctx context.Context, creds tracker.Credentials, sem tracker.Semester) ([]model.Course, error) {
	session, err := NewSession(time.Duration(c.cfg.TimeoutSeconds) * time.Second)
	if err != nil {
		return nil, err
	}

	auth := NewAuthenticator(session, c.cfg, c.clock, c.logger)
	token, err := auth.Login(ctx, creds)
	if err != nil {
		return nil, err
	}

	payload := queryPayload{
		Query: assignmentQuery,
		Variables: map[string]any{
			"semester": sem.Term,
			"year":     sem.Year,
			"filter":   "ALL",
		},
	}

	resp, err := session.PostJSON(ctx, c.cfg.APIBaseURL+"/query", payload, token.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, &tracker.QueryError{StatusCode: resp.StatusCode, Body: bodyPrefix(resp.Body)}
	}

	var decoded queryResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding assignment response: %w", err)
	}

	return c.mapCourses(decoded.Data.Me.MyCoursesBySemester.Student, sem), nil
}

func (c *Client) mapCourses(data []courseData, sem tracker.Semester) []model.Course {
	semester := fmt.Sprintf("%d/%d", sem.Term, sem.Year)

	courses := make([]model.Course, 0, len(data))
	for _, cd := range data {
		course := model.Course{
			ID:        cd.CourseID,
			Name:      cd.Title,
			Number:    cd.CourseNumber,
			Thumbnail: cd.Thumbnail,
			Semester:  semester,
		}
		for _, ad := range cd.Assignments {
			a := model.Assignment{
				ID:       ad.ID,
				CourseID: cd.CourseID,
				Name:     ad.Title,
				Type:     ad.Type,
				Status:   ad.Status,
			}
			if due, ok := c.parseDue(ad.DueDate); ok {
				a.DueAt = &due
			}
			course.Assignments = append(course.Assignments, a)
		}
		courses = append(courses, course)
	}
	return courses
}

// parseDue parses the remote due date. Missing dates are normal (the
// service reports them as null or empty); malformed ones are logged and
// treated as missing rather than failing the whole sync.
func (c *Client) parseDue(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	due, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.logger.Warn("unparseable due date from remote service", "value", raw)
		return time.Time{}, false
	}
	return due.UTC(), true
}

const maxErrorBody = 512

func bodyPrefix(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}

// Compile-time check that Client implements tracker.CourseClient
var _ tracker.CourseClient = (*Client)(nil)
