// Package line delivers assignment notices to LINE chat recipients as
// flex messages via the Messaging API push endpoint.
package line

import (
	"fmt"

	"cvn-go/internal/tracker"
)

// bubbleStyle holds the per-urgency presentation: the status badge text
// and color plus how loudly the time-left line is rendered.
type bubbleStyle struct {
	StatusText     string
	StatusBGColor  string
	TimeLeftColor  string
	TimeLeftWeight string
	TimeLeftSize   string
}

var urgencyStyles = map[tracker.Urgency]bubbleStyle{
	tracker.SubmittedOnTime: {
		StatusText:     "Submitted",
		StatusBGColor:  "#22c55e",
		TimeLeftColor:  "#2d3138",
		TimeLeftWeight: "regular",
		TimeLeftSize:   "md",
	},
	tracker.SubmittedOverdue: {
		StatusText:     "Submitted",
		StatusBGColor:  "#22c55e",
		TimeLeftColor:  "#750060",
		TimeLeftWeight: "bold",
		TimeLeftSize:   "lg",
	},
	tracker.NotSubmittedNormal: {
		StatusText:     "Not submitted",
		StatusBGColor:  "#94a3b8",
		TimeLeftColor:  "#2d3138",
		TimeLeftWeight: "regular",
		TimeLeftSize:   "md",
	},
	tracker.NotSubmittedWarning: {
		StatusText:     "Not submitted",
		StatusBGColor:  "#fab002",
		TimeLeftColor:  "#fab002",
		TimeLeftWeight: "bold",
		TimeLeftSize:   "xl",
	},
	tracker.NotSubmittedCritical: {
		StatusText:     "Not submitted",
		StatusBGColor:  "#ef4444",
		TimeLeftColor:  "#ef4444",
		TimeLeftWeight: "bold",
		TimeLeftSize:   "3xl",
	},
	tracker.NotSubmittedOverdue: {
		StatusText:     "Not submitted",
		StatusBGColor:  "#574353",
		TimeLeftColor:  "#750060",
		TimeLeftWeight: "bold",
		TimeLeftSize:   "lg",
	},
}

// styleFor maps an urgency to its style, defaulting to the normal
// presentation for values the table does not know.
func styleFor(u tracker.Urgency) bubbleStyle {
	if s, ok := urgencyStyles[u]; ok {
		return s
	}
	return urgencyStyles[tracker.NotSubmittedNormal]
}

// flexMessage is one entry in the push request's messages array.
type flexMessage struct {
	Type     string         `json:"type"`
	AltText  string         `json:"altText"`
	Contents map[string]any `json:"contents"`
}

// courseBubble groups the notices that belong to one course.
type courseBubble struct {
	CourseID   string
	CourseName string
	Notices    []tracker.Notice
}

// groupByCourse splits a notice batch into per-course groups, preserving
// the order the notices arrived in.
func groupByCourse(notices []tracker.Notice) []courseBubble {
	var order []string
	byCourse := make(map[string]*courseBubble)

	for _, n := range notices {
		b, ok := byCourse[n.CourseID]
		if !ok {
			b = &courseBubble{CourseID: n.CourseID, CourseName: n.CourseName}
			byCourse[n.CourseID] = b
			order = append(order, n.CourseID)
		}
		b.Notices = append(b.Notices, n)
	}

	bubbles := make([]courseBubble, 0, len(order))
	for _, id := range order {
		bubbles = append(bubbles, *byCourse[id])
	}
	return bubbles
}

// renderMessage builds one flex message: a bubble headed by the course
// title with one body block per assignment notice.
func renderMessage(b courseBubble) flexMessage {
	contents := make([]any, 0, len(b.Notices))
	for _, n := range b.Notices {
		contents = append(contents, renderAssignmentBlock(n))
	}

	bubble := map[string]any{
		"type": "bubble",
		"header": map[string]any{
			"type":            "box",
			"layout":          "vertical",
			"backgroundColor": "#1e293b",
			"paddingAll":      "lg",
			"contents": []any{
				map[string]any{
					"type":   "text",
					"text":   b.CourseName,
					"weight": "bold",
					"size":   "lg",
					"color":  "#ffffff",
					"wrap":   true,
				},
			},
		},
		"body": map[string]any{
			"type":     "box",
			"layout":   "vertical",
			"spacing":  "lg",
			"contents": contents,
		},
	}

	return flexMessage{
		Type:     "flex",
		AltText:  fmt.Sprintf("Course: %s - Assignments: %d", b.CourseName, len(b.Notices)),
		Contents: bubble,
	}
}

// renderAssignmentBlock builds the body section for a single assignment:
// name with a status badge, due date and a styled time-left line, and a
// link button to the assignment page.
func renderAssignmentBlock(n tracker.Notice) map[string]any {
	style := styleFor(n.Urgency)

	return map[string]any{
		"type":    "box",
		"layout":  "vertical",
		"spacing": "sm",
		"contents": []any{
			map[string]any{
				"type":   "box",
				"layout": "horizontal",
				"contents": []any{
					map[string]any{
						"type":   "text",
						"text":   n.AssignmentName,
						"weight": "bold",
						"size":   "md",
						"wrap":   true,
						"flex":   3,
					},
					map[string]any{
						"type":            "box",
						"layout":          "vertical",
						"backgroundColor": style.StatusBGColor,
						"cornerRadius":    "md",
						"paddingAll":      "xs",
						"flex":            2,
						"contents": []any{
							map[string]any{
								"type":  "text",
								"text":  style.StatusText,
								"size":  "xs",
								"color": "#ffffff",
								"align": "center",
							},
						},
					},
				},
			},
			map[string]any{
				"type":  "text",
				"text":  "Due: " + n.DueLabel,
				"size":  "sm",
				"color": "#64748b",
			},
			map[string]any{
				"type":   "text",
				"text":   "Time left: " + n.TimeLeft.Label,
				"size":   style.TimeLeftSize,
				"weight": style.TimeLeftWeight,
				"color":  style.TimeLeftColor,
			},
			map[string]any{
				"type":  "button",
				"style": "link",
				"action": map[string]any{
					"type":  "uri",
					"label": "Open assignment",
					"uri":   n.DetailURL,
				},
			},
		},
	}
}
