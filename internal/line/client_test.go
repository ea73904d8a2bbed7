package line

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cvn-go/internal/config"
	"cvn-go/internal/tracker"
)

func notice(courseID, assignmentID string, u tracker.Urgency) tracker.Notice {
	return tracker.Notice{
		CourseID:       courseID,
		CourseName:     "Course " + courseID,
		AssignmentID:   assignmentID,
		AssignmentName: "Assignment " + assignmentID,
		Urgency:        u,
		DueLabel:       "05 Sep 2025 at 23:59",
		TimeLeft:       tracker.TimeLeft{Label: "2 days", Seconds: 172800, Known: true},
		DetailURL:      fmt.Sprintf("https://app.example/course/%s/assignments/%s", courseID, assignmentID),
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.LineConfig{
		Endpoint:       server.URL,
		AccessToken:    "channel-token",
		TimeoutSeconds: 5,
	}, tracker.NopLogger{})
}

func TestPushChunking(t *testing.T) {
	var requests []pushRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer channel-token" {
			t.Errorf("got Authorization %q", got)
		}
		var req pushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding push request: %v", err)
		}
		requests = append(requests, req)
		fmt.Fprint(w, "{}")
	})

	// 12 courses with one assignment each → 12 bubbles → chunks of 5, 5, 2
	var notices []tracker.Notice
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("c%02d", i)
		notices = append(notices, notice(id, "a"+id, tracker.NotSubmittedNormal))
	}

	if err := client.Push(context.Background(), "U123", notices); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if len(requests) != 3 {
		t.Fatalf("got %d requests, want 3", len(requests))
	}
	wantSizes := []int{5, 5, 2}
	for i, want := range wantSizes {
		if len(requests[i].Messages) != want {
			t.Errorf("request %d: got %d messages, want %d", i, len(requests[i].Messages), want)
		}
		if requests[i].To != "U123" {
			t.Errorf("request %d: got recipient %q, want U123", i, requests[i].To)
		}
	}
}

func TestPushGroupsByCourse(t *testing.T) {
	var req pushRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&req)
		fmt.Fprint(w, "{}")
	})

	notices := []tracker.Notice{
		notice("math", "a1", tracker.NotSubmittedCritical),
		notice("phys", "b1", tracker.NotSubmittedNormal),
		notice("math", "a2", tracker.SubmittedOnTime),
	}

	if err := client.Push(context.Background(), "U123", notices); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	if len(req.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (one per course)", len(req.Messages))
	}
	if req.Messages[0].AltText != "Course: Course math - Assignments: 2" {
		t.Errorf("got alt text %q", req.Messages[0].AltText)
	}
	if req.Messages[1].AltText != "Course: Course phys - Assignments: 1" {
		t.Errorf("got alt text %q", req.Messages[1].AltText)
	}
	if req.Messages[0].Type != "flex" {
		t.Errorf("got message type %q, want flex", req.Messages[0].Type)
	}
}

func TestPushEmptyBatch(t *testing.T) {
	called := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	if err := client.Push(context.Background(), "U123", nil); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if called {
		t.Errorf("empty batch reached the push endpoint")
	}
}

func TestPushRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"message":"monthly limit"}`)
	})

	err := client.Push(context.Background(), "U123",
		[]tracker.Notice{notice("c1", "a1", tracker.NotSubmittedWarning)})

	var dispatchErr *tracker.DispatchError
	if !errors.As(err, &dispatchErr) {
		t.Fatalf("got error %v, want DispatchError", err)
	}
	if dispatchErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("got status %d, want 429", dispatchErr.StatusCode)
	}
	if dispatchErr.RecipientID != "U123" {
		t.Errorf("got recipient %q, want U123", dispatchErr.RecipientID)
	}
}

func TestStyleFor(t *testing.T) {
	tests := []struct {
		urgency    tracker.Urgency
		wantText   string
		wantBG     string
		wantWeight string
	}{
		{tracker.SubmittedOnTime, "Submitted", "#22c55e", "regular"},
		{tracker.SubmittedOverdue, "Submitted", "#22c55e", "bold"},
		{tracker.NotSubmittedNormal, "Not submitted", "#94a3b8", "regular"},
		{tracker.NotSubmittedWarning, "Not submitted", "#fab002", "bold"},
		{tracker.NotSubmittedCritical, "Not submitted", "#ef4444", "bold"},
		{tracker.NotSubmittedOverdue, "Not submitted", "#574353", "bold"},
		{tracker.Urgency("unknown"), "Not submitted", "#94a3b8", "regular"},
	}

	for _, tt := range tests {
		t.Run(string(tt.urgency), func(t *testing.T) {
			s := styleFor(tt.urgency)
			if s.StatusText != tt.wantText {
				t.Errorf("got status text %q, want %q", s.StatusText, tt.wantText)
			}
			if s.StatusBGColor != tt.wantBG {
				t.Errorf("got background %q, want %q", s.StatusBGColor, tt.wantBG)
			}
			if s.TimeLeftWeight != tt.wantWeight {
				t.Errorf("got weight %q, want %q", s.TimeLeftWeight, tt.wantWeight)
			}
		})
	}
}
