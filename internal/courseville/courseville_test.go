package courseville

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cvn-go/internal/config"
	"cvn-go/internal/tracker"
)

const (
	testClientID    = "raZMrnZyw8hQAoFwjkzMV6hvoqd8bvcD"
	testAuthCode    = "code-42"
	testAccessToken = "access-token-abc"
)

// fakeRemote simulates the remote service end to end: cookie login,
// OAuth code redirect, token exchange and assignment query.
type fakeRemote struct {
	server *httptest.Server

	assetFetches  atomic.Int64
	loginAttempts atomic.Int64

	lastVariables map[string]any

	// Failure switches for the unhappy paths
	omitCSRFToken   bool
	rejectLogin     bool
	noRedirect      bool
	rejectExchange  bool
	queryStatusCode int
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	f := &fakeRemote{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handleDashboard)
	mux.HandleFunc("/api/oauth/authorize", f.handleAuthorize)
	mux.HandleFunc("/api/chulalogin", f.handleLogin)
	mux.HandleFunc("/assets/app.js", f.handleAsset)
	mux.HandleFunc("/auth/login", f.handleExchange)
	mux.HandleFunc("/query", f.handleQuery)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	// The client id cache outlives individual handshakes; reset it so
	// tests do not see each other's ids.
	dropClientIDCache()
	t.Cleanup(dropClientIDCache)

	return f
}

func (f *fakeRemote) config() config.CoursevilleConfig {
	return config.CoursevilleConfig{
		BaseURL:        f.server.URL,
		AppBaseURL:     f.server.URL,
		APIBaseURL:     f.server.URL,
		LoginPath:      "/api/chulalogin",
		AssetPath:      "/assets/app.js",
		TimeoutSeconds: 5,
	}
}

func (f *fakeRemote) loggedIn(r *http.Request) bool {
	c, err := r.Cookie("session")
	return err == nil && c.Value == "valid"
}

func (f *fakeRemote) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if f.loggedIn(r) {
		// The year marker the session check looks for
		fmt.Fprintf(w, "<html><body>Academic year %d</body></html>", time.Now().Year())
		return
	}
	fmt.Fprint(w, "<html><body>Welcome, please log in</body></html>")
}

func (f *fakeRemote) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")

	// The site's own frontend id serves the login page; any other id is
	// an API consumer asking for an authorization code.
	if clientID == "mycourseville.com" {
		if f.omitCSRFToken {
			fmt.Fprint(w, `<html><form></form></html>`)
			return
		}
		fmt.Fprint(w, `<html><form method="post">`+
			`<input type="hidden" name="_token" value="csrf-token-xyz">`+
			`</form></html>`)
		return
	}

	if !f.loggedIn(r) || clientID != testClientID || f.noRedirect {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "cannot authorize")
		return
	}

	redirect := r.URL.Query().Get("redirect_uri")
	http.Redirect(w, r, redirect+"?code="+testAuthCode+"&state=/course", http.StatusFound)
}

func (f *fakeRemote) handleLogin(w http.ResponseWriter, r *http.Request) {
	f.loginAttempts.Add(1)
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if f.rejectLogin || r.PostForm.Get("_token") != "csrf-token-xyz" ||
		r.PostForm.Get("username") == "" || r.PostForm.Get("password") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "session", Value: "valid", Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (f *fakeRemote) handleAsset(w http.ResponseWriter, r *http.Request) {
	f.assetFetches.Add(1)
	fmt.Fprintf(w, `var x=1;const u="https://www.mycourseville.com/api/oauth/authorize?response_type=code&client_id=%s&redirect_uri=y";`, testClientID)
}

func (f *fakeRemote) handleExchange(w http.ResponseWriter, r *http.Request) {
	if f.rejectExchange {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code != testAuthCode {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{
		"access_token":  testAccessToken,
		"refresh_token": "refresh-token-def",
	})
}

func (f *fakeRemote) handleQuery(w http.ResponseWriter, r *http.Request) {
	if f.queryStatusCode != 0 {
		w.WriteHeader(f.queryStatusCode)
		fmt.Fprint(w, "query rejected")
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var payload struct {
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
		f.lastVariables = payload.Variables
	}
	fmt.Fprint(w, `{"data":{"me":{"myCoursesBySemester":{"student":[
		{"courseID":"55555","title":"Software Engineering","courseNumber":"2110423",
		 "thumbnail":"https://cdn.example/55555.png",
		 "assignments":[
			{"courseID":"55555","id":"900001","title":"Project Proposal","type":"group",
			 "status":"ASSIGNED","outDate":"2025-08-20T00:00:00Z","dueDate":"2025-09-05T16:59:00Z"},
			{"courseID":"55555","id":"900002","title":"Reading","type":"individual",
			 "status":"SUBMITTED","outDate":"2025-08-20T00:00:00Z","dueDate":null}
		]}
	]}}}}`)
}

func testCreds() tracker.Credentials {
	return tracker.Credentials{Username: "6530000021", Password: "hunter2"}
}

func TestFetchAssignments(t *testing.T) {
	remote := newFakeRemote(t)
	client := NewClient(remote.config(), tracker.RealClock{}, tracker.NopLogger{})

	courses, err := client.FetchAssignments(context.Background(), testCreds(),
		tracker.Semester{Term: 1, Year: 2025})
	if err != nil {
		t.Fatalf("FetchAssignments() error = %v", err)
	}

	if len(courses) != 1 {
		t.Fatalf("got %d courses, want 1", len(courses))
	}
	c := courses[0]
	if c.ID != "55555" {
		t.Errorf("got course ID %s, want 55555", c.ID)
	}
	if c.Name != "Software Engineering" {
		t.Errorf("got course name %q", c.Name)
	}
	if c.Semester != "1/2025" {
		t.Errorf("got semester %q, want 1/2025", c.Semester)
	}
	if len(c.Assignments) != 2 {
		t.Fatalf("got %d assignments, want 2", len(c.Assignments))
	}

	a := c.Assignments[0]
	if a.ID != "900001" || a.Status != "ASSIGNED" {
		t.Errorf("got assignment %+v", a)
	}
	if a.DueAt == nil {
		t.Fatalf("assignment 900001 has nil due date")
	}
	want := time.Date(2025, 9, 5, 16, 59, 0, 0, time.UTC)
	if !a.DueAt.Equal(want) {
		t.Errorf("got due %v, want %v", a.DueAt, want)
	}

	if c.Assignments[1].DueAt != nil {
		t.Errorf("null dueDate should map to nil, got %v", c.Assignments[1].DueAt)
	}
}

func TestLoginFailures(t *testing.T) {
	t.Run("missing csrf token stops before credential post", func(t *testing.T) {
		remote := newFakeRemote(t)
		remote.omitCSRFToken = true
		client := NewClient(remote.config(), tracker.RealClock{}, tracker.NopLogger{})

		_, err := client.FetchAssignments(context.Background(), testCreds(),
			tracker.Semester{Term: 1, Year: 2025})

		var authErr *tracker.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("got error %v, want AuthError", err)
		}
		if authErr.Step != "csrf-token" {
			t.Errorf("got step %q, want csrf-token", authErr.Step)
		}
		if n := remote.loginAttempts.Load(); n != 0 {
			t.Errorf("credentials were posted %d times despite missing token", n)
		}
	})

	t.Run("rejected credentials", func(t *testing.T) {
		remote := newFakeRemote(t)
		remote.rejectLogin = true
		client := NewClient(remote.config(), tracker.RealClock{}, tracker.NopLogger{})

		_, err := client.FetchAssignments(context.Background(), testCreds(),
			tracker.Semester{Term: 1, Year: 2025})

		var authErr *tracker.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("got error %v, want AuthError", err)
		}
		if authErr.Step != "credentials" {
			t.Errorf("got step %q, want credentials", authErr.Step)
		}

		var statusErr *tracker.HTTPStatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("got error %v, want wrapped HTTPStatusError", err)
		}
		if statusErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("got status %d, want %d", statusErr.StatusCode, http.StatusUnauthorized)
		}
	})

	t.Run("authorize without redirect", func(t *testing.T) {
		remote := newFakeRemote(t)
		remote.noRedirect = true
		client := NewClient(remote.config(), tracker.RealClock{}, tracker.NopLogger{})

		_, err := client.FetchAssignments(context.Background(), testCreds(),
			tracker.Semester{Term: 1, Year: 2025})

		var authErr *tracker.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("got error %v, want AuthError", err)
		}
		if authErr.Step != "authorize" {
			t.Errorf("got step %q, want authorize", authErr.Step)
		}

		var statusErr *tracker.HTTPStatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("got error %v, want wrapped HTTPStatusError", err)
		}
		if statusErr.StatusCode != http.StatusOK {
			t.Errorf("got status %d, want %d", statusErr.StatusCode, http.StatusOK)
		}
	})

	t.Run("token exchange rejected", func(t *testing.T) {
		remote := newFakeRemote(t)
		remote.rejectExchange = true
		client := NewClient(remote.config(), tracker.RealClock{}, tracker.NopLogger{})

		_, err := client.FetchAssignments(context.Background(), testCreds(),
			tracker.Semester{Term: 1, Year: 2025})

		var authErr *tracker.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("got error %v, want AuthError", err)
		}
		if authErr.Step != "token-exchange" {
			t.Errorf("got step %q, want token-exchange", authErr.Step)
		}
	})
}

func TestClientIDMemoization(t *testing.T) {
	remote := newFakeRemote(t)
	client := NewClient(remote.config(), tracker.RealClock{}, tracker.NopLogger{})

	for i := 0; i < 3; i++ {
		_, err := client.FetchAssignments(context.Background(), testCreds(),
			tracker.Semester{Term: 1, Year: 2025})
		if err != nil {
			t.Fatalf("FetchAssignments() #%d error = %v", i+1, err)
		}
	}

	if n := remote.assetFetches.Load(); n != 1 {
		t.Errorf("frontend asset fetched %d times, want 1", n)
	}
}

func TestQueryRejected(t *testing.T) {
	remote := newFakeRemote(t)
	remote.queryStatusCode = http.StatusInternalServerError
	client := NewClient(remote.config(), tracker.RealClock{}, tracker.NopLogger{})

	_, err := client.FetchAssignments(context.Background(), testCreds(),
		tracker.Semester{Term: 1, Year: 2025})

	var queryErr *tracker.QueryError
	if !errors.As(err, &queryErr) {
		t.Fatalf("got error %v, want QueryError", err)
	}
	if queryErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("got status %d, want %d", queryErr.StatusCode, http.StatusInternalServerError)
	}
}

func TestSemesterVariables(t *testing.T) {
	remote := newFakeRemote(t)
	client := NewClient(remote.config(), tracker.RealClock{}, tracker.NopLogger{})

	_, err := client.FetchAssignments(context.Background(), testCreds(),
		tracker.Semester{Term: 2, Year: 2024})
	if err != nil {
		t.Fatalf("FetchAssignments() error = %v", err)
	}

	vars := remote.lastVariables
	if got := fmt.Sprint(vars["semester"]); got != "2" {
		t.Errorf("got semester variable %v, want 2", vars["semester"])
	}
	if got := fmt.Sprint(vars["year"]); got != "2024" {
		t.Errorf("got year variable %v, want 2024", vars["year"])
	}
	if vars["filter"] != "ALL" {
		t.Errorf("got filter variable %v, want ALL", vars["filter"])
	}
}
