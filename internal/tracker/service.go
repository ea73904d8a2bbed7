package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cvn-go/internal/model"
)

// Service is the orchestration layer: it syncs every registered user's
// assignments from the remote service and dispatches due notifications
// with at-most-once-per-threshold semantics.
type Service struct {
	db       Database
	client   CourseClient
	cipher   CredentialCipher
	notifier Notifier
	logger   Logger
	clock    Clock

	workers       int
	notifyWindow  time.Duration
	openWindow    time.Duration
	detailBaseURL string
	thresholds    Thresholds
}

// ServiceConfig tunes scheduling behavior. Zero values select defaults:
// 3 sync workers, a 3-day notification window, a 7-day content window and
// the stock urgency thresholds.
type ServiceConfig struct {
	Workers          int
	NotifyWindowDays int
	OpenWindowDays   int
	DetailBaseURL    string
	Thresholds       Thresholds
}

// NewService creates a Service with the provided dependencies.
func NewService(db Database, client CourseClient, cipher CredentialCipher, notifier Notifier, logger Logger, clock Clock, cfg ServiceConfig) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.NotifyWindowDays <= 0 {
		cfg.NotifyWindowDays = 3
	}
	if cfg.OpenWindowDays <= 0 {
		cfg.OpenWindowDays = 7
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds
	}

	return &Service{
		db:            db,
		client:        client,
		cipher:        cipher,
		notifier:      notifier,
		logger:        logger,
		clock:         clock,
		workers:       cfg.Workers,
		notifyWindow:  time.Duration(cfg.NotifyWindowDays) * 24 * time.Hour,
		openWindow:    time.Duration(cfg.OpenWindowDays) * 24 * time.Hour,
		detailBaseURL: cfg.DetailBaseURL,
		thresholds:    cfg.Thresholds,
	}
}

// SyncReport summarizes one sync pass.
type SyncReport struct {
	Users  int
	Synced int
	Failed int
}

// SyncAll fetches and persists assignments for every registered user.
// Per-user work runs on a bounded worker pool; a failure for one user is
// logged and does not affect the others. After ctx is canceled no new
// users are started, but in-flight handshakes run to completion.
func (s *Service) SyncAll(ctx context.Context) (*SyncReport, error) {
	users, err := s.db.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	sem := CurrentSemester(s.clock.Now())
	report := &SyncReport{Users: len(users)}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan model.User)

	wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go func() {
			defer wg.Done()
			for u := range jobs {
				if err := s.syncUser(ctx, u, sem); err != nil {
					s.logger.Error("user sync failed", "user", u.ID, "error", err)
					mu.Lock()
					report.Failed++
					mu.Unlock()
					continue
				}
				mu.Lock()
				report.Synced++
				mu.Unlock()
			}
		}()
	}

feed:
	for _, u := range users {
		select {
		case <-ctx.Done():
			s.logger.Warn("sync canceled, not starting remaining users")
			break feed
		case jobs <- u:
		}
	}
	close(jobs)
	wg.Wait()

	s.logger.Info("sync complete", "users", report.Users, "synced", report.Synced, "failed", report.Failed)
	return report, nil
}

// syncUser runs the handshake and query for a single user and persists the
// result in one transaction.
func (s *Service) syncUser(ctx context.Context, u model.User, sem Semester) error {
	creds, err := s.cipher.Open(u.Credentials)
	if err != nil {
		return fmt.Errorf("opening credentials: %w", err)
	}

	courses, err := s.client.FetchAssignments(ctx, creds, sem)
	if err != nil {
		return fmt.Errorf("fetching assignments: %w", err)
	}
	if len(courses) == 0 {
		s.logger.Warn("no course data for user", "user", u.ID)
		return nil
	}

	if err := s.db.SyncCourses(u.ID, courses); err != nil {
		return fmt.Errorf("persisting courses: %w", err)
	}

	s.logger.Debug("user synced", "user", u.ID, "courses", len(courses))
	return nil
}

// NotifyReport summarizes one notification pass.
type NotifyReport struct {
	Users    int
	Notified int
	Failed   int
}

// dueUser groups one user's due links for a single dispatch.
type dueUser struct {
	recipientID string
	links       []model.DueLink
}

// NotifyDue selects every (user, assignment) pair due inside the
// notification window with an unset notify flag, dispatches one
// notification batch per user, and persists the flags only after the
// dispatch is confirmed. A dispatch failure leaves the user's flags
// untouched so the next run retries; the documented trade-off is a
// possible duplicate across a failed-then-retried run, never a miss.
//
// Flag policy is window membership, not edge-triggered crossing: an
// assignment first observed already inside the 1-day window gets both
// flags set in the same run.
func (s *Service) NotifyDue(ctx context.Context) (*NotifyReport, error) {
	now := s.clock.Now()

	links, err := s.db.DueLinks(now, now.Add(s.notifyWindow))
	if err != nil {
		return nil, fmt.Errorf("fetching due links: %w", err)
	}

	byUser := make(map[string]*dueUser)
	for _, l := range links {
		if !s.actionable(l, now) {
			continue
		}
		du := byUser[l.UserID]
		if du == nil {
			du = &dueUser{recipientID: l.RecipientID}
			byUser[l.UserID] = du
		}
		du.links = append(du.links, l)
	}

	// Stable dispatch order across runs.
	userIDs := make([]string, 0, len(byUser))
	for id := range byUser {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	report := &NotifyReport{Users: len(userIDs)}

	for _, userID := range userIDs {
		select {
		case <-ctx.Done():
			s.logger.Warn("notify canceled, skipping remaining users")
			return report, ctx.Err()
		default:
		}

		du := byUser[userID]
		if err := s.notifyUser(ctx, userID, du, now); err != nil {
			s.logger.Error("notify failed", "user", userID, "error", err)
			report.Failed++
			continue
		}
		report.Notified++
	}

	s.logger.Info("notify complete", "users", report.Users, "notified", report.Notified, "failed", report.Failed)
	return report, nil
}

// actionable reports whether a due link still has a threshold to fire:
// either the 3-day flag is unset, or the 1-day flag is unset and the due
// date has entered the 1-day window. A link whose 3-day threshold already
// fired does not re-dispatch until it crosses into the 1-day window.
func (s *Service) actionable(l model.DueLink, now time.Time) bool {
	if !l.Notified3Day {
		return true
	}
	return !l.Notified1Day && l.DueAt.Sub(now) <= 24*time.Hour
}

// notifyUser dispatches one user's batch and, on success, marks the due
// links as notified. Flag writes are independent per assignment: one
// failed write is logged without blocking the rest.
func (s *Service) notifyUser(ctx context.Context, userID string, du *dueUser, now time.Time) error {
	open, err := s.db.OpenAssignments(userID, now, now.Add(s.openWindow))
	if err != nil {
		return fmt.Errorf("loading open assignments: %w", err)
	}

	notices := s.buildNotices(open, now)
	if len(notices) > 0 {
		if err := s.notifier.Push(ctx, du.recipientID, notices); err != nil {
			return fmt.Errorf("dispatching: %w", err)
		}
		s.logger.Info("notifications sent", "user", userID, "notices", len(notices))
	} else {
		s.logger.Warn("no renderable notices for user", "user", userID)
	}

	oneDay := 24 * time.Hour
	for _, l := range du.links {
		within1Day := l.DueAt.Sub(now) <= oneDay
		// Setting the 1-day flag implies the 3-day flag so a later run
		// cannot re-notify the wider threshold for the same assignment.
		if _, err := s.db.UpdateNotifyFlags(userID, l.AssignmentID, true, within1Day); err != nil {
			s.logger.Error("updating notify flags", "user", userID, "assignment", l.AssignmentID, "error", err)
		}
	}

	return nil
}

// buildNotices converts open-assignment rows into renderer-ready notices.
func (s *Service) buildNotices(open []model.OpenAssignment, now time.Time) []Notice {
	notices := make([]Notice, 0, len(open))
	for _, a := range open {
		tl := TimeRemaining(a.DueAt, now)
		if !tl.Known {
			s.logger.Warn("assignment has no usable due date", "assignment", a.AssignmentID)
			continue
		}

		notices = append(notices, Notice{
			CourseID:       a.CourseID,
			CourseName:     a.CourseName,
			AssignmentID:   a.AssignmentID,
			AssignmentName: a.Name,
			AssignmentType: a.Type,
			Urgency:        s.thresholds.Classify(a.Status, tl.Seconds),
			DueLabel:       FormatDue(a.DueAt),
			TimeLeft:       tl,
			DetailURL:      fmt.Sprintf("%s/course/%s/assignments/%s", s.detailBaseURL, a.CourseID, a.AssignmentID),
		})
	}
	return notices
}

// Run executes a full batch: sync all users, then dispatch due
// notifications. This is the entry point the external scheduler invokes.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.SyncAll(ctx); err != nil {
		return fmt.Errorf("sync phase: %w", err)
	}
	if _, err := s.NotifyDue(ctx); err != nil {
		return fmt.Errorf("notify phase: %w", err)
	}
	return nil
}

// RegisterUser seals the credentials and creates or replaces the user row.
func (s *Service) RegisterUser(userID, displayName, recipientID string, creds Credentials) error {
	blob, err := s.cipher.Seal(creds)
	if err != nil {
		return fmt.Errorf("sealing credentials: %w", err)
	}

	u := model.User{
		ID:          userID,
		DisplayName: displayName,
		Credentials: blob,
		RecipientID: recipientID,
	}
	if err := s.db.UpsertUser(u); err != nil {
		return fmt.Errorf("storing user: %w", err)
	}

	s.logger.Info("user registered", "user", userID)
	return nil
}

// RemoveUser deletes a user and their assignment links.
func (s *Service) RemoveUser(userID string) error {
	if err := s.db.DeleteUser(userID); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	s.logger.Info("user removed", "user", userID)
	return nil
}

// ListUsers returns all registered users.
func (s *Service) ListUsers() ([]model.User, error) {
	return s.db.ListUsers()
}
