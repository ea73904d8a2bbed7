package database

import (
	"database/sql"
	"fmt"
	"time"

	"cvn-go/internal/database/migrations"
	"cvn-go/internal/model"
	"cvn-go/internal/tracker"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the tracker.Database interface using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db, path: ""}
}

// OpenConnection opens and configures a SQLite database connection with
// appropriate PRAGMAs. Exported for tools and tests that need a properly
// configured connection. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	// Foreign keys are enabled through the DSN rather than a PRAGMA
	// statement: database/sql pools connections, and a pragma executed
	// with Exec configures only the one connection it happens to run on.
	// The DSN applies to every connection the pool opens.
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return db, nil
}

// User operations

func (s *SQLiteDatabase) ListUsers() ([]model.User, error) {
	rows, err := s.db.Query(`
		SELECT user_id, display_name, credentials, recipient_id
		FROM user ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Credentials, &u.RecipientID); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading users: %w", err)
	}
	return users, nil
}

func (s *SQLiteDatabase) UpsertUser(u model.User) error {
	_, err := s.db.Exec(`
		INSERT INTO user (user_id, display_name, credentials, recipient_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			credentials  = excluded.credentials,
			recipient_id = excluded.recipient_id`,
		u.ID, u.DisplayName, u.Credentials, u.RecipientID)
	if err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteUser(userID string) error {
	// Links go with the user via ON DELETE CASCADE.
	_, err := s.db.Exec(`DELETE FROM user WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// Sync operations

// SyncCourses persists one user's fetched course list atomically: either
// the whole sync for this user lands or none of it does.
func (s *SQLiteDatabase) SyncCourses(userID string, courses []model.Course) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range courses {
		_, err := tx.Exec(`
			INSERT INTO course (course_id, name, course_number, thumbnail, semester)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(course_id) DO UPDATE SET
				name          = excluded.name,
				course_number = excluded.course_number,
				thumbnail     = excluded.thumbnail,
				semester      = excluded.semester`,
			c.ID, c.Name, c.Number, c.Thumbnail, c.Semester)
		if err != nil {
			return fmt.Errorf("upserting course %s: %w", c.ID, err)
		}

		for _, a := range c.Assignments {
			var due sql.NullTime
			if a.DueAt != nil {
				due = sql.NullTime{Time: a.DueAt.UTC(), Valid: true}
			}
			// Name, type and due date may change upstream; last write wins.
			_, err := tx.Exec(`
				INSERT INTO assignment (assignment_id, course_id, name, type, due_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(assignment_id) DO UPDATE SET
					course_id = excluded.course_id,
					name      = excluded.name,
					type      = excluded.type,
					due_at    = excluded.due_at`,
				a.ID, c.ID, a.Name, a.Type, due)
			if err != nil {
				return fmt.Errorf("upserting assignment %s: %w", a.ID, err)
			}

			// New links start with both notify flags unset; existing links
			// keep their flags and only refresh the upstream status.
			_, err = tx.Exec(`
				INSERT INTO user_assignment (user_id, assignment_id, status, notified_3day, notified_1day)
				VALUES (?, ?, ?, 0, 0)
				ON CONFLICT(user_id, assignment_id) DO UPDATE SET
					status = excluded.status`,
				userID, a.ID, a.Status)
			if err != nil {
				return fmt.Errorf("linking assignment %s to user %s: %w", a.ID, userID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing sync: %w", err)
	}
	return nil
}

// Notification operations

func (s *SQLiteDatabase) DueLinks(from, to time.Time) ([]model.DueLink, error) {
	rows, err := s.db.Query(`
		SELECT ua.user_id, u.recipient_id, ua.assignment_id, a.due_at,
		       ua.notified_3day, ua.notified_1day
		FROM user_assignment ua
		JOIN assignment a ON ua.assignment_id = a.assignment_id
		JOIN user u ON ua.user_id = u.user_id
		WHERE a.due_at IS NOT NULL
		  AND a.due_at >= ? AND a.due_at <= ?
		  AND (ua.notified_3day = 0 OR ua.notified_1day = 0)
		ORDER BY ua.user_id, a.due_at`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("fetching due links: %w", err)
	}
	defer rows.Close()

	var links []model.DueLink
	for rows.Next() {
		var l model.DueLink
		if err := rows.Scan(&l.UserID, &l.RecipientID, &l.AssignmentID, &l.DueAt,
			&l.Notified3Day, &l.Notified1Day); err != nil {
			return nil, fmt.Errorf("scanning due link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading due links: %w", err)
	}
	return links, nil
}

func (s *SQLiteDatabase) OpenAssignments(userID string, from, to time.Time) ([]model.OpenAssignment, error) {
	rows, err := s.db.Query(`
		SELECT a.assignment_id, a.name, a.type, a.due_at, ua.status,
		       c.course_id, c.name, c.course_number, c.thumbnail, c.semester
		FROM user_assignment ua
		JOIN assignment a ON ua.assignment_id = a.assignment_id
		JOIN course c ON a.course_id = c.course_id
		WHERE ua.user_id = ?
		  AND a.due_at IS NOT NULL
		  AND a.due_at >= ? AND a.due_at <= ?
		ORDER BY c.course_id, a.due_at`,
		userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("fetching open assignments: %w", err)
	}
	defer rows.Close()

	var open []model.OpenAssignment
	for rows.Next() {
		var oa model.OpenAssignment
		var due sql.NullTime
		if err := rows.Scan(&oa.AssignmentID, &oa.Name, &oa.Type, &due, &oa.Status,
			&oa.CourseID, &oa.CourseName, &oa.CourseNumber, &oa.Thumbnail, &oa.Semester); err != nil {
			return nil, fmt.Errorf("scanning open assignment: %w", err)
		}
		if due.Valid {
			t := due.Time
			oa.DueAt = &t
		}
		open = append(open, oa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading open assignments: %w", err)
	}
	return open, nil
}

// UpdateNotifyFlags ORs the new flag values into the stored ones, so a set
// flag can never revert to unset.
func (s *SQLiteDatabase) UpdateNotifyFlags(userID, assignmentID string, notified3Day, notified1Day bool) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE user_assignment
		SET notified_3day = notified_3day OR ?,
		    notified_1day = notified_1day OR ?
		WHERE user_id = ? AND assignment_id = ?`,
		notified3Day, notified1Day, userID, assignmentID)
	if err != nil {
		return false, fmt.Errorf("updating notify flags: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking notify flag update: %w", err)
	}
	return n > 0, nil
}

// Run history

func (s *SQLiteDatabase) CreateBatchRun(operation string) (*model.BatchRun, error) {
	started := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO batch_run (operation, started_at, status)
		VALUES (?, ?, 'running')`,
		operation, started)
	if err != nil {
		return nil, fmt.Errorf("creating batch run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading batch run id: %w", err)
	}

	return &model.BatchRun{ID: id, Operation: operation, StartedAt: started, Status: "running"}, nil
}

func (s *SQLiteDatabase) FinishBatchRun(id int64, status string) error {
	_, err := s.db.Exec(`
		UPDATE batch_run SET finished_at = ?, status = ? WHERE id = ?`,
		time.Now().UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing batch run: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListBatchRuns(limit int) ([]*model.BatchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, operation, started_at, finished_at, status
		FROM batch_run ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing batch runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.BatchRun
	for rows.Next() {
		var r model.BatchRun
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Operation, &r.StartedAt, &finished, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning batch run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading batch runs: %w", err)
	}
	return runs, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the schema to the latest version.
func (s *SQLiteDatabase) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements tracker.Database
var _ tracker.Database = (*SQLiteDatabase)(nil)
