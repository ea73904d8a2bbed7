package database

// Schema is the full current schema as a single script, for tests and
// in-memory databases where running the migration chain is overkill.
// Must be kept in sync with migrations/files.
const Schema = `
CREATE TABLE user (
    user_id      TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    credentials  BLOB NOT NULL,
    recipient_id TEXT NOT NULL
);

CREATE TABLE course (
    course_id     TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    course_number TEXT NOT NULL DEFAULT '',
    thumbnail     TEXT NOT NULL DEFAULT '',
    semester      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE assignment (
    assignment_id TEXT PRIMARY KEY,
    course_id     TEXT NOT NULL REFERENCES course(course_id),
    name          TEXT NOT NULL,
    type          TEXT NOT NULL DEFAULT '',
    due_at        TIMESTAMP
);

CREATE INDEX idx_assignment_due_at ON assignment(due_at);

CREATE TABLE user_assignment (
    user_id       TEXT NOT NULL REFERENCES user(user_id) ON DELETE CASCADE,
    assignment_id TEXT NOT NULL REFERENCES assignment(assignment_id),
    status        TEXT NOT NULL DEFAULT '',
    notified_3day BOOLEAN NOT NULL DEFAULT 0,
    notified_1day BOOLEAN NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, assignment_id)
);

CREATE TABLE batch_run (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    operation   TEXT NOT NULL,
    started_at  TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    status      TEXT NOT NULL DEFAULT 'running'
);
`
