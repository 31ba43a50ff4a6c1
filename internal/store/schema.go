package store

// Schema is the SQL schema for the work-assistant database.
//
// List-valued columns (recipients, cc, keywords, people_mentioned) hold
// JSON arrays. Timestamps are RFC3339 UTC text so lexicographic comparison
// matches chronological order.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    company     TEXT,
    description TEXT,
    status      TEXT NOT NULL DEFAULT 'active',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
    id               TEXT PRIMARY KEY,
    subject          TEXT,
    sender           TEXT NOT NULL,
    recipients       TEXT,
    cc               TEXT,
    content          TEXT NOT NULL,
    summary          TEXT,
    keywords         TEXT,
    people_mentioned TEXT,
    project_id       TEXT REFERENCES projects(id),
    importance       TEXT NOT NULL DEFAULT 'normal',
    received_date    TEXT NOT NULL,
    processed_at     TEXT NOT NULL,
    vector_id        TEXT
);

CREATE TABLE IF NOT EXISTS status_updates (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(id),
    content     TEXT NOT NULL,
    update_type TEXT,
    keywords    TEXT,
    created_by  TEXT,
    created_at  TEXT NOT NULL,
    vector_id   TEXT
);

CREATE TABLE IF NOT EXISTS deliverables (
    id           TEXT PRIMARY KEY,
    project_id   TEXT NOT NULL REFERENCES projects(id),
    title        TEXT NOT NULL,
    description  TEXT,
    due_date     TEXT,
    status       TEXT NOT NULL DEFAULT 'pending',
    priority     TEXT NOT NULL DEFAULT 'medium',
    assigned_to  TEXT,
    completed_at TEXT,
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL,
    vector_id    TEXT
);

CREATE TABLE IF NOT EXISTS people (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    email      TEXT,
    company    TEXT,
    role       TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_email_project ON emails(project_id);
CREATE INDEX IF NOT EXISTS idx_email_date ON emails(received_date);
CREATE INDEX IF NOT EXISTS idx_email_importance ON emails(importance);
CREATE INDEX IF NOT EXISTS idx_status_project ON status_updates(project_id);
CREATE INDEX IF NOT EXISTS idx_status_date ON status_updates(created_at);
CREATE INDEX IF NOT EXISTS idx_deliverable_project ON deliverables(project_id);
CREATE INDEX IF NOT EXISTS idx_deliverable_due ON deliverables(due_date);
CREATE INDEX IF NOT EXISTS idx_deliverable_status ON deliverables(status);
CREATE INDEX IF NOT EXISTS idx_people_name ON people(name);
CREATE UNIQUE INDEX IF NOT EXISTS idx_people_email ON people(email) WHERE email IS NOT NULL AND email != '';
`
