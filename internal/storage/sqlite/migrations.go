package sqlite

// schema contains the database schema DDL.
const schema = `
-- Key/value settings
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value REAL NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Render history
CREATE TABLE IF NOT EXISTS renders (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    applet TEXT NOT NULL,
    hash TEXT,
    ok INTEGER NOT NULL,
    submitted INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    rendered_at INTEGER NOT NULL,
    took_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_renders_time ON renders(rendered_at);
`
