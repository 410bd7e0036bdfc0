package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS interventions (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_id       TEXT NOT NULL UNIQUE,
    recorded_at    TEXT NOT NULL,
    session_id     TEXT NOT NULL,
    request_id     TEXT NOT NULL DEFAULT '',
    model          TEXT NOT NULL DEFAULT '',
    reason         TEXT NOT NULL,
    snippet        TEXT NOT NULL DEFAULT '',
    savings_usd    REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_interventions_session ON interventions(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_interventions_reason ON interventions(reason);
`
