package sqlite

// Schema is the embedded SQLite schema, applied at open. All statements are
// idempotent so reopening an existing database is safe.
const Schema = `
CREATE TABLE IF NOT EXISTS personas (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    professional_summary TEXT NOT NULL DEFAULT '',
    goals TEXT,
    life_experiences TEXT,
    qualifications_and_education TEXT,
    skills TEXT,
    strengths TEXT,
    value_proposition TEXT,
    development_plans TEXT,
    raw_text TEXT NOT NULL DEFAULT '',
    parse_tier TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_personas_created_at ON personas(created_at DESC);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    embedding BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
CREATE INDEX IF NOT EXISTS idx_chunks_created_at ON chunks(created_at DESC);
`
