package postgres

// Schema is the embedded base schema, applied at open. All statements are
// idempotent so reopening an existing database is safe. Embeddings are
// stored as BYTEA so the store works without pgvector; the vector column is
// added by MigrationPgvector when the extension is available.
const Schema = `
CREATE TABLE IF NOT EXISTS personas (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    professional_summary TEXT NOT NULL DEFAULT '',
    goals JSONB,
    life_experiences JSONB,
    qualifications_and_education JSONB,
    skills JSONB,
    strengths JSONB,
    value_proposition JSONB,
    development_plans JSONB,
    raw_text TEXT NOT NULL DEFAULT '',
    parse_tier TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_personas_created_at ON personas(created_at DESC);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    embedding BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);
CREATE INDEX IF NOT EXISTS idx_chunks_created_at ON chunks(created_at DESC);
`

// MigrationPgvector adds the native vector column used for index-backed
// similarity search. The dimension is intentionally unconstrained; pgvector
// accepts untyped vector columns and enforces consistency per comparison.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'chunks' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE chunks ADD COLUMN embedding_vec vector;
    END IF;
END $$;
`
