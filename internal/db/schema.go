package db

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS packages (
    id          BIGSERIAL PRIMARY KEY,
    package_id  TEXT        NOT NULL,
    version     TEXT        NOT NULL,
    title       TEXT        NOT NULL DEFAULT '',
    description TEXT        NOT NULL DEFAULT '',
    authors     TEXT        NOT NULL DEFAULT '',
    tags        TEXT[]      NOT NULL DEFAULT '{}',
    sha256      TEXT        NOT NULL,
    size_bytes  BIGINT      NOT NULL,
    blob_path   TEXT        NOT NULL,
    listed      BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    visible_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS packages_identity_idx
    ON packages (lower(package_id), lower(version));

CREATE INDEX IF NOT EXISTS packages_visible_idx
    ON packages (visible_at) WHERE listed;
`

// Migrate creates the schema if it does not exist
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
