package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS connection_events (
	id          UUID PRIMARY KEY,
	recorded_at TIMESTAMPTZ NOT NULL,
	url         TEXT NOT NULL,
	session     TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS connection_events_url_time
	ON connection_events (url, recorded_at);
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema creates the journal table if it does not exist.
func EnsureSchema(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}
