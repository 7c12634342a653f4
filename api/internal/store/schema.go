package store

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
create table if not exists question_papers (
    id             uuid primary key,
    filename       text not null,
    file_type      text,
    extracted_text text not null,
    solutions      text not null,
    created_at     timestamptz not null default now()
)`

// Migrate creates the tables the service writes to. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
