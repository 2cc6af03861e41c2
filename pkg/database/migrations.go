package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes not expressed by
// the ent schema directly, used to search gate finding detail text and
// plan task titles from the control-plane API.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_findings_detail_gin
		ON findings USING gin(to_tsvector('english', detail))`)
	if err != nil {
		return fmt.Errorf("failed to create findings detail GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_plan_tasks_title_gin
		ON plan_tasks USING gin(to_tsvector('english', title))`)
	if err != nil {
		return fmt.Errorf("failed to create plan task title GIN index: %w", err)
	}

	return nil
}
