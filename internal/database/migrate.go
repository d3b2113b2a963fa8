package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate creates the application tables for the given driver if they do
// not already exist.  Statements are separated by semicolons and lines
// starting with "--" are ignored.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var file string
	switch driver {
	case DriverMySQL:
		file = "schema/mysql.sql"
	case DriverSQLite:
		file = "schema/sqlite.sql"
	default:
		return fmt.Errorf("migrate: unsupported driver %q", driver)
	}
	raw, err := schemaFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("migrate: read %s: %w", file, err)
	}
	var body strings.Builder
	for _, line := range strings.Split(string(raw), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	for _, stmt := range strings.Split(body.String(), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
