// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/field-reservation/internal/database"
)

// NewDB returns a migrated SQLite database stored in the test's temp dir.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return db
}

// InsertField adds an active field open 08:00-22:00 and returns its id.
func InsertField(t testing.TB, db *sql.DB, name string, price int64) uint64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO fields (name, location, price_per_hour, facilities, open_hour, close_hour, is_active)
		 VALUES (?, 'Jl. Sudirman 1', ?, '["Parking"]', 8, 22, 1)`, name, price)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// InsertUser adds a user with an unusable password hash and returns its id.
func InsertUser(t testing.TB, db *sql.DB, email, role string) uint64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO users (name, email, password_hash, role) VALUES (?, ?, 'x', ?)`, email, email, role)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}

// InsertReservation adds a reservation row directly, bypassing the
// conflict check, and returns its id.
func InsertReservation(t testing.TB, db *sql.DB, userID, fieldID uint64, date, start, end, status, payment string) uint64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO reservations (user_id, field_id, reservation_date, start_time, end_time, total_price, status, payment_status)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`, userID, fieldID, date, start, end, status, payment)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id)
}
