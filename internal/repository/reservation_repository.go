package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/field-reservation/internal/booking"
	"github.com/iliyamo/field-reservation/internal/model"
)

// ErrReservationNotFound is returned when a reservation cannot be found.
var ErrReservationNotFound = errors.New("reservation not found")

// ReservationRepo provides persistence for reservations.  Every write that
// can make a reservation occupy slots runs in a transaction that first
// takes the row lock of the reservation's field, so concurrent writers for
// the same field serialize and the conflict check sees committed data.
// Dates are "YYYY-MM-DD" and times "HH:MM" strings; both compare correctly
// as text.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const reservationColumns = `r.id, r.user_id, r.field_id, r.reservation_date, r.start_time, r.end_time,
	r.total_price, r.status, r.payment_status, r.payment_proof, r.payment_notes, r.notes,
	r.created_at, r.updated_at`

func scanReservation(row rowScanner, extra ...any) (*model.Reservation, error) {
	var (
		res                   model.Reservation
		day                   time.Time
		status, payment       string
		proof, pnotes, bnotes sql.NullString
	)
	dest := []any{&res.ID, &res.UserID, &res.FieldID, &day, &res.StartTime, &res.EndTime,
		&res.TotalPrice, &status, &payment, &proof, &pnotes, &bnotes, &res.CreatedAt, &res.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	res.Date = day.Format(booking.DateLayout)
	res.Status = model.Status(status)
	res.PaymentStatus = model.PaymentStatus(payment)
	res.PaymentProof = nullString(proof)
	res.PaymentNotes = nullString(pnotes)
	res.Notes = nullString(bnotes)
	return &res, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	out := []model.Reservation{}
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func blockingArgs() (string, []any) {
	return "r.status IN (?, ?)", []any{string(model.StatusPending), string(model.StatusConfirmed)}
}

// findConflicts returns the blocking reservations of a field on a date
// whose time range intersects [start, end).  excludeID skips one
// reservation (0 skips none).
func findConflicts(ctx context.Context, q querier, fieldID uint64, date, start, end string, excludeID uint64) ([]model.Reservation, error) {
	statusCond, args := blockingArgs()
	query := `SELECT ` + reservationColumns + `
	          FROM reservations r
	          WHERE r.field_id = ? AND r.reservation_date = ? AND ` + statusCond + `
	            AND r.id <> ? AND r.start_time < ? AND r.end_time > ?
	          ORDER BY r.start_time, r.id`
	all := append([]any{fieldID, date}, args...)
	all = append(all, excludeID, end, start)
	rows, err := q.QueryContext(ctx, query, all...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// FindConflicts runs the conflict query outside of any transaction.  It
// has no side effects and is used for previews; bookings go through
// CreateChecked.
func (r *ReservationRepo) FindConflicts(ctx context.Context, fieldID uint64, date, start, end string) ([]model.Reservation, error) {
	return findConflicts(ctx, r.db, fieldID, date, start, end, 0)
}

// CreateChecked inserts res if no blocking reservation of the same field
// and date overlaps it.  The lock, the check and the insert commit
// together; on ErrSlotConflict nothing is written.  Inactive or unknown
// fields yield ErrFieldNotFound.  accessTokenHash may be empty.
func (r *ReservationRepo) CreateChecked(ctx context.Context, res *model.Reservation, accessTokenHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := lockFieldTx(ctx, tx, res.FieldID); err != nil {
		return err
	}
	var active bool
	if err := tx.QueryRowContext(ctx, "SELECT is_active FROM fields WHERE id = ?", res.FieldID).Scan(&active); err != nil {
		return err
	}
	if !active {
		return ErrFieldNotFound
	}

	conflicts, err := findConflicts(ctx, tx, res.FieldID, res.Date, res.StartTime, res.EndTime, 0)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return booking.ErrSlotConflict
	}

	if res.PaymentStatus == "" {
		res.PaymentStatus = model.PaymentPending
	}
	res.Status = booking.DeriveStatus(res.PaymentStatus)
	var tokenHash any
	if accessTokenHash != "" {
		tokenHash = accessTokenHash
	}
	const q = `INSERT INTO reservations
	           (user_id, field_id, reservation_date, start_time, end_time, total_price,
	            status, payment_status, payment_proof, payment_notes, notes, access_token_hash)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, res.UserID, res.FieldID, res.Date, res.StartTime, res.EndTime,
		res.TotalPrice, string(res.Status), string(res.PaymentStatus), res.PaymentProof, res.PaymentNotes,
		res.Notes, tokenHash)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	created, err := scanReservation(tx.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations r WHERE r.id = ?", id))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	*res = *created
	return nil
}

// GetByID returns a reservation by id.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return getReservation(ctx, r.db, id)
}

func getReservation(ctx context.Context, q querier, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(q.QueryRowContext(ctx,
		"SELECT "+reservationColumns+" FROM reservations r WHERE r.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	return res, err
}

// MatchAccessToken reports whether tokenHash is the access token hash
// stored for the reservation.
func (r *ReservationRepo) MatchAccessToken(ctx context.Context, id uint64, tokenHash string) (bool, error) {
	var stored sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT access_token_hash FROM reservations WHERE id = ?", id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrReservationNotFound
	}
	if err != nil {
		return false, err
	}
	return stored.Valid && stored.String != "" && stored.String == tokenHash, nil
}

// ListBlockingInRange returns the PENDING and CONFIRMED reservations of a
// field between two dates inclusive.  It feeds the slot generator.
func (r *ReservationRepo) ListBlockingInRange(ctx context.Context, fieldID uint64, from, to string) ([]model.Reservation, error) {
	statusCond, args := blockingArgs()
	query := `SELECT ` + reservationColumns + `
	          FROM reservations r
	          WHERE r.field_id = ? AND r.reservation_date >= ? AND r.reservation_date <= ? AND ` + statusCond + `
	          ORDER BY r.reservation_date, r.start_time, r.id`
	rows, err := r.db.QueryContext(ctx, query, append([]any{fieldID, from, to}, args...)...)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// PaymentUpdate describes a change of a reservation's payment.  Proof and
// Notes replace the stored values when non-nil.
type PaymentUpdate struct {
	Status model.PaymentStatus
	Proof  *string
	Notes  *string
	// AdminNote is appended to the payment notes current at update time.
	AdminNote string
}

// UpdatePaymentStatus is the only way a reservation's status changes after
// creation apart from completion.  It stores the payment status and the
// status derived from it in one statement.  A reservation that moves from
// a released state back to a blocking one is re-checked for conflicts under
// the field lock.  Completed reservations yield ErrReservationClosed.
func (r *ReservationRepo) UpdatePaymentStatus(ctx context.Context, id uint64, upd PaymentUpdate) (*model.Reservation, error) {
	var fieldID uint64
	err := r.db.QueryRowContext(ctx, "SELECT field_id FROM reservations WHERE id = ?", id).Scan(&fieldID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := lockFieldTx(ctx, tx, fieldID); err != nil {
		return nil, err
	}
	cur, err := getReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == model.StatusCompleted {
		return nil, ErrReservationClosed
	}

	next := booking.DeriveStatus(upd.Status)
	if next.Blocking() && !cur.Status.Blocking() {
		conflicts, err := findConflicts(ctx, tx, cur.FieldID, cur.Date, cur.StartTime, cur.EndTime, cur.ID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, booking.ErrSlotConflict
		}
	}

	proof, notes := cur.PaymentProof, cur.PaymentNotes
	if upd.Proof != nil {
		proof = upd.Proof
	}
	if upd.Notes != nil {
		notes = upd.Notes
	}
	notes = booking.AppendAdminNote(notes, upd.AdminNote)
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET payment_status = ?, status = ?, payment_proof = ?, payment_notes = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(upd.Status), string(next), proof, notes, id); err != nil {
		return nil, err
	}
	updated, err := getReservation(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return updated, nil
}

// UpdateNotes replaces the booking notes of a reservation.
func (r *ReservationRepo) UpdateNotes(ctx context.Context, id uint64, notes *string) (*model.Reservation, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE reservations SET notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", notes, id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrReservationNotFound
	}
	return r.GetByID(ctx, id)
}

// Delete removes a reservation and returns the removed row.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) (*model.Reservation, error) {
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, "DELETE FROM reservations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrReservationNotFound
	}
	return cur, nil
}

// ListCompletable returns CONFIRMED reservations that ended before the
// given wall-clock moment (date "YYYY-MM-DD", clock "HH:MM").
func (r *ReservationRepo) ListCompletable(ctx context.Context, date, clock string, limit int) ([]model.Reservation, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + reservationColumns + `
	          FROM reservations r
	          WHERE r.status = ? AND (r.reservation_date < ? OR (r.reservation_date = ? AND r.end_time <= ?))
	          ORDER BY r.reservation_date, r.end_time, r.id
	          LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, string(model.StatusConfirmed), date, date, clock, limit)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// MarkCompleted moves a CONFIRMED reservation to COMPLETED.  It reports
// false when the reservation was no longer CONFIRMED.
func (r *ReservationRepo) MarkCompleted(ctx context.Context, id uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE reservations SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?",
		string(model.StatusCompleted), id, string(model.StatusConfirmed))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountOnDate returns the number of reservations booked for a day.
func (r *ReservationRepo) CountOnDate(ctx context.Context, date string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations WHERE reservation_date = ?", date).Scan(&n)
	return n, err
}

// PaidRevenue returns the sum of total prices of PAID reservations.
func (r *ReservationRepo) PaidRevenue(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT SUM(total_price) FROM reservations WHERE payment_status = ?", string(model.PaymentPaid)).Scan(&n)
	return n.Int64, err
}

// ReservationQuery defines filters & pagination for listing reservations.
// A zero PageSize together with All returns every match.
type ReservationQuery struct {
	UserID        uint64
	FieldID       uint64
	Date          string
	Status        model.Status
	PaymentStatus model.PaymentStatus
	Search        string
	Page          int
	PageSize      int
	All           bool

	idFilter uint64
}

// ReservationDetail is a reservation joined with its user and field.
type ReservationDetail struct {
	model.Reservation
	UserName      string
	UserEmail     string
	UserPhone     *string
	FieldName     string
	FieldLocation string
}

// GetDetail returns a reservation with its user and field.
func (r *ReservationRepo) GetDetail(ctx context.Context, id uint64) (*ReservationDetail, error) {
	list, _, err := r.List(ctx, ReservationQuery{All: true, idFilter: id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrReservationNotFound
	}
	return &list[0], nil
}

// List returns reservations matching q, newest first, with the total count.
func (r *ReservationRepo) List(ctx context.Context, q ReservationQuery) ([]ReservationDetail, int64, error) {
	where := []string{}
	args := []any{}
	if q.idFilter > 0 {
		where = append(where, "r.id = ?")
		args = append(args, q.idFilter)
	}
	if q.UserID > 0 {
		where = append(where, "r.user_id = ?")
		args = append(args, q.UserID)
	}
	if q.FieldID > 0 {
		where = append(where, "r.field_id = ?")
		args = append(args, q.FieldID)
	}
	if q.Date != "" {
		where = append(where, "r.reservation_date = ?")
		args = append(args, q.Date)
	}
	if q.Status != "" {
		where = append(where, "r.status = ?")
		args = append(args, string(q.Status))
	}
	if q.PaymentStatus != "" {
		where = append(where, "r.payment_status = ?")
		args = append(args, string(q.PaymentStatus))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, "(LOWER(u.name) LIKE ? OR LOWER(u.email) LIKE ? OR LOWER(f.name) LIKE ?)")
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like, like)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	from := ` FROM reservations r
	          JOIN users u  ON u.id = r.user_id
	          JOIN fields f ON f.id = r.field_id
	          WHERE ` + cond

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := "SELECT " + reservationColumns + ", u.name, u.email, u.phone, f.name, f.location" + from +
		" ORDER BY r.created_at DESC, r.id DESC"
	if !q.All || q.PageSize > 0 {
		page, size := normalizePage(q.Page, q.PageSize)
		dataSQL += " LIMIT ? OFFSET ?"
		args = append(args, size, (page-1)*size)
	}
	rows, err := r.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []ReservationDetail{}
	for rows.Next() {
		var (
			d     ReservationDetail
			phone sql.NullString
		)
		res, err := scanReservation(rows, &d.UserName, &d.UserEmail, &phone, &d.FieldName, &d.FieldLocation)
		if err != nil {
			return nil, 0, err
		}
		d.Reservation = *res
		d.UserPhone = nullString(phone)
		out = append(out, d)
	}
	return out, total, rows.Err()
}
