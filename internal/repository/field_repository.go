package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/iliyamo/field-reservation/internal/model"
)

// ErrFieldNotFound is returned when a field cannot be found in the DB.
var ErrFieldNotFound = errors.New("field not found")

// FieldRepo encapsulates all database queries related to fields.
type FieldRepo struct {
	db *sql.DB
}

// NewFieldRepo constructs a FieldRepo with the provided DB handle.
func NewFieldRepo(db *sql.DB) *FieldRepo {
	return &FieldRepo{db: db}
}

const fieldColumns = `f.id, f.name, f.description, f.location, f.price_per_hour, f.image_url,
	f.facilities, f.open_hour, f.close_hour, f.is_active, f.created_at, f.updated_at`

func scanField(row rowScanner, extra ...any) (*model.Field, error) {
	var (
		f          model.Field
		desc, img  sql.NullString
		facilities string
	)
	dest := []any{&f.ID, &f.Name, &desc, &f.Location, &f.PricePerHour, &img,
		&facilities, &f.OpenHour, &f.CloseHour, &f.IsActive, &f.CreatedAt, &f.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	f.Description = nullString(desc)
	f.ImageURL = nullString(img)
	f.Facilities = decodeFacilities(facilities)
	return &f, nil
}

func encodeFacilities(in []string) string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, f := range in {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func decodeFacilities(s string) []string {
	out := []string{}
	if strings.TrimSpace(s) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// Create inserts a new field.  On success ID and timestamps are populated.
func (r *FieldRepo) Create(ctx context.Context, f *model.Field) error {
	const q = `INSERT INTO fields (name, description, location, price_per_hour, image_url, facilities, open_hour, close_hour, is_active)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, f.Name, f.Description, f.Location, f.PricePerHour, f.ImageURL,
		encodeFacilities(f.Facilities), f.OpenHour, f.CloseHour, f.IsActive)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*f = *created
	return nil
}

// GetByID fetches a field by its ID regardless of its active flag.
func (r *FieldRepo) GetByID(ctx context.Context, id uint64) (*model.Field, error) {
	f, err := scanField(r.db.QueryRowContext(ctx, "SELECT "+fieldColumns+" FROM fields f WHERE f.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFieldNotFound
	}
	return f, err
}

// GetActive fetches a field only when it is active; inactive fields are
// reported as not found.
func (r *FieldRepo) GetActive(ctx context.Context, id uint64) (*model.Field, error) {
	f, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.IsActive {
		return nil, ErrFieldNotFound
	}
	return f, nil
}

// FieldQuery defines filters & pagination for listing fields.
type FieldQuery struct {
	Search     string
	ActiveOnly bool
	Status     string // "", "active" or "inactive"
	Page       int
	PageSize   int
}

// FieldSummary is a field with the number of reservations referencing it.
type FieldSummary struct {
	model.Field
	ReservationCount int64
}

// List returns fields matching q ordered by newest first together with the
// total number of matches.
func (r *FieldRepo) List(ctx context.Context, q FieldQuery) ([]FieldSummary, int64, error) {
	where := []string{}
	args := []any{}
	if q.ActiveOnly || strings.EqualFold(q.Status, "active") {
		where = append(where, "f.is_active = ?")
		args = append(args, true)
	} else if strings.EqualFold(q.Status, "inactive") {
		where = append(where, "f.is_active = ?")
		args = append(args, false)
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, "(LOWER(f.name) LIKE ? OR LOWER(f.location) LIKE ?)")
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fields f WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(q.Page, q.PageSize)
	dataSQL := "SELECT " + fieldColumns + `, (SELECT COUNT(*) FROM reservations r WHERE r.field_id = f.id)
	            FROM fields f WHERE ` + cond + ` ORDER BY f.created_at DESC, f.id DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, dataSQL, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []FieldSummary{}
	for rows.Next() {
		var count int64
		f, err := scanField(rows, &count)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, FieldSummary{Field: *f, ReservationCount: count})
	}
	return out, total, rows.Err()
}

// Update replaces the editable attributes of a field.
func (r *FieldRepo) Update(ctx context.Context, f *model.Field) error {
	const q = `UPDATE fields
	           SET name = ?, description = ?, location = ?, price_per_hour = ?, facilities = ?,
	               open_hour = ?, close_hour = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, f.Name, f.Description, f.Location, f.PricePerHour,
		encodeFacilities(f.Facilities), f.OpenHour, f.CloseHour, f.IsActive, f.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFieldNotFound
	}
	updated, err := r.GetByID(ctx, f.ID)
	if err != nil {
		return err
	}
	*f = *updated
	return nil
}

// SetImage stores the public path of a field's image.
func (r *FieldRepo) SetImage(ctx context.Context, id uint64, url string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE fields SET image_url = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", url, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFieldNotFound
	}
	return nil
}

// SetActive toggles whether customers can see and book a field.
func (r *FieldRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE fields SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFieldNotFound
	}
	return nil
}

// Delete removes a field that no reservation references.  The count and
// the delete share a transaction that holds the field row lock, so a
// booking cannot slip in between them.
func (r *FieldRepo) Delete(ctx context.Context, id uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	if err = lockFieldTx(ctx, tx, id); err != nil {
		return err
	}
	var n int64
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations WHERE field_id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM fields WHERE id = ?", id); err != nil {
		if isForeignKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// CountActive returns the number of active fields.
func (r *FieldRepo) CountActive(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fields WHERE is_active = ?", true).Scan(&n)
	return n, err
}

// lockFieldTx takes the row lock of a field for the rest of tx.  Every
// writer that must observe a consistent set of a field's reservations
// calls it before reading them.
func lockFieldTx(ctx context.Context, tx *sql.Tx, fieldID uint64) error {
	res, err := tx.ExecContext(ctx, "UPDATE fields SET booking_seq = booking_seq + 1 WHERE id = ?", fieldID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrFieldNotFound
	}
	return nil
}
