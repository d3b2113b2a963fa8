package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/field-reservation/internal/model"
	"github.com/iliyamo/field-reservation/internal/utils"
)

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var (
	ErrEmailExists  = errors.New("email already exists")
	ErrUserNotFound = errors.New("user not found")
)

const userColumns = "id,name,email,password_hash,phone,role,is_guest,is_active,created_at,updated_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u     model.User
		phone sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &phone, &u.Role,
		&u.IsGuest, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Phone = nullString(phone)
	return &u, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create hashes the password, inserts the user and fills in ID and timestamps.
func (r *UserRepo) Create(ctx context.Context, u *model.User, password string, cost int) error {
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, phone, role, is_guest, is_active) VALUES (?,?,?,?,?,?,?)",
		u.Name, u.Email, hash, u.Phone, u.Role, u.IsGuest, true)
	if err != nil {
		if isDuplicate(err) {
			return ErrEmailExists
		}
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
	*u = *created
	return nil
}

// FindOrCreateGuest returns the user registered under email or creates a
// guest account for it.  Guest accounts get a random password and cannot
// log in.  Name and phone of an existing user are left untouched.
func (r *UserRepo) FindOrCreateGuest(ctx context.Context, name, email string, phone *string, cost int) (*model.User, error) {
	u, err := r.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	pw, err := utils.RandomPassword()
	if err != nil {
		return nil, err
	}
	guest := &model.User{Name: name, Email: email, Phone: phone, Role: model.RoleUser, IsGuest: true}
	if err := r.Create(ctx, guest, pw, cost); err != nil {
		if errors.Is(err, ErrEmailExists) {
			// lost a race with another booking for the same email
			return r.GetByEmail(ctx, email)
		}
		return nil, err
	}
	return guest, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UserQuery defines filters & pagination for the admin user list.
type UserQuery struct {
	Search   string
	Page     int
	PageSize int
}

// UserSummary is a user row with its reservation count.
type UserSummary struct {
	model.User
	ReservationCount int64
}

// List returns a page of users ordered by newest first together with the
// total number of matches.  Search matches name, email and phone.
func (r *UserRepo) List(ctx context.Context, q UserQuery) ([]UserSummary, int64, error) {
	cond := "1=1"
	args := []any{}
	if s := strings.TrimSpace(q.Search); s != "" {
		cond = "(LOWER(u.name) LIKE ? OR LOWER(u.email) LIKE ? OR u.phone LIKE ?)"
		like := "%" + strings.ToLower(s) + "%"
		args = append(args, like, like, "%"+s+"%")
	}

	var total int64
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users u WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(q.Page, q.PageSize)
	dataSQL := `SELECT u.id,u.name,u.email,u.password_hash,u.phone,u.role,u.is_guest,u.is_active,u.created_at,u.updated_at,
	                   (SELECT COUNT(*) FROM reservations r WHERE r.user_id = u.id)
	            FROM users u WHERE ` + cond + ` ORDER BY u.created_at DESC, u.id DESC LIMIT ? OFFSET ?`
	rows, err := r.DB.QueryContext(ctx, dataSQL, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []UserSummary{}
	for rows.Next() {
		var (
			s     UserSummary
			phone sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.PasswordHash, &phone, &s.Role,
			&s.IsGuest, &s.IsActive, &s.CreatedAt, &s.UpdatedAt, &s.ReservationCount); err != nil {
			return nil, 0, err
		}
		s.Phone = nullString(phone)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// CountReservations returns how many reservations reference the user.
func (r *UserRepo) CountReservations(ctx context.Context, id uint64) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations WHERE user_id = ?", id).Scan(&n)
	return n, err
}

// UserUpdate carries the admin-editable user attributes.
type UserUpdate struct {
	Name  string
	Email string
	Phone *string
	Role  string
}

// Update replaces the editable attributes of a user.  A changed email that
// belongs to another account yields ErrEmailExists.
func (r *UserRepo) Update(ctx context.Context, id uint64, in UserUpdate) (*model.User, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, phone = ?, role = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		in.Name, NormalizeEmail(in.Email), in.Phone, in.Role, id)
	if err != nil {
		if isDuplicate(err) {
			return nil, ErrEmailExists
		}
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrUserNotFound
	}
	return r.GetByID(ctx, id)
}

// SetActive enables or disables a user account.
func (r *UserRepo) SetActive(ctx context.Context, id uint64, active bool) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user that has no reservations.  Users referenced by a
// reservation yield ErrConflict.
func (r *UserRepo) Delete(ctx context.Context, id uint64) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
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

	var one int
	if err = tx.QueryRowContext(ctx, "SELECT 1 FROM users WHERE id = ?", id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	var n int64
	if err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM reservations WHERE user_id = ?", id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id = ?", id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
		if isForeignKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// CountUsers returns the number of registered, non-admin users.
func (r *UserRepo) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role = ?", model.RoleUser).Scan(&n)
	return n, err
}

// EnsureAdmin creates the bootstrap administrator or promotes the existing
// account with that email.
func (r *UserRepo) EnsureAdmin(ctx context.Context, name, email, password string, cost int) (*model.User, error) {
	u, err := r.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if u.Role == model.RoleAdmin && u.IsActive && !u.IsGuest {
			return u, nil
		}
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE users SET role = ?, is_guest = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			model.RoleAdmin, false, true, u.ID); err != nil {
			return nil, err
		}
		return r.GetByID(ctx, u.ID)
	case errors.Is(err, ErrUserNotFound):
		admin := &model.User{Name: name, Email: email, Role: model.RoleAdmin}
		if err := r.Create(ctx, admin, password, cost); err != nil {
			return nil, err
		}
		return admin, nil
	default:
		return nil, err
	}
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
