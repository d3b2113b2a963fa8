package model

import "time"

// Roles understood by the authorization middleware.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents an application user record as stored in the
// `users` table.  Users are created at registration or implicitly when a
// guest books a field without an account; the latter are flagged with
// IsGuest and cannot log in until an administrator converts them.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Name         – display name.
//	Email        – unique, normalized (lower-case) email address.
//	PasswordHash – bcrypt hashed password.
//	Phone        – optional contact number.
//	Role         – USER or ADMIN.
//	IsGuest      – created implicitly by a guest booking.
//	IsActive     – whether the account may log in.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64    // users.id
	Name         string    // users.name
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Phone        *string   // users.phone (nullable)
	Role         string    // users.role
	IsGuest      bool      // users.is_guest
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// ValidRole reports whether r names a known role.
func ValidRole(r string) bool { return r == RoleUser || r == RoleAdmin }

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA‑256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
