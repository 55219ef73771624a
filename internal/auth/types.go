package auth

import (
	"strings"
	"time"
)

// User is the persisted credential record of a person who can sign in.
// Lawyers are users with RoleLawyer.
type User struct {
	ID            string    `json:"id"`
	DNI           string    `json:"dni"`
	Email         string    `json:"email,omitempty"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	Name          string    `json:"name"`
	Surname       string    `json:"surname"`
	Phone         string    `json:"phone"`
	Specialty     string    `json:"specialty,omitempty"`
	LicenseNumber string    `json:"license_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Profile is the outward view of a User. It has no credential fields.
type Profile struct {
	ID            string    `json:"id"`
	DNI           string    `json:"dni"`
	Email         string    `json:"email,omitempty"`
	Role          Role      `json:"role"`
	Name          string    `json:"name"`
	Surname       string    `json:"surname"`
	Phone         string    `json:"phone"`
	Specialty     string    `json:"specialty,omitempty"`
	LicenseNumber string    `json:"license_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		DNI:           u.DNI,
		Email:         u.Email,
		Role:          u.Role,
		Name:          u.Name,
		Surname:       u.Surname,
		Phone:         u.Phone,
		Specialty:     u.Specialty,
		LicenseNumber: u.LicenseNumber,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// DisplayName joins name and surname.
func (u User) DisplayName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

// Principal is the authenticated identity attached to one request.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Name  string `json:"name"`
}

// Session is returned by register, login and refresh.
type Session struct {
	User             Profile   `json:"user"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RefreshToken is the persisted half of a refresh credential. Only the
// SHA-256 of the secret is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

// ResetToken is a single-use password reset credential.
type ResetToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewUser carries the fields needed to create a credential record.
// Password is optional; users without one cannot sign in until reset.
type NewUser struct {
	DNI           string
	Email         string
	Password      string
	Role          Role
	Name          string
	Surname       string
	Phone         string
	Specialty     string
	LicenseNumber string
}

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	DNI       string
	Phone     string
	Email     string
	Password  string
	Name      string
	Surname   string
	Specialty string
}

// ProfilePatch lists the fields a user may change on their own record.
// Nil fields are left untouched.
type ProfilePatch struct {
	Name      *string
	Surname   *string
	Phone     *string
	Email     *string
	Specialty *string
}

// ResetRequest is the outcome of a password reset request. Token is empty
// when no account matched.
type ResetRequest struct {
	Message   string
	Token     string
	ExpiresAt time.Time
}

// UserQuery filters List.
type UserQuery struct {
	Role   Role
	Search string
	Offset int
	Limit  int
}
