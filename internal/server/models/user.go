package models

import "time"

// Role names known to the directory.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a directory entry together with its credential.
type User struct {
	ID            string
	Username      string
	Email         string
	FullName      string
	Role          string
	EmailVerified bool
	CreatedAt     time.Time

	PasswordHash  string
	HashAlgorithm string
}

// Identity is the read projection returned to callers after a successful
// login or session verification.
type Identity struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	FullName      string `json:"fullName"`
	Role          string `json:"role"`
}

// Identity returns the public snapshot of u.
func (u *User) Identity() Identity {
	return Identity{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		FullName:      u.FullName,
		Role:          u.Role,
	}
}
