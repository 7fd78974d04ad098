package domain

import "time"

type User struct {
	ID            string
	Username      string // login name
	PreferredName string
	PasswordHash  string // argon2 encoded
	TOTPSecret    string // base32, empty when TOTP is not enrolled
	Disabled      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (u *User) HasTOTP() bool { return u.TOTPSecret != "" }
