package users

import (
	"time"
	"unicode"
	"unicode/utf8"
)

// RoleType represents an application role carried in access tokens
type RoleType string

const (
	RoleUser  RoleType = "user"  // Every registered account
	RoleAdmin RoleType = "admin" // Can manage other accounts
)

type User struct {
	ID            string     `json:"userId"`    // Unique identifier for the user
	Username      string     `json:"userName"`  // Display name chosen at registration
	Email         string     `json:"email"`     // Unique, compared case-insensitively
	PasswordHash  string     `json:"-"`         // Hashed password - never serialize
	Roles         []RoleType `json:"roles"`     // Roles copied into access tokens
	RefreshTokens []string   `json:"-"`         // Currently valid refresh tokens, one per device
	CreatedAt     time.Time  `json:"createdAt"` // Registration time
}

// Profile is the public view of a user sent to the browser.
type Profile struct {
	UserID    string     `json:"userId"`
	UserName  string     `json:"userName"`
	Email     string     `json:"email"`
	Roles     []RoleType `json:"roles"`
	CreatedAt time.Time  `json:"createdAt"`
}

func (u *User) Profile() Profile {
	roles := make([]RoleType, len(u.Roles))
	copy(roles, u.Roles)
	return Profile{
		UserID:    u.ID,
		UserName:  u.Username,
		Email:     u.Email,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
	}
}

func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		names = append(names, string(role))
	}
	return names
}

func (u *User) HasRefreshToken(token string) bool {
	for _, t := range u.RefreshTokens {
		if t == token {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores never hand out their internal slices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append([]RoleType(nil), u.Roles...)
	c.RefreshTokens = append([]string(nil), u.RefreshTokens...)
	return &c
}

// WithoutToken returns a new slice holding every token except the given one.
func WithoutToken(tokens []string, token string) []string {
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	return kept
}

const (
	MinPasswordLength = 12
	// bcrypt ignores everything past 72 bytes, so longer passwords are refused.
	MaxPasswordBytes = 72
)

// PasswordLongEnough counts characters, not bytes.
func PasswordLongEnough(password string) bool {
	return utf8.RuneCountInString(password) >= MinPasswordLength
}

// PasswordStrong reports whether the password mixes lower case, upper case,
// digit and symbol characters.
func PasswordStrong(password string) bool {
	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
		hasSymbol bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char), unicode.IsSymbol(char), unicode.IsSpace(char):
			hasSymbol = true
		}
	}

	return hasUpper && hasLower && hasNumber && hasSymbol
}
