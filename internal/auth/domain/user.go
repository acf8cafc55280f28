package domain

import "time"

// User is read by the authorization server, never written.
type User struct {
	ID           string
	Email        string
	PasswordHash string // bcrypt or argon2id
	TenantID     string
	Roles        []string
	Active       bool
	// Profile holds OIDC standard claims (name, picture, email_verified...).
	Profile   map[string]any
	CreatedAt time.Time
}
