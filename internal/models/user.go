package models

import "time"

// User is an account, anonymous or email-backed.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	IsAnonymous  bool      `json:"isAnonymous"`
	CreatedAt    time.Time `json:"createdAt"`
}
