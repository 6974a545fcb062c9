package models

import "time"

// User represents an application account. Accounts are never hard-deleted;
// operators toggle IsActive instead.
type User struct {
	ID         int        `json:"id" example:"1"`
	Username   string     `json:"username" example:"johndoe"`
	Email      string     `json:"email" example:"user@example.com"`
	FirstName  string     `json:"first_name" example:"John"`
	LastName   string     `json:"last_name" example:"Doe"`
	Role       string     `json:"role" example:"user"`
	IsVerified bool       `json:"is_verified"`
	IsActive   bool       `json:"is_active"`
	LastLogin  *time.Time `json:"last_login,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
