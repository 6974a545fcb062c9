package models

import "time"

// Category is a user-defined label for grouping transactions. Names are
// unique per owner, case-insensitively, enforced by the database.
type Category struct {
	ID               int       `json:"id" example:"1"`
	UserID           int       `json:"-"`
	Name             string    `json:"name" example:"Groceries"`
	TransactionCount int       `json:"transaction_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Tag is a free-form label attached to transactions. Tags are created
// implicitly the first time a transaction names them.
type Tag struct {
	ID     int    `json:"id" example:"1"`
	UserID int    `json:"-"`
	Name   string `json:"name" example:"vacation"`
}
