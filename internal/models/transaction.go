package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. A credit raises the owner's balance, a debit lowers it.
const (
	TypeCredit = "credit"
	TypeDebit  = "debit"
)

// Transaction is a single recorded credit or debit event tied to a user and
// category. Amounts are always positive; the type carries the sign.
type Transaction struct {
	ID          int             `json:"id" example:"1"`
	UserID      int             `json:"-"`
	CategoryID  int             `json:"-"`
	Category    string          `json:"category" example:"Groceries"`
	Amount      decimal.Decimal `json:"amount" swaggertype:"string" example:"42.50"`
	Type        string          `json:"transaction_type" example:"debit"`
	Description string          `json:"description,omitempty"`
	IsRecurring bool            `json:"is_recurring"`
	Tags        []string        `json:"tags"`
	DateTime    time.Time       `json:"date_time"`
	CreatedAt   time.Time       `json:"-"`
}

// CategoryShare is one row of the category percentage report.
type CategoryShare struct {
	Category    string          `json:"category" example:"Groceries"`
	TotalAmount decimal.Decimal `json:"total_amount" swaggertype:"string" example:"130.00"`
	Percentage  decimal.Decimal `json:"percentage" swaggertype:"string" example:"100.00"`
}
