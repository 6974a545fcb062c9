package models

import "github.com/shopspring/decimal"

// MonthlySummary aggregates one calendar month of a user's activity.
type MonthlySummary struct {
	Month             string          `json:"month" example:"2025-04"`
	TotalCredit       decimal.Decimal `json:"total_credit" swaggertype:"string"`
	TotalDebit        decimal.Decimal `json:"total_debit" swaggertype:"string"`
	Balance           decimal.Decimal `json:"balance" swaggertype:"string"`
	TransactionCount  int             `json:"transaction_count"`
	AvgAmount         decimal.Decimal `json:"avg_amount" swaggertype:"string"`
	SavingsRate       decimal.Decimal `json:"savings_rate" swaggertype:"string"`
	TopCategories     []string        `json:"top_categories"`
	TopTags           []string        `json:"top_tags"`
	StartDate         string          `json:"start_date" example:"2025-04-01"`
	EndDate           string          `json:"end_date" example:"2025-04-30"`
	NetChangeFromLast decimal.Decimal `json:"net_change_from_last" swaggertype:"string"`
}

// CategoryTotal pairs a category with an aggregate amount.
type CategoryTotal struct {
	Category string          `json:"category" example:"Groceries"`
	Total    decimal.Decimal `json:"total" swaggertype:"string"`
}

// TrendPoint carries credit/debit totals for one day or week.
type TrendPoint struct {
	Date   string          `json:"date" example:"2025-04-16"`
	Credit decimal.Decimal `json:"credit" swaggertype:"string"`
	Debit  decimal.Decimal `json:"debit" swaggertype:"string"`
}

// MonthlyReport is the full report for a selected month.
type MonthlyReport struct {
	Month            string          `json:"month" example:"2025-04"`
	TotalCredit      decimal.Decimal `json:"total_credit" swaggertype:"string"`
	TotalDebit       decimal.Decimal `json:"total_debit" swaggertype:"string"`
	Balance          decimal.Decimal `json:"balance" swaggertype:"string"`
	TransactionCount int             `json:"transaction_count"`
	AvgAmount        decimal.Decimal `json:"avg_transaction_amount" swaggertype:"string"`
	SavingsRate      decimal.Decimal `json:"savings_rate" swaggertype:"string"`
	TopCategories    []string        `json:"top_categories"`
	TopTags          []string        `json:"top_tags"`
	Transactions     []Transaction   `json:"transactions"`
}

// DashboardSummary is the front-page overview payload.
type DashboardSummary struct {
	Balance            decimal.Decimal `json:"balance" swaggertype:"string"`
	TotalCredit        decimal.Decimal `json:"total_credit" swaggertype:"string"`
	TotalDebit         decimal.Decimal `json:"total_debit" swaggertype:"string"`
	RecentTransactions []Transaction   `json:"recent_transactions"`
	TopCategories      []CategoryTotal `json:"top_categories"`
	WeeklyTrend        []TrendPoint    `json:"weekly_trend"`
}
