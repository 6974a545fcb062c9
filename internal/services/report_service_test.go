package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/fintrack/backend/internal/models"
)

func TestReportService_TopCategories(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	service := NewReportService(db, nil)

	t.Run("debit categories by total", func(t *testing.T) {
		mock.ExpectQuery("transaction_type = 'debit'").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"name", "total"}).
				AddRow("Rent", "1200.00").
				AddRow("Groceries", "300.00"))

		r := withUser(httptest.NewRequest("GET", "/app/transactions/top-categories", nil), 1)
		w := httptest.NewRecorder()

		service.TopCategories(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var totals []models.CategoryTotal
		json.Unmarshal(w.Body.Bytes(), &totals)
		assert.Len(t, totals, 2)
		assert.Equal(t, "Rent", totals[0].Category)
	})

	t.Run("malformed month rejected", func(t *testing.T) {
		r := withUser(httptest.NewRequest("GET", "/app/transactions/top-categories?month=April", nil), 1)
		w := httptest.NewRecorder()

		service.TopCategories(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReportService_SpendingTrends(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	service := NewReportService(db, nil)

	t.Run("daily trend", func(t *testing.T) {
		mock.ExpectQuery("DATE_TRUNC").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"period", "credit", "debit"}).
				AddRow("2025-04-15", "0", "42.50").
				AddRow("2025-04-16", "2500.00", "0"))

		r := withUser(httptest.NewRequest("GET", "/app/transactions/trends?mode=daily", nil), 1)
		w := httptest.NewRecorder()

		service.SpendingTrends(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var points []models.TrendPoint
		json.Unmarshal(w.Body.Bytes(), &points)
		assert.Len(t, points, 2)
		assert.Equal(t, "2025-04-15", points[0].Date)
	})

	t.Run("unknown mode rejected", func(t *testing.T) {
		r := withUser(httptest.NewRequest("GET", "/app/transactions/trends?mode=hourly", nil), 1)
		w := httptest.NewRecorder()

		service.SpendingTrends(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReportService_MonthlyReport(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	service := NewReportService(db, nil)

	t.Run("month is required", func(t *testing.T) {
		r := withUser(httptest.NewRequest("GET", "/app/transactions/monthly-report", nil), 1)
		w := httptest.NewRecorder()

		service.MonthlyReport(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed month rejected", func(t *testing.T) {
		r := withUser(httptest.NewRequest("GET", "/app/transactions/monthly-report?month=2025-4", nil), 1)
		w := httptest.NewRecorder()

		service.MonthlyReport(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("full month report", func(t *testing.T) {
		mock.ExpectQuery("SELECT COALESCE").
			WithArgs(1, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"total_credit", "total_debit", "transaction_count", "avg_amount"}).
				AddRow("2500.00", "1542.50", 12, "336.88"))
		mock.ExpectQuery("transaction_type = 'debit'").
			WithArgs(1, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Rent").AddRow("Groceries"))
		mock.ExpectQuery("FROM transaction_tags").
			WithArgs(1, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("weekly"))
		mock.ExpectQuery("ORDER BY t.date_time DESC").
			WithArgs(1, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "amount", "transaction_type", "description", "is_recurring", "date_time", "tags"}).
				AddRow(1, "Groceries", "42.50", "debit", "", false, testTime(), "{weekly}"))

		r := withUser(httptest.NewRequest("GET", "/app/transactions/monthly-report?month=2025-04", nil), 1)
		w := httptest.NewRecorder()

		service.MonthlyReport(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var report models.MonthlyReport
		json.Unmarshal(w.Body.Bytes(), &report)
		assert.Equal(t, "2025-04", report.Month)
		assert.True(t, report.Balance.Equal(decimal.RequireFromString("957.50")))
		assert.Equal(t, []string{"Rent", "Groceries"}, report.TopCategories)
		assert.Len(t, report.Transactions, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReportService_DashboardSummary(t *testing.T) {
	t.Run("served from cache when present", func(t *testing.T) {
		db, _, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		redisClient, redisMock := redismock.NewClientMock()
		cached, _ := json.Marshal(models.DashboardSummary{Balance: decimal.RequireFromString("70")})
		redisMock.ExpectGet("dashboard:1").SetVal(string(cached))

		service := NewReportService(db, redisClient)

		r := withUser(httptest.NewRequest("GET", "/app/dashboard/summary", nil), 1)
		w := httptest.NewRecorder()

		service.DashboardSummary(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var summary models.DashboardSummary
		json.Unmarshal(w.Body.Bytes(), &summary)
		assert.True(t, summary.Balance.Equal(decimal.RequireFromString("70")))
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("built from the database without redis", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT COALESCE").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"total_credit", "total_debit"}).
				AddRow("100.00", "30.00"))
		mock.ExpectQuery("ORDER BY t.date_time DESC").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "amount", "transaction_type", "description", "is_recurring", "date_time", "tags"}).
				AddRow(2, "Salary", "100.00", "credit", "", false, testTime(), "{}").
				AddRow(1, "Groceries", "30.00", "debit", "", false, testTime(), "{}"))
		mock.ExpectQuery("transaction_type = 'debit'").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"name", "total"}).AddRow("Groceries", "30.00"))
		mock.ExpectQuery("DATE_TRUNC").
			WithArgs(1, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"day", "credit", "debit"}))

		service := NewReportService(db, nil)

		r := withUser(httptest.NewRequest("GET", "/app/dashboard/summary", nil), 1)
		w := httptest.NewRecorder()

		service.DashboardSummary(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var summary models.DashboardSummary
		json.Unmarshal(w.Body.Bytes(), &summary)
		assert.True(t, summary.Balance.Equal(decimal.RequireFromString("70")))
		assert.Len(t, summary.RecentTransactions, 2)
		// Zero-filled week regardless of data
		assert.Len(t, summary.WeeklyTrend, 7)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSavingsRate(t *testing.T) {
	assert.True(t, savingsRate(decimal.Zero, decimal.RequireFromString("50")).IsZero())
	assert.True(t, savingsRate(decimal.RequireFromString("100"), decimal.RequireFromString("30")).
		Equal(decimal.RequireFromString("70.00")))
	// Spending above income goes negative, not clamped
	assert.True(t, savingsRate(decimal.RequireFromString("100"), decimal.RequireFromString("150")).
		Equal(decimal.RequireFromString("-50.00")))
}

func TestMonthBounds(t *testing.T) {
	first, next, err := monthBounds("2025-04")
	assert.NoError(t, err)
	assert.Equal(t, "2025-04-01", first.Format("2006-01-02"))
	assert.Equal(t, "2025-05-01", next.Format("2006-01-02"))

	_, _, err = monthBounds("April 2025")
	assert.Error(t, err)
}

func TestParseTopN(t *testing.T) {
	assert.Equal(t, 5, parseTopN(""))
	assert.Equal(t, 5, parseTopN("0"))
	assert.Equal(t, 5, parseTopN("many"))
	assert.Equal(t, 10, parseTopN("10"))
	assert.Equal(t, 50, parseTopN("500"))
}
