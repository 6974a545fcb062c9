package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/models"
)

// dashboardCacheTTL keeps the dashboard fresh without hammering Postgres
// on every page load.
const dashboardCacheTTL = 60 * time.Second

type ReportService struct {
	db    *sql.DB
	redis *redis.Client
}

func NewReportService(db *sql.DB, redisClient *redis.Client) *ReportService {
	return &ReportService{
		db:    db,
		redis: redisClient,
	}
}

// MonthlySummary aggregates the caller's activity per calendar month
// @Summary Monthly summaries
// @Description Per-month totals, balance, averages, savings rate and top categories/tags
// @Tags reports
// @Produce json
// @Success 200 {array} models.MonthlySummary
// @Router /app/transactions/monthly-summary [get]
func (s *ReportService) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT TO_CHAR(date_time, 'YYYY-MM') AS month,
		       COALESCE(SUM(CASE WHEN transaction_type = 'credit' THEN amount ELSE 0 END), 0) AS total_credit,
		       COALESCE(SUM(CASE WHEN transaction_type = 'debit' THEN amount ELSE 0 END), 0) AS total_debit,
		       COUNT(*) AS transaction_count,
		       COALESCE(AVG(amount), 0) AS avg_amount
		FROM transactions
		WHERE user_id = $1
		GROUP BY month
		ORDER BY month
	`, userID)
	if err != nil {
		log.Printf("[REPORT] Monthly summary query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to build monthly summary", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	summaries := []models.MonthlySummary{}
	for rows.Next() {
		m := models.MonthlySummary{TopCategories: []string{}, TopTags: []string{}}
		if err := rows.Scan(&m.Month, &m.TotalCredit, &m.TotalDebit, &m.TransactionCount, &m.AvgAmount); err != nil {
			log.Printf("[REPORT] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to build monthly summary", http.StatusInternalServerError, nil)
			return
		}
		m.Balance = m.TotalCredit.Sub(m.TotalDebit)
		m.AvgAmount = m.AvgAmount.Round(2)
		m.SavingsRate = savingsRate(m.TotalCredit, m.TotalDebit)
		summaries = append(summaries, m)
	}
	if err := rows.Err(); err != nil {
		log.Printf("[REPORT] Row iteration failed: %v", err)
		SendErrorResponse(w, "Failed to build monthly summary", http.StatusInternalServerError, nil)
		return
	}

	for i := range summaries {
		first, next, err := monthBounds(summaries[i].Month)
		if err != nil {
			continue
		}
		summaries[i].StartDate = first.Format("2006-01-02")
		summaries[i].EndDate = next.AddDate(0, 0, -1).Format("2006-01-02")

		if summaries[i].TopCategories, err = s.topCategoryNames(userID, first, next, 3); err != nil {
			log.Printf("[REPORT] Top categories failed for %s: %v", summaries[i].Month, err)
			SendErrorResponse(w, "Failed to build monthly summary", http.StatusInternalServerError, nil)
			return
		}
		if summaries[i].TopTags, err = s.topTagNames(userID, first, next, 3); err != nil {
			log.Printf("[REPORT] Top tags failed for %s: %v", summaries[i].Month, err)
			SendErrorResponse(w, "Failed to build monthly summary", http.StatusInternalServerError, nil)
			return
		}

		if i > 0 {
			summaries[i].NetChangeFromLast = summaries[i].Balance.Sub(summaries[i-1].Balance)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// TopCategories lists the caller's biggest spending categories
// @Summary Top spending categories
// @Description Highest-total debit categories, optionally restricted to one month
// @Tags reports
// @Produce json
// @Param month query string false "Month (YYYY-MM)"
// @Param top_n query int false "Number of categories (default 5)"
// @Success 200 {array} models.CategoryTotal
// @Failure 400 {object} ErrorResponse "Malformed month"
// @Router /app/transactions/top-categories [get]
func (s *ReportService) TopCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	topN := parseTopN(r.URL.Query().Get("top_n"))

	query := `
		SELECT c.name, SUM(t.amount) AS total
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = $1 AND t.transaction_type = 'debit'`
	args := []interface{}{userID}

	if month := r.URL.Query().Get("month"); month != "" {
		first, next, err := monthBounds(month)
		if err != nil {
			SendErrorResponse(w, "Invalid month format. Use YYYY-MM.", http.StatusBadRequest, nil)
			return
		}
		query += " AND t.date_time >= $2 AND t.date_time < $3"
		args = append(args, first, next)
	}

	query += " GROUP BY c.name ORDER BY total DESC LIMIT " + strconv.Itoa(topN)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[REPORT] Top categories query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch top categories", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	totals := []models.CategoryTotal{}
	for rows.Next() {
		var ct models.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			log.Printf("[REPORT] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to fetch top categories", http.StatusInternalServerError, nil)
			return
		}
		totals = append(totals, ct)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(totals)
}

// TopTransactions lists the caller's largest transactions
// @Summary Top transactions
// @Description Largest transactions by amount, optionally filtered by type and month
// @Tags reports
// @Produce json
// @Param transaction_type query string false "credit or debit"
// @Param month query string false "Month (YYYY-MM)"
// @Param top_n query int false "Number of transactions (default 5)"
// @Success 200 {array} models.Transaction
// @Failure 400 {object} ErrorResponse "Malformed month"
// @Router /app/transactions/top [get]
func (s *ReportService) TopTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	topN := parseTopN(r.URL.Query().Get("top_n"))

	conditions := "t.user_id = $1"
	args := []interface{}{userID}
	argIndex := 2

	if txnType := r.URL.Query().Get("transaction_type"); txnType == models.TypeCredit || txnType == models.TypeDebit {
		conditions += " AND t.transaction_type = $" + strconv.Itoa(argIndex)
		args = append(args, txnType)
		argIndex++
	}

	if month := r.URL.Query().Get("month"); month != "" {
		first, next, err := monthBounds(month)
		if err != nil {
			SendErrorResponse(w, "Invalid month format. Use YYYY-MM.", http.StatusBadRequest, nil)
			return
		}
		conditions += " AND t.date_time >= $" + strconv.Itoa(argIndex) + " AND t.date_time < $" + strconv.Itoa(argIndex+1)
		args = append(args, first, next)
	}

	transactions, err := s.queryTransactions(conditions, "t.amount DESC", topN, args...)
	if err != nil {
		log.Printf("[REPORT] Top transactions query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch top transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// SpendingTrends returns credit/debit totals per day or week
// @Summary Spending trends
// @Description Chronological credit/debit totals grouped by day or week
// @Tags reports
// @Produce json
// @Param mode query string false "daily or weekly (default daily)"
// @Param month query string false "Month (YYYY-MM)"
// @Success 200 {array} models.TrendPoint
// @Failure 400 {object} ErrorResponse "Bad mode or month"
// @Router /app/transactions/trends [get]
func (s *ReportService) SpendingTrends(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "daily"
	}
	var trunc string
	switch mode {
	case "daily":
		trunc = "day"
	case "weekly":
		trunc = "week"
	default:
		SendErrorResponse(w, "Invalid mode. Use daily or weekly.", http.StatusBadRequest, nil)
		return
	}

	conditions := "user_id = $1"
	args := []interface{}{userID}

	if month := r.URL.Query().Get("month"); month != "" {
		first, next, err := monthBounds(month)
		if err != nil {
			SendErrorResponse(w, "Invalid month format. Use YYYY-MM.", http.StatusBadRequest, nil)
			return
		}
		conditions += " AND date_time >= $2 AND date_time < $3"
		args = append(args, first, next)
	}

	rows, err := s.db.Query(`
		SELECT TO_CHAR(DATE_TRUNC('`+trunc+`', date_time), 'YYYY-MM-DD') AS period,
		       COALESCE(SUM(CASE WHEN transaction_type = 'credit' THEN amount ELSE 0 END), 0) AS credit,
		       COALESCE(SUM(CASE WHEN transaction_type = 'debit' THEN amount ELSE 0 END), 0) AS debit
		FROM transactions
		WHERE `+conditions+`
		GROUP BY period
		ORDER BY period
	`, args...)
	if err != nil {
		log.Printf("[REPORT] Trend query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch trends", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	points := []models.TrendPoint{}
	for rows.Next() {
		var p models.TrendPoint
		if err := rows.Scan(&p.Date, &p.Credit, &p.Debit); err != nil {
			log.Printf("[REPORT] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to fetch trends", http.StatusInternalServerError, nil)
			return
		}
		points = append(points, p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(points)
}

// DashboardSummary builds the front-page overview
// @Summary Dashboard summary
// @Description All-time totals, recent transactions, top debit categories and a 7-day trend
// @Tags reports
// @Produce json
// @Success 200 {object} models.DashboardSummary
// @Router /app/dashboard/summary [get]
func (s *ReportService) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	cacheKey := "dashboard:" + strconv.Itoa(userID)
	if s.redis != nil {
		if cached, err := s.redis.Get(r.Context(), cacheKey).Result(); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(cached))
			return
		}
	}

	summary := models.DashboardSummary{
		RecentTransactions: []models.Transaction{},
		TopCategories:      []models.CategoryTotal{},
		WeeklyTrend:        []models.TrendPoint{},
	}

	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(CASE WHEN transaction_type = 'credit' THEN amount ELSE 0 END), 0) AS total_credit,
		       COALESCE(SUM(CASE WHEN transaction_type = 'debit' THEN amount ELSE 0 END), 0) AS total_debit
		FROM transactions
		WHERE user_id = $1
	`, userID).Scan(&summary.TotalCredit, &summary.TotalDebit)
	if err != nil {
		log.Printf("[REPORT] Dashboard totals failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to build dashboard", http.StatusInternalServerError, nil)
		return
	}
	summary.Balance = summary.TotalCredit.Sub(summary.TotalDebit)

	if summary.RecentTransactions, err = s.queryTransactions("t.user_id = $1", "t.date_time DESC", 5, userID); err != nil {
		log.Printf("[REPORT] Dashboard recent transactions failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to build dashboard", http.StatusInternalServerError, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT c.name, SUM(t.amount) AS total
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = $1 AND t.transaction_type = 'debit'
		GROUP BY c.name
		ORDER BY total DESC
		LIMIT 3
	`, userID)
	if err != nil {
		log.Printf("[REPORT] Dashboard top categories failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to build dashboard", http.StatusInternalServerError, nil)
		return
	}
	for rows.Next() {
		var ct models.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total); err != nil {
			rows.Close()
			log.Printf("[REPORT] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to build dashboard", http.StatusInternalServerError, nil)
			return
		}
		summary.TopCategories = append(summary.TopCategories, ct)
	}
	rows.Close()

	weekAgo := time.Now().AddDate(0, 0, -6).Truncate(24 * time.Hour)
	trendRows, err := s.db.Query(`
		SELECT TO_CHAR(DATE_TRUNC('day', date_time), 'YYYY-MM-DD') AS day,
		       COALESCE(SUM(CASE WHEN transaction_type = 'credit' THEN amount ELSE 0 END), 0) AS credit,
		       COALESCE(SUM(CASE WHEN transaction_type = 'debit' THEN amount ELSE 0 END), 0) AS debit
		FROM transactions
		WHERE user_id = $1 AND date_time >= $2
		GROUP BY day
		ORDER BY day
	`, userID, weekAgo)
	if err != nil {
		log.Printf("[REPORT] Dashboard trend failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to build dashboard", http.StatusInternalServerError, nil)
		return
	}
	byDay := map[string]models.TrendPoint{}
	for trendRows.Next() {
		var p models.TrendPoint
		if err := trendRows.Scan(&p.Date, &p.Credit, &p.Debit); err != nil {
			trendRows.Close()
			log.Printf("[REPORT] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to build dashboard", http.StatusInternalServerError, nil)
			return
		}
		byDay[p.Date] = p
	}
	trendRows.Close()

	// Zero-fill so the chart always spans the full week.
	for i := 0; i < 7; i++ {
		day := weekAgo.AddDate(0, 0, i).Format("2006-01-02")
		if p, found := byDay[day]; found {
			summary.WeeklyTrend = append(summary.WeeklyTrend, p)
		} else {
			summary.WeeklyTrend = append(summary.WeeklyTrend, models.TrendPoint{
				Date:   day,
				Credit: decimal.Zero,
				Debit:  decimal.Zero,
			})
		}
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		log.Printf("[REPORT] Dashboard marshal failed: %v", err)
		SendErrorResponse(w, "Failed to build dashboard", http.StatusInternalServerError, nil)
		return
	}

	if s.redis != nil {
		if err := s.redis.Set(r.Context(), cacheKey, payload, dashboardCacheTTL).Err(); err != nil {
			log.Printf("[REPORT] Dashboard cache write failed: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

// MonthlyReport builds the full report for one month
// @Summary Monthly report
// @Description Totals, averages, savings rate, top categories/tags and the month's transactions
// @Tags reports
// @Produce json
// @Param month query string true "Month (YYYY-MM)"
// @Success 200 {object} models.MonthlyReport
// @Failure 400 {object} ErrorResponse "Missing or malformed month"
// @Router /app/transactions/monthly-report [get]
func (s *ReportService) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	month := r.URL.Query().Get("month")
	if month == "" {
		SendErrorResponse(w, "month query parameter is required (YYYY-MM)", http.StatusBadRequest, nil)
		return
	}
	first, next, err := monthBounds(month)
	if err != nil {
		SendErrorResponse(w, "Invalid month format. Use YYYY-MM.", http.StatusBadRequest, nil)
		return
	}

	report := models.MonthlyReport{
		Month:         month,
		TopCategories: []string{},
		TopTags:       []string{},
		Transactions:  []models.Transaction{},
	}

	err = s.db.QueryRow(`
		SELECT COALESCE(SUM(CASE WHEN transaction_type = 'credit' THEN amount ELSE 0 END), 0) AS total_credit,
		       COALESCE(SUM(CASE WHEN transaction_type = 'debit' THEN amount ELSE 0 END), 0) AS total_debit,
		       COUNT(*) AS transaction_count,
		       COALESCE(AVG(amount), 0) AS avg_amount
		FROM transactions
		WHERE user_id = $1 AND date_time >= $2 AND date_time < $3
	`, userID, first, next).Scan(&report.TotalCredit, &report.TotalDebit, &report.TransactionCount, &report.AvgAmount)
	if err != nil {
		log.Printf("[REPORT] Monthly report totals failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to build monthly report", http.StatusInternalServerError, nil)
		return
	}
	report.Balance = report.TotalCredit.Sub(report.TotalDebit)
	report.AvgAmount = report.AvgAmount.Round(2)
	report.SavingsRate = savingsRate(report.TotalCredit, report.TotalDebit)

	if report.TopCategories, err = s.topCategoryNames(userID, first, next, 3); err != nil {
		log.Printf("[REPORT] Monthly report categories failed: %v", err)
		SendErrorResponse(w, "Failed to build monthly report", http.StatusInternalServerError, nil)
		return
	}
	if report.TopTags, err = s.topTagNames(userID, first, next, 3); err != nil {
		log.Printf("[REPORT] Monthly report tags failed: %v", err)
		SendErrorResponse(w, "Failed to build monthly report", http.StatusInternalServerError, nil)
		return
	}

	report.Transactions, err = s.queryTransactions(
		"t.user_id = $1 AND t.date_time >= $2 AND t.date_time < $3", "t.date_time DESC", 0,
		userID, first, next,
	)
	if err != nil {
		log.Printf("[REPORT] Monthly report transactions failed: %v", err)
		SendErrorResponse(w, "Failed to build monthly report", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// queryTransactions runs the joined transaction select with the given WHERE
// conditions and ordering. limit <= 0 means no limit.
func (s *ReportService) queryTransactions(conditions, orderBy string, limit int, args ...interface{}) ([]models.Transaction, error) {
	query := `
		SELECT t.id, c.name, t.amount, t.transaction_type, COALESCE(t.description, ''), t.is_recurring, t.date_time,
		       COALESCE(ARRAY_AGG(tg.name ORDER BY tg.name) FILTER (WHERE tg.name IS NOT NULL), '{}') AS tags
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		LEFT JOIN transaction_tags tt ON tt.transaction_id = t.id
		LEFT JOIN tags tg ON tg.id = tt.tag_id
		WHERE ` + conditions + `
		GROUP BY t.id, c.name
		ORDER BY ` + orderBy
	if limit > 0 {
		query += " LIMIT " + strconv.Itoa(limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t := models.Transaction{Tags: []string{}}
		var tags pq.StringArray
		if err := rows.Scan(&t.ID, &t.Category, &t.Amount, &t.Type, &t.Description, &t.IsRecurring, &t.DateTime, &tags); err != nil {
			return nil, err
		}
		t.Tags = append(t.Tags, tags...)
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (s *ReportService) topCategoryNames(userID int, from, until time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT c.name
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = $1 AND t.transaction_type = 'debit' AND t.date_time >= $2 AND t.date_time < $3
		GROUP BY c.name
		ORDER BY SUM(t.amount) DESC
		LIMIT `+strconv.Itoa(limit), userID, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *ReportService) topTagNames(userID int, from, until time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT tg.name
		FROM transaction_tags tt
		JOIN tags tg ON tg.id = tt.tag_id
		JOIN transactions t ON t.id = tt.transaction_id
		WHERE t.user_id = $1 AND t.date_time >= $2 AND t.date_time < $3
		GROUP BY tg.name
		ORDER BY COUNT(*) DESC
		LIMIT `+strconv.Itoa(limit), userID, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// savingsRate is (credit - debit) / credit * 100, rounded to 2 places.
// Zero income means a zero rate rather than a division fault.
func savingsRate(credit, debit decimal.Decimal) decimal.Decimal {
	if !credit.IsPositive() {
		return decimal.Zero
	}
	return credit.Sub(debit).Mul(decimal.NewFromInt(100)).Div(credit).Round(2)
}

// monthBounds parses YYYY-MM and returns the first day of that month and
// the first day of the next.
func monthBounds(month string) (time.Time, time.Time, error) {
	first, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return first, first.AddDate(0, 1, 0), nil
}

func parseTopN(raw string) int {
	if raw == "" {
		return 5
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 5
	}
	if n > 50 {
		return 50
	}
	return n
}
