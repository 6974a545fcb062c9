package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/models"
)

type TransactionService struct {
	db        *sql.DB
	validator *ValidationHelper
}

// TransactionRequest represents the transaction creation payload.
// The category is referenced by name and must already exist for the caller.
// @Description Transaction creation structure
type TransactionRequest struct {
	Category    string          `json:"category" validate:"required" example:"Groceries"`
	Amount      decimal.Decimal `json:"amount" swaggertype:"string" example:"42.50"`
	Type        string          `json:"transaction_type" validate:"required,oneof=credit debit" example:"debit"`
	Description string          `json:"description" validate:"max=1000"`
	IsRecurring bool            `json:"is_recurring"`
	Tags        []string        `json:"tags"`
}

// TransactionUpdateRequest carries a partial update; absent fields keep
// their stored values.
// @Description Transaction update structure
type TransactionUpdateRequest struct {
	Category    *string          `json:"category"`
	Amount      *decimal.Decimal `json:"amount" swaggertype:"string"`
	Type        *string          `json:"transaction_type" validate:"omitempty,oneof=credit debit"`
	Description *string          `json:"description"`
	IsRecurring *bool            `json:"is_recurring"`
	Tags        *[]string        `json:"tags"`
}

func NewTransactionService(db *sql.DB) *TransactionService {
	return &TransactionService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// CreateTransaction records a credit or debit
// @Summary Create a transaction
// @Description Record a credit or debit against one of the caller's categories
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body TransactionRequest true "Transaction data"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 404 {object} ErrorResponse "Category not found"
// @Router /app/transactions [post]
func (s *TransactionService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req TransactionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if !req.Amount.IsPositive() {
		SendErrorResponse(w, "Amount must be greater than 0", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[TRANSACTION] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	categoryID, categoryName, err := resolveCategory(tx, userID, req.Category)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, fmt.Sprintf("Category %q does not exist for this user", req.Category), http.StatusNotFound, nil)
			return
		}
		log.Printf("[TRANSACTION] Category lookup failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
		return
	}

	record := models.Transaction{
		UserID:      userID,
		CategoryID:  categoryID,
		Category:    categoryName,
		Amount:      req.Amount,
		Type:        req.Type,
		Description: req.Description,
		IsRecurring: req.IsRecurring,
		Tags:        []string{},
	}

	err = tx.QueryRow(
		"INSERT INTO transactions (user_id, category_id, amount, transaction_type, description, is_recurring) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, date_time",
		userID, categoryID, req.Amount, req.Type, req.Description, req.IsRecurring,
	).Scan(&record.ID, &record.DateTime)
	if err != nil {
		log.Printf("[TRANSACTION] Insert failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
		return
	}

	if len(req.Tags) > 0 {
		if err := replaceTransactionTags(tx, record.ID, userID, req.Tags); err != nil {
			log.Printf("[TRANSACTION] Tag attach failed for transaction %d: %v", record.ID, err)
			SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
			return
		}
		record.Tags = normalizeTagNames(req.Tags)
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[TRANSACTION] Commit failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TRANSACTION] Created transaction %d (%s %s) for user %d", record.ID, record.Type, record.Amount, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

// ListTransactions retrieves the caller's transactions with optional filters
// @Summary List transactions
// @Description Get the caller's transactions, newest first, with optional filters
// @Tags transactions
// @Produce json
// @Param start_date query string false "Inclusive lower bound (YYYY-MM-DD)"
// @Param end_date query string false "Inclusive upper bound (YYYY-MM-DD)"
// @Param transaction_type query string false "credit or debit"
// @Param min_amount query string false "Minimum amount"
// @Param max_amount query string false "Maximum amount"
// @Param category query string false "Category name substring (case-insensitive)"
// @Param is_recurring query string false "true or false"
// @Param tags query string false "Exact tag name"
// @Success 200 {array} models.Transaction
// @Failure 400 {object} ErrorResponse "Malformed filter"
// @Router /app/transactions [get]
func (s *TransactionService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	conditions := []string{"t.user_id = $1"}
	args := []interface{}{userID}
	argIndex := 2

	addCondition := func(cond string, arg interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argIndex))
		args = append(args, arg)
		argIndex++
	}

	q := r.URL.Query()

	if startDate := q.Get("start_date"); startDate != "" {
		day, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			SendErrorResponse(w, "Invalid start_date format. Use YYYY-MM-DD.", http.StatusBadRequest, nil)
			return
		}
		addCondition("t.date_time >= $%d", day)
	}

	if endDate := q.Get("end_date"); endDate != "" {
		day, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			SendErrorResponse(w, "Invalid end_date format. Use YYYY-MM-DD.", http.StatusBadRequest, nil)
			return
		}
		// Inclusive of the whole end day.
		addCondition("t.date_time < $%d", day.AddDate(0, 0, 1))
	}

	if txnType := q.Get("transaction_type"); txnType == models.TypeCredit || txnType == models.TypeDebit {
		addCondition("t.transaction_type = $%d", txnType)
	}

	if minAmount := q.Get("min_amount"); minAmount != "" {
		amt, err := decimal.NewFromString(minAmount)
		if err != nil {
			SendErrorResponse(w, "Invalid min_amount", http.StatusBadRequest, nil)
			return
		}
		addCondition("t.amount >= $%d", amt)
	}

	if maxAmount := q.Get("max_amount"); maxAmount != "" {
		amt, err := decimal.NewFromString(maxAmount)
		if err != nil {
			SendErrorResponse(w, "Invalid max_amount", http.StatusBadRequest, nil)
			return
		}
		addCondition("t.amount <= $%d", amt)
	}

	if category := q.Get("category"); category != "" {
		addCondition("c.name ILIKE $%d", "%"+category+"%")
	}

	switch q.Get("is_recurring") {
	case "true":
		conditions = append(conditions, "t.is_recurring = TRUE")
	case "false":
		conditions = append(conditions, "t.is_recurring = FALSE")
	}

	if tagName := q.Get("tags"); tagName != "" {
		addCondition("EXISTS (SELECT 1 FROM transaction_tags tt2 JOIN tags tg2 ON tg2.id = tt2.tag_id WHERE tt2.transaction_id = t.id AND LOWER(tg2.name) = LOWER($%d))", tagName)
	}

	query := `
		SELECT t.id, c.name, t.amount, t.transaction_type, COALESCE(t.description, ''), t.is_recurring, t.date_time,
		       COALESCE(ARRAY_AGG(tg.name ORDER BY tg.name) FILTER (WHERE tg.name IS NOT NULL), '{}') AS tags
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		LEFT JOIN transaction_tags tt ON tt.transaction_id = t.id
		LEFT JOIN tags tg ON tg.id = tt.tag_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		GROUP BY t.id, c.name
		ORDER BY t.date_time DESC
	`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		log.Printf("[TRANSACTION] List failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t := models.Transaction{UserID: userID, Tags: []string{}}
		var tags pq.StringArray
		if err := rows.Scan(&t.ID, &t.Category, &t.Amount, &t.Type, &t.Description, &t.IsRecurring, &t.DateTime, &tags); err != nil {
			log.Printf("[TRANSACTION] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
			return
		}
		t.Tags = append(t.Tags, tags...)
		transactions = append(transactions, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

// GetTransaction retrieves a single transaction owned by the caller
// @Summary Get a transaction
// @Description Retrieve one of the caller's transactions by ID
// @Tags transactions
// @Produce json
// @Param transactionID path int true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Router /app/transactions/{transactionID} [get]
func (s *TransactionService) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	transactionID, err := strconv.Atoi(chi.URLParam(r, "transactionID"))
	if err != nil {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	t, err := s.fetchTransaction(userID, transactionID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[TRANSACTION] Fetch failed for transaction %d: %v", transactionID, err)
			SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

// UpdateTransaction applies a partial update to a transaction
// @Summary Update a transaction
// @Description Update fields of one of the caller's transactions
// @Tags transactions
// @Accept json
// @Produce json
// @Param transactionID path int true "Transaction ID"
// @Param request body TransactionUpdateRequest true "Fields to update"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 404 {object} ErrorResponse "Transaction or category not found"
// @Router /app/transactions/{transactionID} [put]
func (s *TransactionService) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	transactionID, err := strconv.Atoi(chi.URLParam(r, "transactionID"))
	if err != nil {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	var req TransactionUpdateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.Amount != nil && !req.Amount.IsPositive() {
		SendErrorResponse(w, "Amount must be greater than 0", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[TRANSACTION] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to update transaction", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1 AND user_id = $2)", transactionID, userID).Scan(&exists); err != nil {
		log.Printf("[TRANSACTION] Ownership check failed for transaction %d: %v", transactionID, err)
		SendErrorResponse(w, "Failed to update transaction", http.StatusInternalServerError, nil)
		return
	}
	if !exists {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	setClauses := []string{}
	args := []interface{}{}
	argIndex := 1

	addSet := func(clause string, arg interface{}) {
		setClauses = append(setClauses, fmt.Sprintf(clause, argIndex))
		args = append(args, arg)
		argIndex++
	}

	if req.Category != nil {
		categoryID, _, err := resolveCategory(tx, userID, *req.Category)
		if err != nil {
			if err == sql.ErrNoRows {
				SendErrorResponse(w, fmt.Sprintf("Category %q does not exist for this user", *req.Category), http.StatusNotFound, nil)
				return
			}
			log.Printf("[TRANSACTION] Category lookup failed: %v", err)
			SendErrorResponse(w, "Failed to update transaction", http.StatusInternalServerError, nil)
			return
		}
		addSet("category_id = $%d", categoryID)
	}
	if req.Amount != nil {
		addSet("amount = $%d", *req.Amount)
	}
	if req.Type != nil {
		addSet("transaction_type = $%d", *req.Type)
	}
	if req.Description != nil {
		addSet("description = $%d", *req.Description)
	}
	if req.IsRecurring != nil {
		addSet("is_recurring = $%d", *req.IsRecurring)
	}

	if len(setClauses) > 0 {
		query := fmt.Sprintf("UPDATE transactions SET %s WHERE id = $%d AND user_id = $%d",
			strings.Join(setClauses, ", "), argIndex, argIndex+1)
		args = append(args, transactionID, userID)
		if _, err := tx.Exec(query, args...); err != nil {
			log.Printf("[TRANSACTION] Update failed for transaction %d: %v", transactionID, err)
			SendErrorResponse(w, "Failed to update transaction", http.StatusInternalServerError, nil)
			return
		}
	}

	if req.Tags != nil {
		if err := replaceTransactionTags(tx, transactionID, userID, *req.Tags); err != nil {
			log.Printf("[TRANSACTION] Tag update failed for transaction %d: %v", transactionID, err)
			SendErrorResponse(w, "Failed to update transaction", http.StatusInternalServerError, nil)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[TRANSACTION] Commit failed for transaction %d: %v", transactionID, err)
		SendErrorResponse(w, "Failed to update transaction", http.StatusInternalServerError, nil)
		return
	}

	t, err := s.fetchTransaction(userID, transactionID)
	if err != nil {
		log.Printf("[TRANSACTION] Refetch failed for transaction %d: %v", transactionID, err)
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[TRANSACTION] Updated transaction %d for user %d", transactionID, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

// DeleteTransaction removes a transaction owned by the caller
// @Summary Delete a transaction
// @Description Delete one of the caller's transactions
// @Tags transactions
// @Produce json
// @Param transactionID path int true "Transaction ID"
// @Success 200 {object} map[string]string "Transaction deleted"
// @Failure 404 {object} ErrorResponse "Transaction not found"
// @Router /app/transactions/{transactionID} [delete]
func (s *TransactionService) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	transactionID, err := strconv.Atoi(chi.URLParam(r, "transactionID"))
	if err != nil {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	result, err := s.db.Exec("DELETE FROM transactions WHERE id = $1 AND user_id = $2", transactionID, userID)
	if err != nil {
		log.Printf("[TRANSACTION] Delete failed for transaction %d: %v", transactionID, err)
		SendErrorResponse(w, "Failed to delete transaction", http.StatusInternalServerError, nil)
		return
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[TRANSACTION] Deleted transaction %d for user %d", transactionID, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Transaction deleted"})
}

// GetBalance computes the caller's running balance
// @Summary Get balance
// @Description Sum of credits minus sum of debits, exact decimal; 0 with no transactions
// @Tags transactions
// @Produce json
// @Param start_date query string false "Inclusive lower bound (YYYY-MM-DD)"
// @Param end_date query string false "Inclusive upper bound (YYYY-MM-DD)"
// @Param transaction_type query string false "credit or debit"
// @Success 200 {object} map[string]string "Balance"
// @Failure 400 {object} ErrorResponse "Malformed filter"
// @Router /app/balance [get]
func (s *TransactionService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	conditions := []string{"user_id = $1"}
	args := []interface{}{userID}
	argIndex := 2

	q := r.URL.Query()

	if startDate := q.Get("start_date"); startDate != "" {
		day, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			SendErrorResponse(w, "Invalid start_date format. Use YYYY-MM-DD.", http.StatusBadRequest, nil)
			return
		}
		conditions = append(conditions, fmt.Sprintf("date_time >= $%d", argIndex))
		args = append(args, day)
		argIndex++
	}

	if endDate := q.Get("end_date"); endDate != "" {
		day, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			SendErrorResponse(w, "Invalid end_date format. Use YYYY-MM-DD.", http.StatusBadRequest, nil)
			return
		}
		conditions = append(conditions, fmt.Sprintf("date_time < $%d", argIndex))
		args = append(args, day.AddDate(0, 0, 1))
		argIndex++
	}

	if txnType := q.Get("transaction_type"); txnType == models.TypeCredit || txnType == models.TypeDebit {
		conditions = append(conditions, fmt.Sprintf("transaction_type = $%d", argIndex))
		args = append(args, txnType)
		argIndex++
	}

	query := "SELECT COALESCE(SUM(CASE WHEN transaction_type = 'credit' THEN amount ELSE -amount END), 0) FROM transactions WHERE " +
		strings.Join(conditions, " AND ")

	var balance decimal.Decimal
	if err := s.db.QueryRow(query, args...).Scan(&balance); err != nil {
		log.Printf("[TRANSACTION] Balance query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to compute balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{"balance": balance})
}

// GetCategoryPercentages reports each category's share of total volume
// @Summary Category percentage report
// @Description Per-category totals over the magnitude of all transactions, with percentage shares
// @Tags transactions
// @Produce json
// @Success 200 {array} models.CategoryShare
// @Router /app/transactions/category-percentage [get]
func (s *TransactionService) GetCategoryPercentages(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT c.name, SUM(t.amount) AS total_amount
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = $1
		GROUP BY c.name
		ORDER BY total_amount DESC
	`, userID)
	if err != nil {
		log.Printf("[TRANSACTION] Category percentage query failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to compute category percentages", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	shares := []models.CategoryShare{}
	overall := decimal.Zero
	for rows.Next() {
		var share models.CategoryShare
		if err := rows.Scan(&share.Category, &share.TotalAmount); err != nil {
			log.Printf("[TRANSACTION] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to compute category percentages", http.StatusInternalServerError, nil)
			return
		}
		overall = overall.Add(share.TotalAmount)
		shares = append(shares, share)
	}

	// A user with no volume gets an empty report, never a division fault.
	if overall.IsZero() {
		shares = []models.CategoryShare{}
	} else {
		hundred := decimal.NewFromInt(100)
		for i := range shares {
			shares[i].Percentage = shares[i].TotalAmount.Mul(hundred).Div(overall).Round(2)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(shares)
}

// resolveCategory maps a category name to its ID within the caller's scope,
// case-insensitively. Returns sql.ErrNoRows when the caller owns no such
// category.
func resolveCategory(tx *sql.Tx, userID int, name string) (int, string, error) {
	var id int
	var storedName string
	err := tx.QueryRow(
		"SELECT id, name FROM categories WHERE user_id = $1 AND LOWER(name) = LOWER($2)",
		userID, strings.TrimSpace(name),
	).Scan(&id, &storedName)
	return id, storedName, err
}

func (s *TransactionService) fetchTransaction(userID, transactionID int) (*models.Transaction, error) {
	t := &models.Transaction{UserID: userID, Tags: []string{}}
	var tags pq.StringArray
	err := s.db.QueryRow(`
		SELECT t.id, c.name, t.amount, t.transaction_type, COALESCE(t.description, ''), t.is_recurring, t.date_time,
		       COALESCE(ARRAY_AGG(tg.name ORDER BY tg.name) FILTER (WHERE tg.name IS NOT NULL), '{}') AS tags
		FROM transactions t
		JOIN categories c ON c.id = t.category_id
		LEFT JOIN transaction_tags tt ON tt.transaction_id = t.id
		LEFT JOIN tags tg ON tg.id = tt.tag_id
		WHERE t.id = $1 AND t.user_id = $2
		GROUP BY t.id, c.name
	`, transactionID, userID).Scan(&t.ID, &t.Category, &t.Amount, &t.Type, &t.Description, &t.IsRecurring, &t.DateTime, &tags)
	if err != nil {
		return nil, err
	}
	t.Tags = append(t.Tags, tags...)
	return t, nil
}

func normalizeTagNames(names []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true
		out = append(out, name)
	}
	return out
}
