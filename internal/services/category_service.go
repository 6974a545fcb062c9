package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fintrack/backend/internal/models"
)

type CategoryService struct {
	db        *sql.DB
	validator *ValidationHelper
}

// CategoryRequest represents the category creation payload
// @Description Category creation structure
type CategoryRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100" example:"Groceries"`
}

func NewCategoryService(db *sql.DB) *CategoryService {
	return &CategoryService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// ListCategories retrieves the caller's categories
// @Summary List categories
// @Description Get all categories owned by the authenticated user, with transaction counts
// @Tags categories
// @Produce json
// @Success 200 {array} models.Category
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /app/categories [get]
func (s *CategoryService) ListCategories(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT c.id, c.name, c.created_at, COUNT(t.id) AS transaction_count
		FROM categories c
		LEFT JOIN transactions t ON t.category_id = c.id
		WHERE c.user_id = $1
		GROUP BY c.id, c.name, c.created_at
		ORDER BY c.name
	`, userID)
	if err != nil {
		log.Printf("[CATEGORY] Failed to list categories for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch categories", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c := models.Category{UserID: userID}
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt, &c.TransactionCount); err != nil {
			log.Printf("[CATEGORY] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to fetch categories", http.StatusInternalServerError, nil)
			return
		}
		categories = append(categories, c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(categories)
}

// CreateCategory creates a category for the caller
// @Summary Create a category
// @Description Create a new category; names are unique per user, case-insensitively
// @Tags categories
// @Accept json
// @Produce json
// @Param request body CategoryRequest true "Category data"
// @Success 201 {object} models.Category
// @Failure 400 {object} ErrorResponse "Validation error"
// @Failure 409 {object} ErrorResponse "Category already exists"
// @Router /app/categories [post]
func (s *CategoryService) CreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req CategoryRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	c := models.Category{UserID: userID, Name: req.Name}
	err := s.db.QueryRow(
		"INSERT INTO categories (user_id, name) VALUES ($1, $2) RETURNING id, created_at",
		userID, req.Name,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[CATEGORY] Duplicate category %q for user %d", req.Name, userID)
			SendErrorResponse(w, "Category already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[CATEGORY] Failed to create category for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create category", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CATEGORY] Created category %d (%q) for user %d", c.ID, c.Name, userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(c)
}

// DeleteCategory removes an empty category owned by the caller
// @Summary Delete a category
// @Description Delete a category; rejected while transactions still reference it
// @Tags categories
// @Produce json
// @Param categoryID path int true "Category ID"
// @Success 200 {object} map[string]string "Category deleted"
// @Failure 404 {object} ErrorResponse "Category not found"
// @Failure 409 {object} ErrorResponse "Category still in use"
// @Router /app/categories/{categoryID} [delete]
func (s *CategoryService) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	categoryID, err := strconv.Atoi(chi.URLParam(r, "categoryID"))
	if err != nil {
		SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
		return
	}

	var inUse bool
	err = s.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM transactions WHERE category_id = $1 AND user_id = $2)",
		categoryID, userID,
	).Scan(&inUse)
	if err != nil {
		log.Printf("[CATEGORY] Usage check failed for category %d: %v", categoryID, err)
		SendErrorResponse(w, "Failed to delete category", http.StatusInternalServerError, nil)
		return
	}
	if inUse {
		SendErrorResponse(w, "Category has transactions and cannot be deleted", http.StatusConflict, nil)
		return
	}

	result, err := s.db.Exec("DELETE FROM categories WHERE id = $1 AND user_id = $2", categoryID, userID)
	if err != nil {
		// The RESTRICT constraint closes the race between the check and the delete.
		if isForeignKeyViolation(err) {
			SendErrorResponse(w, "Category has transactions and cannot be deleted", http.StatusConflict, nil)
			return
		}
		log.Printf("[CATEGORY] Failed to delete category %d: %v", categoryID, err)
		SendErrorResponse(w, "Failed to delete category", http.StatusInternalServerError, nil)
		return
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		SendErrorResponse(w, "Category not found", http.StatusNotFound, nil)
		return
	}

	log.Printf("[CATEGORY] Deleted category %d for user %d", categoryID, userID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Category deleted"})
}
