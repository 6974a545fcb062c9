package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fintrack/backend/internal/models"
)

type AdminService struct {
	db *sql.DB
}

// UserStatusRequest toggles an account's active flag.
// @Description Account status update structure
type UserStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// UserListResponse is a page of users.
type UserListResponse struct {
	Users    []models.User `json:"users"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Total    int           `json:"total"`
}

// SystemStats summarizes platform-wide activity.
type SystemStats struct {
	TotalUsers        int             `json:"total_users"`
	VerifiedUsers     int             `json:"verified_users"`
	ActiveUsers       int             `json:"active_users"`
	TotalCategories   int             `json:"total_categories"`
	TotalTransactions int             `json:"total_transactions"`
	GrossVolume       decimal.Decimal `json:"gross_volume" swaggertype:"string"`
}

func NewAdminService(db *sql.DB) *AdminService {
	return &AdminService{db: db}
}

// ListUsers retrieves a page of accounts
// @Summary List users
// @Description Paged listing of all accounts (admin only)
// @Tags admin
// @Produce json
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} UserListResponse
// @Failure 403 {object} ErrorResponse "Admin access required"
// @Router /admin/users [get]
func (s *AdminService) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&total); err != nil {
		log.Printf("[ADMIN] User count failed: %v", err)
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}

	rows, err := s.db.Query(`
		SELECT id, username, email, COALESCE(first_name, ''), COALESCE(last_name, ''), role, is_verified, is_active, last_login, created_at, updated_at
		FROM users
		ORDER BY id
		LIMIT $1 OFFSET $2
	`, pageSize, (page-1)*pageSize)
	if err != nil {
		log.Printf("[ADMIN] User listing failed: %v", err)
		SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Role, &u.IsVerified, &u.IsActive, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			log.Printf("[ADMIN] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to fetch users", http.StatusInternalServerError, nil)
			return
		}
		users = append(users, u)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UserListResponse{
		Users:    users,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// UpdateUserStatus activates or deactivates an account
// @Summary Update account status
// @Description Activate or deactivate an account; accounts are never hard-deleted
// @Tags admin
// @Accept json
// @Produce json
// @Param userID path int true "User ID"
// @Param request body UserStatusRequest true "Status"
// @Success 200 {object} map[string]string "Status updated"
// @Failure 400 {object} ErrorResponse "Invalid body"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /admin/users/{userID}/status [put]
func (s *AdminService) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	var req UserStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.IsActive == nil {
		SendErrorResponse(w, "is_active is required", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec("UPDATE users SET is_active = $1, updated_at = NOW() WHERE id = $2", *req.IsActive, userID)
	if err != nil {
		log.Printf("[ADMIN] Status update failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to update user", http.StatusInternalServerError, nil)
		return
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		return
	}

	status := "deactivated"
	if *req.IsActive {
		status = "activated"
	}
	log.Printf("[ADMIN] User %d %s", userID, status)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "User " + status})
}

// Stats reports platform-wide counters
// @Summary System statistics
// @Description User, category and transaction counts plus gross transaction volume
// @Tags admin
// @Produce json
// @Success 200 {object} SystemStats
// @Failure 403 {object} ErrorResponse "Admin access required"
// @Router /admin/stats [get]
func (s *AdminService) Stats(w http.ResponseWriter, r *http.Request) {
	var stats SystemStats
	err := s.db.QueryRow(`
		SELECT (SELECT COUNT(*) FROM users),
		       (SELECT COUNT(*) FROM users WHERE is_verified),
		       (SELECT COUNT(*) FROM users WHERE is_active),
		       (SELECT COUNT(*) FROM categories),
		       (SELECT COUNT(*) FROM transactions),
		       (SELECT COALESCE(SUM(amount), 0) FROM transactions)
	`).Scan(&stats.TotalUsers, &stats.VerifiedUsers, &stats.ActiveUsers, &stats.TotalCategories, &stats.TotalTransactions, &stats.GrossVolume)
	if err != nil {
		log.Printf("[ADMIN] Stats query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch stats", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
