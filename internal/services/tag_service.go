package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/fintrack/backend/internal/models"
)

type TagService struct {
	db *sql.DB
}

func NewTagService(db *sql.DB) *TagService {
	return &TagService{db: db}
}

// ListTags retrieves the caller's tags
// @Summary List tags
// @Description Get all tags owned by the authenticated user
// @Tags tags
// @Produce json
// @Success 200 {array} models.Tag
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /app/tags [get]
func (s *TagService) ListTags(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	rows, err := s.db.Query("SELECT id, name FROM tags WHERE user_id = $1 ORDER BY name", userID)
	if err != nil {
		log.Printf("[TAG] Failed to list tags for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch tags", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		t := models.Tag{UserID: userID}
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			log.Printf("[TAG] Scan failed: %v", err)
			SendErrorResponse(w, "Failed to fetch tags", http.StatusInternalServerError, nil)
			return
		}
		tags = append(tags, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tags)
}

// getOrCreateTagIDs resolves tag names to IDs within a transaction,
// creating any that do not exist yet for this user.
func getOrCreateTagIDs(tx *sql.Tx, userID int, names []string) ([]int, error) {
	ids := make([]int, 0, len(names))
	seen := map[string]bool{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		var id int
		err := tx.QueryRow("SELECT id FROM tags WHERE user_id = $1 AND LOWER(name) = LOWER($2)", userID, name).Scan(&id)
		if err == sql.ErrNoRows {
			err = tx.QueryRow("INSERT INTO tags (user_id, name) VALUES ($1, $2) RETURNING id", userID, name).Scan(&id)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// replaceTransactionTags rewrites the tag set attached to a transaction.
func replaceTransactionTags(tx *sql.Tx, transactionID, userID int, names []string) error {
	if _, err := tx.Exec("DELETE FROM transaction_tags WHERE transaction_id = $1", transactionID); err != nil {
		return err
	}

	ids, err := getOrCreateTagIDs(tx, userID, names)
	if err != nil {
		return err
	}

	for _, tagID := range ids {
		if _, err := tx.Exec("INSERT INTO transaction_tags (transaction_id, tag_id) VALUES ($1, $2)", transactionID, tagID); err != nil {
			return err
		}
	}
	return nil
}
