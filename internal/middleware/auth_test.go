package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(viper.GetString("jwt.secret_key")))
	assert.NoError(t, err)
	return signed
}

func accessClaims(userID int, role string) jwt.MapClaims {
	return jwt.MapClaims{
		"user_id":    userID,
		"role":       role,
		"token_type": "access",
		"exp":        time.Now().Add(15 * time.Minute).Unix(),
	}
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	InitAuthMiddleware(nil)

	var gotUserID int
	var gotRole string
	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = r.Context().Value(UserIDKey).(int)
		gotRole, _ = r.Context().Value(RoleKey).(string)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid access token passes", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/app/transactions", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, accessClaims(42, "user")))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 42, gotUserID)
		assert.Equal(t, "user", gotRole)
	})

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/app/transactions", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/app/transactions", nil)
		r.Header.Set("Authorization", "token abc def")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/app/transactions", nil)
		r.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := accessClaims(42, "user")
		claims["exp"] = time.Now().Add(-time.Minute).Unix()
		r := httptest.NewRequest("GET", "/app/transactions", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, claims))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("refresh token rejected on api routes", func(t *testing.T) {
		claims := accessClaims(42, "user")
		claims["token_type"] = "refresh"
		r := httptest.NewRequest("GET", "/app/transactions", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, claims))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("blacklisted token rejected", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		InitAuthMiddleware(client)
		defer InitAuthMiddleware(nil)

		token := signToken(t, accessClaims(42, "user"))
		mock.ExpectExists("blacklist:" + token).SetVal(1)

		r := httptest.NewRequest("GET", "/app/transactions", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminOnly(t *testing.T) {
	viper.Set("jwt.secret_key", "test-secret")
	InitAuthMiddleware(nil)

	handler := AuthMiddleware(AdminOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	t.Run("admin passes", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/admin/stats", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, accessClaims(1, "admin")))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("regular user forbidden", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/admin/stats", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, accessClaims(2, "user")))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
