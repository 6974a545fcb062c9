package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setupAuthConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.access_expiry_minutes", 15)
	viper.Set("jwt.refresh_expiry_hours", 168)
}

func withUser(r *http.Request, userID int) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

func testTime() time.Time {
	return time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC)
}

func TestAuthService_Signup(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	service := NewAuthService(db, nil, &LogMailer{})

	t.Run("successful signup", func(t *testing.T) {
		req := SignupRequest{
			Username:  "johndoe",
			Email:     "test@example.com",
			Password:  "password123",
			FirstName: "John",
			LastName:  "Doe",
		}

		mock.ExpectQuery("INSERT INTO users").
			WithArgs(req.Username, req.Email, sqlmock.AnyArg(), req.FirstName, req.LastName, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, testTime()))

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/api/v1/auth/signup", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Signup(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, "johndoe", response["username"])
		assert.Equal(t, "test@example.com", response["email"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate username or email", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(&pq.Error{Code: "23505"})

		body, _ := json.Marshal(SignupRequest{
			Username: "johndoe",
			Email:    "test@example.com",
			Password: "password123",
		})
		r := httptest.NewRequest("POST", "/api/v1/auth/signup", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Signup(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("short password rejected", func(t *testing.T) {
		body, _ := json.Marshal(SignupRequest{
			Username: "johndoe",
			Email:    "test@example.com",
			Password: "short",
		})
		r := httptest.NewRequest("POST", "/api/v1/auth/signup", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Signup(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/v1/auth/signup", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Signup(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_VerifyEmail(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil, &LogMailer{})

	t.Run("valid token", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET is_verified").
			WithArgs("tok-123").
			WillReturnResult(sqlmock.NewResult(0, 1))

		r := httptest.NewRequest("GET", "/api/v1/auth/verify-email?token=tok-123", nil)
		w := httptest.NewRecorder()

		service.VerifyEmail(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET is_verified").
			WithArgs("tok-unknown").
			WillReturnResult(sqlmock.NewResult(0, 0))

		r := httptest.NewRequest("GET", "/api/v1/auth/verify-email?token=tok-unknown", nil)
		w := httptest.NewRecorder()

		service.VerifyEmail(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/v1/auth/verify-email", nil)
		w := httptest.NewRecorder()

		service.VerifyEmail(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	service := NewAuthService(db, nil, &LogMailer{})

	userColumns := []string{"id", "username", "email", "first_name", "last_name", "password", "role", "is_verified", "is_active"}

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
			WithArgs("johndoe").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "johndoe", "test@example.com", "John", "Doe", hashedPassword, "user", true, true))
		mock.ExpectExec("UPDATE users SET last_login").
			WithArgs(1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(LoginRequest{Username: "johndoe", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response LoginResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Access)
		assert.NotEmpty(t, response.Refresh)
		assert.Equal(t, "johndoe", response.User.Username)
	})

	t.Run("unverified account", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
			WithArgs("johndoe").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "johndoe", "test@example.com", "John", "Doe", hashedPassword, "user", false, true))

		body, _ := json.Marshal(LoginRequest{Username: "johndoe", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("disabled account", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
			WithArgs("johndoe").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "johndoe", "test@example.com", "John", "Doe", hashedPassword, "user", true, false))

		body, _ := json.Marshal(LoginRequest{Username: "johndoe", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
			WithArgs("johndoe").
			WillReturnRows(sqlmock.NewRows(userColumns).
				AddRow(1, "johndoe", "test@example.com", "John", "Doe", hashedPassword, "user", true, true))

		body, _ := json.Marshal(LoginRequest{Username: "johndoe", Password: "wrongpass"})
		r := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("user not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM users WHERE username").
			WithArgs("nonexistent").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(LoginRequest{Username: "nonexistent", Password: "password123"})
		r := httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	service := NewAuthService(db, nil, &LogMailer{})

	t.Run("valid refresh token", func(t *testing.T) {
		refresh, err := generateRefreshToken(1, "user")
		assert.NoError(t, err)

		body, _ := json.Marshal(RefreshRequest{Refresh: refresh})
		r := httptest.NewRequest("POST", "/api/v1/auth/refresh", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Refresh(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]string
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response["access"])
	})

	t.Run("access token rejected", func(t *testing.T) {
		access, err := generateAccessToken(1, "user")
		assert.NoError(t, err)

		body, _ := json.Marshal(RefreshRequest{Refresh: access})
		r := httptest.NewRequest("POST", "/api/v1/auth/refresh", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Refresh(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		body, _ := json.Marshal(RefreshRequest{Refresh: "not-a-token"})
		r := httptest.NewRequest("POST", "/api/v1/auth/refresh", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Refresh(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_ResetPassword(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	service := NewAuthService(db, nil, &LogMailer{})

	t.Run("valid reset token", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET password").
			WithArgs(sqlmock.AnyArg(), "reset-tok").
			WillReturnResult(sqlmock.NewResult(0, 1))

		body, _ := json.Marshal(ResetPasswordRequest{Token: "reset-tok", NewPassword: "newpassword123"})
		r := httptest.NewRequest("POST", "/api/v1/auth/reset-password", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.ResetPassword(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid reset token", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET password").
			WithArgs(sqlmock.AnyArg(), "bad-tok").
			WillReturnResult(sqlmock.NewResult(0, 0))

		body, _ := json.Marshal(ResetPasswordRequest{Token: "bad-tok", NewPassword: "newpassword123"})
		r := httptest.NewRequest("POST", "/api/v1/auth/reset-password", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.ResetPassword(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPasswordHashingWithoutConfig(t *testing.T) {
	// Login may be the first password operation in a fresh process, before
	// any signup has run. Verification must work from defaults alone.
	viper.Reset()

	hash, err := hashPassword("password123")
	assert.NoError(t, err)
	assert.True(t, verifyPassword("password123", hash))
	assert.False(t, verifyPassword("wrongpass", hash))
}

func TestPasswordHashing(t *testing.T) {
	setupAuthConfig()

	hash, err := hashPassword("password123")
	assert.NoError(t, err)
	assert.NotEqual(t, "password123", hash)

	assert.True(t, verifyPassword("password123", hash))
	assert.False(t, verifyPassword("wrongpass", hash))
	assert.False(t, verifyPassword("password123", "malformed-hash"))
}
