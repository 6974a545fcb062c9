package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/fintrack/backend/internal/models"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	mailer    Mailer
	validator *ValidationHelper
}

// SignupRequest represents the signup request payload
// @Description Signup request structure
type SignupRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=150" example:"johndoe"`
	Email     string `json:"email" validate:"required,email" example:"user@example.com"`
	Password  string `json:"password" validate:"required,min=8" example:"password123"`
	FirstName string `json:"first_name" validate:"max=150" example:"John"`
	LastName  string `json:"last_name" validate:"max=150" example:"Doe"`
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Username string `json:"username" validate:"required" example:"johndoe"`
	Password string `json:"password" validate:"required" example:"password123"`
}

// TokenPair carries both bearer tokens issued at login
// @Description Token pair structure
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginResponse represents the authentication response
// @Description Authentication response structure
type LoginResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    models.User `json:"user"`
}

// RefreshRequest carries the refresh token
type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

// ForgotPasswordRequest carries the account email
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest carries the reset token and replacement password
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, mailer Mailer) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		mailer:    mailer,
		validator: NewValidationHelper(),
	}
}

// Signup handles user registration
// @Summary Sign up a new user
// @Description Create an account and send a verification email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Signup request"
// @Success 201 {object} models.User "Signup successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Username or email already exists"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/signup [post]
func (s *AuthService) Signup(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Signup attempt from IP: %s", r.RemoteAddr)

	var req SignupRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Signup validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	verificationToken := uuid.NewString()

	var user models.User
	err = s.db.QueryRow(
		"INSERT INTO users (username, email, password, first_name, last_name, verification_token) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at",
		req.Username, strings.ToLower(req.Email), hashedPassword, req.FirstName, req.LastName, verificationToken,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[AUTH] Duplicate signup for %s", req.Email)
			SendErrorResponse(w, "Username or email already registered", http.StatusConflict, nil)
			return
		}
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	user.Username = req.Username
	user.Email = strings.ToLower(req.Email)
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.Role = "user"
	user.IsActive = true

	verifyLink := fmt.Sprintf("%s/api/v1/auth/verify-email?token=%s", appBaseURL(), verificationToken)
	if err := s.mailer.Send(user.Email, "Verify your email",
		fmt.Sprintf("Welcome to FinTrack! Verify your email by opening: %s", verifyLink)); err != nil {
		// Account exists; the user can request verification again later.
		log.Printf("[AUTH] Verification mail failed for %s: %v", user.Email, err)
	}

	log.Printf("[AUTH] User created successfully - ID: %d, Email: %s", user.ID, user.Email)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

// VerifyEmail marks an account as verified
// @Summary Verify email address
// @Description Consume the verification token sent at signup
// @Tags auth
// @Produce json
// @Param token query string true "Verification token"
// @Success 200 {object} map[string]string "Email verified"
// @Failure 400 {object} ErrorResponse "Invalid or used token"
// @Router /auth/verify-email [get]
func (s *AuthService) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		SendErrorResponse(w, "token is required", http.StatusBadRequest, nil)
		return
	}

	result, err := s.db.Exec(
		"UPDATE users SET is_verified = TRUE, verification_token = NULL, updated_at = NOW() WHERE verification_token = $1",
		token,
	)
	if err != nil {
		log.Printf("[AUTH] Email verification failed: %v", err)
		SendErrorResponse(w, "Failed to verify email", http.StatusInternalServerError, nil)
		return
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		log.Printf("[AUTH] Unknown verification token presented")
		SendErrorResponse(w, "Invalid or expired token", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[AUTH] Email verified successfully")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Email verified successfully"})
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate with username and password, returning access and refresh tokens
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} LoginResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 403 {object} ErrorResponse "Account not verified or disabled"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user models.User
	var hashedPassword string
	err := s.db.QueryRow(
		"SELECT id, username, email, first_name, last_name, password, role, is_verified, is_active FROM users WHERE username = $1",
		req.Username,
	).Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &hashedPassword, &user.Role, &user.IsVerified, &user.IsActive)
	if err != nil {
		log.Printf("[AUTH] User not found: %s", req.Username)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Username)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !user.IsVerified {
		log.Printf("[AUTH] Unverified login attempt for user: %s", req.Username)
		SendErrorResponse(w, "Account not verified. Please check your email.", http.StatusForbidden, nil)
		return
	}

	if !user.IsActive {
		log.Printf("[AUTH] Disabled account login attempt for user: %s", req.Username)
		SendErrorResponse(w, "Account disabled", http.StatusForbidden, nil)
		return
	}

	tokens, err := generateTokenPair(user.ID, user.Role)
	if err != nil {
		log.Printf("[AUTH] Token generation failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	if _, err := s.db.Exec("UPDATE users SET last_login = NOW() WHERE id = $1", user.ID); err != nil {
		log.Printf("[AUTH] Failed to record last login for user %d: %v", user.ID, err)
	}

	log.Printf("[AUTH] Login successful for user %d", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(LoginResponse{
		Access:  tokens.Access,
		Refresh: tokens.Refresh,
		User:    user,
	})
}

// Refresh exchanges a refresh token for a new access token
// @Summary Refresh access token
// @Description Issue a new access token from a valid refresh token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh request"
// @Success 200 {object} map[string]string "New access token"
// @Failure 401 {object} ErrorResponse "Invalid or expired refresh token"
// @Router /auth/refresh [post]
func (s *AuthService) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	userID, role, err := parseRefreshToken(req.Refresh)
	if err != nil {
		log.Printf("[AUTH] Refresh rejected: %v", err)
		SendErrorResponse(w, "Invalid or expired token", http.StatusUnauthorized, nil)
		return
	}

	access, err := generateAccessToken(userID, role)
	if err != nil {
		log.Printf("[AUTH] Access token generation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"access": access})
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist the presented access token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token != "" && len(token) > 7 {
		token = token[7:] // Remove "Bearer " prefix

		if s.redis != nil {
			ctx := context.Background()
			key := fmt.Sprintf("blacklist:%s", token)
			// Blacklist token until its natural expiration
			expiry := time.Duration(accessExpiryMinutes()) * time.Minute
			if err := s.redis.Set(ctx, key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// GetUser retrieves the authenticated user's profile
// @Summary Get current user
// @Description Get the authenticated user's account details
// @Tags auth
// @Produce json
// @Success 200 {object} models.User "User details"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /auth/user [get]
func (s *AuthService) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var user models.User
	err := s.db.QueryRow(
		"SELECT id, username, email, first_name, last_name, role, is_verified, is_active, last_login, created_at, updated_at FROM users WHERE id = $1",
		userID,
	).Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.Role,
		&user.IsVerified, &user.IsActive, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUTH] Failed to fetch user %d: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch user details", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// ForgotPassword emails a password reset link
// @Summary Request password reset
// @Description Send a reset token to the account email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Forgot password request"
// @Success 200 {object} map[string]string "Reset email sent"
// @Failure 400 {object} ErrorResponse "Email not registered"
// @Router /auth/forgot-password [post]
func (s *AuthService) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	resetToken := uuid.NewString()
	result, err := s.db.Exec(
		"UPDATE users SET password_reset_token = $1, updated_at = NOW() WHERE email = $2",
		resetToken, strings.ToLower(req.Email),
	)
	if err != nil {
		log.Printf("[AUTH] Failed to store reset token: %v", err)
		SendErrorResponse(w, "Failed to process request", http.StatusInternalServerError, nil)
		return
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		SendErrorResponse(w, "Email not registered", http.StatusBadRequest, nil)
		return
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", appBaseURL(), resetToken)
	if err := s.mailer.Send(strings.ToLower(req.Email), "Password Reset Request",
		fmt.Sprintf("Click the link to reset your password: %s", resetLink)); err != nil {
		log.Printf("[AUTH] Reset mail failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to send reset email", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Password reset email sent. Please check your inbox."})
}

// ResetPassword sets a new password using a reset token
// @Summary Reset password
// @Description Replace the password using the token from the reset email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset password request"
// @Success 200 {object} map[string]string "Password reset"
// @Failure 400 {object} ErrorResponse "Invalid or expired token"
// @Router /auth/reset-password [post]
func (s *AuthService) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.NewPassword)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed during reset: %v", err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	result, err := s.db.Exec(
		"UPDATE users SET password = $1, password_reset_token = NULL, updated_at = NOW() WHERE password_reset_token = $2",
		hashedPassword, req.Token,
	)
	if err != nil {
		log.Printf("[AUTH] Password reset failed: %v", err)
		SendErrorResponse(w, "Failed to reset password", http.StatusInternalServerError, nil)
		return
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		SendErrorResponse(w, "Invalid or expired token", http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Password successfully reset."})
}

// Token helpers

func accessExpiryMinutes() int {
	viper.SetDefault("jwt.access_expiry_minutes", 15)
	return viper.GetInt("jwt.access_expiry_minutes")
}

func refreshExpiryHours() int {
	viper.SetDefault("jwt.refresh_expiry_hours", 168)
	return viper.GetInt("jwt.refresh_expiry_hours")
}

func appBaseURL() string {
	viper.SetDefault("app.base_url", "http://localhost:8080")
	return viper.GetString("app.base_url")
}

func generateAccessToken(userID int, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    userID,
		"role":       role,
		"token_type": "access",
		"exp":        time.Now().Add(time.Duration(accessExpiryMinutes()) * time.Minute).Unix(),
	})
	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func generateRefreshToken(userID int, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":    userID,
		"role":       role,
		"token_type": "refresh",
		"jti":        uuid.NewString(),
		"exp":        time.Now().Add(time.Duration(refreshExpiryHours()) * time.Hour).Unix(),
	})
	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func generateTokenPair(userID int, role string) (*TokenPair, error) {
	access, err := generateAccessToken(userID, role)
	if err != nil {
		return nil, err
	}
	refresh, err := generateRefreshToken(userID, role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func parseRefreshToken(tokenString string) (int, string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("jwt.secret_key")), nil
	})
	if err != nil || !token.Valid {
		return 0, "", fmt.Errorf("invalid refresh token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", fmt.Errorf("invalid claims")
	}

	if tokenType, _ := claims["token_type"].(string); tokenType != "refresh" {
		return 0, "", fmt.Errorf("not a refresh token")
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, "", fmt.Errorf("missing user_id claim")
	}

	role, _ := claims["role"].(string)
	return int(userID), role, nil
}

// Password hashing (argon2id, salt$hash base64)

type argon2Params struct {
	Time       uint32
	Memory     uint32
	Threads    uint8
	KeyLength  uint32
	SaltLength int
}

// loadArgon2Params reads the viper-tuned argon2id parameters. Defaults are
// applied here so verification never runs with zero rounds, even when login
// is the first password operation in the process.
func loadArgon2Params() argon2Params {
	viper.SetDefault("argon2.salt_length", 16)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)

	return argon2Params{
		Time:       uint32(viper.GetInt("argon2.time")),
		Memory:     uint32(viper.GetInt("argon2.memory")),
		Threads:    uint8(viper.GetInt("argon2.threads")),
		KeyLength:  uint32(viper.GetInt("argon2.key_length")),
		SaltLength: viper.GetInt("argon2.salt_length"),
	}
}

func hashPassword(password string) (string, error) {
	params := loadArgon2Params()

	salt := make([]byte, params.SaltLength)
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLength)
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	params := loadArgon2Params()
	computedHash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLength)
	return string(hash) == string(computedHash)
}
