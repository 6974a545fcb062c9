package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/fintrack/backend/docs"
	"github.com/fintrack/backend/internal/database"
	mW "github.com/fintrack/backend/internal/middleware"
	"github.com/fintrack/backend/internal/services"
)

// @title Personal Finance Tracker API
// @version 1.0
// @description API for tracking personal income and expenses
// @host localhost:8080
// @BasePath /
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.access_expiry_minutes", "JWT_ACCESS_EXPIRY_MINUTES")
	viper.BindEnv("jwt.refresh_expiry_hours", "JWT_REFRESH_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("app.base_url", "APP_BASE_URL")
	viper.BindEnv("mail.host", "MAIL_HOST")
	viper.BindEnv("mail.port", "MAIL_PORT")
	viper.BindEnv("mail.from", "MAIL_FROM")
	viper.BindEnv("mail.username", "MAIL_USERNAME")
	viper.BindEnv("mail.password", "MAIL_PASSWORD")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Personal Finance Tracker API"
	docs.SwaggerInfo.Description = "API for tracking personal income and expenses"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer database.CloseDB()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var mailer services.Mailer
	if viper.GetString("mail.host") != "" {
		mailer = services.NewSMTPMailer()
	} else {
		log.Println("MAIL_HOST not set, logging mail instead of sending")
		mailer = &services.LogMailer{}
	}

	authService := services.NewAuthService(db, redisClient, mailer)
	categoryService := services.NewCategoryService(db)
	tagService := services.NewTagService(db)
	transactionService := services.NewTransactionService(db)
	reportService := services.NewReportService(db, redisClient)
	adminService := services.NewAdminService(db)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Public auth endpoints
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/signup", authService.Signup)
		r.Get("/verify-email", authService.VerifyEmail)
		r.Post("/login", authService.Login)
		r.Post("/refresh", authService.Refresh)
		r.Post("/forgot-password", authService.ForgotPassword)
		r.Post("/reset-password", authService.ResetPassword)

		// Endpoints that need a live access token
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Post("/logout", authService.Logout)
			r.Get("/user", authService.GetUser)
		})
	})

	// Application endpoints (auth required)
	r.Route("/app", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.Get("/categories", categoryService.ListCategories)
		r.Post("/categories", categoryService.CreateCategory)
		r.Delete("/categories/{categoryID}", categoryService.DeleteCategory)

		r.Get("/tags", tagService.ListTags)

		r.Get("/transactions", transactionService.ListTransactions)
		r.Post("/transactions", transactionService.CreateTransaction)
		r.Get("/transactions/category-percentage", transactionService.GetCategoryPercentages)
		r.Get("/transactions/monthly-summary", reportService.MonthlySummary)
		r.Get("/transactions/top-categories", reportService.TopCategories)
		r.Get("/transactions/top", reportService.TopTransactions)
		r.Get("/transactions/trends", reportService.SpendingTrends)
		r.Get("/transactions/monthly-report", reportService.MonthlyReport)
		r.Get("/transactions/{transactionID}", transactionService.GetTransaction)
		r.Put("/transactions/{transactionID}", transactionService.UpdateTransaction)
		r.Delete("/transactions/{transactionID}", transactionService.DeleteTransaction)

		r.Get("/balance", transactionService.GetBalance)
		r.Get("/dashboard/summary", reportService.DashboardSummary)
	})

	// Operator endpoints (admin role required)
	r.Route("/admin", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)
		r.Use(mW.AdminOnly)

		r.Get("/users", adminService.ListUsers)
		r.Put("/users/{userID}/status", adminService.UpdateUserStatus)
		r.Get("/stats", adminService.Stats)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
