package main

import (
	"log"
	"os"
	"time"

	"condo-audit-backend/internal/config"
	"condo-audit-backend/internal/models"
	"condo-audit-backend/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	logger := config.NewLogger()

	policy, err := config.LoadPolicy(os.Getenv("POLICY_FILE"))
	if err != nil {
		log.Fatalf("failed to load policy: %v", err)
	}

	db := config.InitDB()

	db.AutoMigrate(
		&models.BankTransaction{},
		&models.Receipt{},
		&models.QueueItem{},
		&models.ReconciliationAuditLog{},
	)

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db, policy, logger)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Info("server starting", "addr", addr, "auto_approve", policy.AutoApprove.Enabled)
	r.Run(addr)
}
