package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"condo-audit-backend/internal/config"
	handler "condo-audit-backend/internal/handlers"
	"condo-audit-backend/internal/repository"
	"condo-audit-backend/internal/services/audit"
	"condo-audit-backend/internal/services/queue"
	service "condo-audit-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB, policy config.Policy, log *slog.Logger) {
	receiptRepo := repository.NewReceiptRepository(db)
	txRepo := repository.NewBankTransactionRepository(db)
	queueRepo := repository.NewQueueRepository(db)

	queueMgr := queue.NewManager(queueRepo, receiptRepo, policy)
	reconService := service.NewService(receiptRepo, txRepo, queueMgr, policy, log)
	complianceClient := audit.NewComplianceClient()

	reconHandler := handler.NewReconciliationHandler(reconService, queueMgr)
	receiptHandler := handler.NewReceiptHandler(reconService)
	txHandler := handler.NewTransactionHandler(reconService, txRepo)
	auditHandler := handler.NewAuditHandler(complianceClient)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Transaction ingestion (bank aggregator boundary)
	tx := api.Group("/transactions")
	tx.POST("/import", txHandler.Import)
	tx.GET("", txHandler.List)

	// Receipt ingestion + collaborator callbacks
	receipts := api.Group("/receipts")
	receipts.POST("", receiptHandler.Register)
	receipts.POST("/:id/ocr", receiptHandler.ApplyOCR)
	receipts.POST("/:id/fraud", receiptHandler.ApplyFraud)

	// Review queue + human decisions
	recon := api.Group("/reconciliation")
	recon.GET("/queue", reconHandler.ListQueue)
	recon.GET("/matches/:receiptId", reconHandler.GetMatches)
	recon.POST("/approve", reconHandler.Approve)
	recon.POST("/reject", reconHandler.Reject)
	recon.GET("/stats", reconHandler.Stats)

	// Expense audit boundary
	api.POST("/audit/expense", auditHandler.CheckExpense)
}
