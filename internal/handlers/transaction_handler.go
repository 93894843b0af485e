package handler

import (
	"net/http"

	"condo-audit-backend/internal/repository"
	service "condo-audit-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TransactionHandler struct {
	service *service.Service
	txRepo  *repository.BankTransactionRepository
}

func NewTransactionHandler(svc *service.Service, txRepo *repository.BankTransactionRepository) *TransactionHandler {
	return &TransactionHandler{service: svc, txRepo: txRepo}
}

// Import appends a statement/sync batch for one association.
func (h *TransactionHandler) Import(c *gin.Context) {
	var payload struct {
		AssociationID string                     `json:"association_id"`
		Transactions  []service.TransactionInput `json:"transactions"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	associationID, err := uuid.Parse(payload.AssociationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid association ID"})
		return
	}

	txs, err := h.service.ImportTransactions(c.Request.Context(), associationID, payload.Transactions)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imported": len(txs), "transactions": txs})
}

func (h *TransactionHandler) List(c *gin.Context) {
	associationID, err := uuid.Parse(c.Query("association_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid association_id"})
		return
	}

	txs, err := h.txRepo.List(associationID, c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
