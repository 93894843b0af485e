package handler

import (
	"net/http"
	"time"

	"condo-audit-backend/internal/services/queue"
	service "condo-audit-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReconciliationHandler struct {
	service *service.Service
	queue   *queue.Manager
}

func NewReconciliationHandler(svc *service.Service, queueMgr *queue.Manager) *ReconciliationHandler {
	return &ReconciliationHandler{service: svc, queue: queueMgr}
}

// ListQueue returns the open review queue of an association, ordered by
// priority descending.
func (h *ReconciliationHandler) ListQueue(c *gin.Context) {
	associationID, err := uuid.Parse(c.Query("association_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid association_id"})
		return
	}

	items, err := h.queue.List(associationID, c.Query("type"), time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetMatches recomputes the live ranked match list for a receipt.
func (h *ReconciliationHandler) GetMatches(c *gin.Context) {
	receiptID, err := uuid.Parse(c.Param("receiptId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}

	matches, version, err := h.service.MatchesFor(c.Request.Context(), receiptID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "match_version": version})
}

func (h *ReconciliationHandler) Approve(c *gin.Context) {
	var payload struct {
		ReceiptID     string `json:"receipt_id"`
		TransactionID string `json:"transaction_id"`
		MatchVersion  int64  `json:"match_version"`
		ReviewedBy    string `json:"reviewed_by"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	receiptID, err := uuid.Parse(payload.ReceiptID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}
	transactionID, err := uuid.Parse(payload.TransactionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	receipt, tx, err := h.service.Approve(c.Request.Context(), receiptID, transactionID, payload.MatchVersion, payload.ReviewedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt, "transaction": tx})
}

func (h *ReconciliationHandler) Reject(c *gin.Context) {
	var payload struct {
		ReceiptID  string `json:"receipt_id"`
		Reason     string `json:"reason"`
		ReviewedBy string `json:"reviewed_by"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	receiptID, err := uuid.Parse(payload.ReceiptID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}

	receipt, err := h.service.Reject(c.Request.Context(), receiptID, payload.Reason, payload.ReviewedBy)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

func (h *ReconciliationHandler) Stats(c *gin.Context) {
	associationID, err := uuid.Parse(c.Query("association_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid association_id"})
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), associationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
