package handler

import (
	"net/http"

	service "condo-audit-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ReceiptHandler struct {
	service *service.Service
}

func NewReceiptHandler(svc *service.Service) *ReceiptHandler {
	return &ReceiptHandler{service: svc}
}

// Register records a new upload. File storage, OCR and fraud analysis are
// external collaborators; only their outputs flow through this API.
func (h *ReceiptHandler) Register(c *gin.Context) {
	var payload service.ReceiptInput
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	receipt, err := h.service.RegisterReceipt(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"receipt": receipt})
}

// ApplyOCR is the OCR collaborator callback.
func (h *ReceiptHandler) ApplyOCR(c *gin.Context) {
	receiptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}
	var payload service.OCRResult
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	receipt, err := h.service.ApplyOCRResult(c.Request.Context(), receiptID, payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}

// ApplyFraud is the fraud-forensics collaborator callback.
func (h *ReceiptHandler) ApplyFraud(c *gin.Context) {
	receiptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}
	var payload service.FraudResult
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	receipt, err := h.service.ApplyFraudResult(c.Request.Context(), receiptID, payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}
