package handler

import (
	"errors"
	"net/http"

	"condo-audit-backend/internal/services/audit"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	compliance *audit.ComplianceClient
}

func NewAuditHandler(compliance *audit.ComplianceClient) *AuditHandler {
	return &AuditHandler{compliance: compliance}
}

// CheckExpense validates an outgoing expense against the supplier
// registration service and returns its verdict verbatim.
func (h *AuditHandler) CheckExpense(c *gin.Context) {
	var payload audit.ComplianceRequest
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	result, err := h.compliance.Check(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, audit.ErrUnreachable) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
