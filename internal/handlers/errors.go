package handler

import (
	"errors"
	"net/http"

	service "condo-audit-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
)

// respondError maps the workflow error taxonomy onto HTTP statuses:
// validation 400, conflict 409, not found 404, collaborator-not-ready 425.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotReady):
		status = http.StatusTooEarly
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
