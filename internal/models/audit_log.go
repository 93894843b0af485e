package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditActionApproved     = "approved"
	AuditActionAutoApproved = "auto_approved"
	AuditActionRejected     = "rejected"
)

type ReconciliationAuditLog struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptID     uuid.UUID  `gorm:"type:uuid;index" json:"receipt_id"`
	TransactionID *uuid.UUID `gorm:"type:uuid" json:"transaction_id,omitempty"`
	Action        string     `json:"action"`
	PerformedBy   string     `json:"performed_by"`
	Reason        string     `json:"reason,omitempty"`
	MatchScore    float64    `json:"match_score,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
