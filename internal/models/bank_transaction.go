package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pendente"
	TransactionReconciled TransactionStatus = "reconciliado"
	TransactionDivergent  TransactionStatus = "divergente"
	TransactionIgnored    TransactionStatus = "ignorado"
)

// BankTransaction is one imported statement line. Rows are append-only:
// only Status and ReceiptID ever change after import, and only the
// reconciliation workflow changes them.
type BankTransaction struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	AssociationID   uuid.UUID         `gorm:"type:uuid;index" json:"association_id"`
	TransactionDate time.Time         `gorm:"column:transaction_date;index" json:"transaction_date"`
	Amount          decimal.Decimal   `gorm:"type:numeric(14,2)" json:"amount"` // credit positive, debit negative
	Description     string            `json:"description"`
	NSU             string            `gorm:"column:nsu;index" json:"nsu,omitempty"`
	BarcodeValue    string            `json:"barcode_value,omitempty"`
	Status          TransactionStatus `gorm:"index;default:pendente" json:"status"`
	ReceiptID       *uuid.UUID        `gorm:"type:uuid" json:"receipt_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
