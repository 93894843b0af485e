package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ReceiptStatus string

const (
	ReceiptPending    ReceiptStatus = "pendente"
	ReceiptProcessing ReceiptStatus = "processando"
	ReceiptApproved   ReceiptStatus = "aprovado"
	ReceiptRejected   ReceiptStatus = "rejeitado"
	ReceiptSuspicious ReceiptStatus = "suspeito"
	ReceiptDuplicate  ReceiptStatus = "duplicado"
)

// Decidable reports whether the workflow may still apply an approve or
// reject decision to a receipt in this status.
func (s ReceiptStatus) Decidable() bool {
	switch s {
	case ReceiptPending, ReceiptSuspicious:
		return true
	}
	return false
}

// Receipt is a resident-uploaded proof of payment. OCR and fraud fields are
// filled in asynchronously by external collaborators; Status is owned by the
// reconciliation workflow. MatchVersion is the optimistic-concurrency token:
// it is bumped whenever the receipt's candidate set may have changed (OCR or
// fraud update, new transactions imported for the association), and every
// decision must carry the version its match list was computed from.
type Receipt struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssociationID uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_receipts_original_hash,priority:1" json:"association_id"`
	UploadedBy    string    `json:"uploaded_by"`
	Unit          string    `json:"unit,omitempty"`
	// The partial unique index admits one original per (association, hash);
	// rows marked as duplicates share the hash freely.
	FileHash string `gorm:"uniqueIndex:idx_receipts_original_hash,priority:2,where:duplicate_of IS NULL" json:"file_hash"`

	OCRProcessed  bool             `json:"ocr_processed"`
	OCRConfidence float64          `json:"ocr_confidence"`
	OCRAmount     *decimal.Decimal `gorm:"type:numeric(14,2)" json:"ocr_amount,omitempty"`
	OCRDate       *time.Time       `json:"ocr_date,omitempty"`
	OCRNSU        string           `gorm:"column:ocr_nsu" json:"ocr_nsu,omitempty"`
	OCRBarcode    string           `gorm:"column:ocr_barcode" json:"ocr_barcode,omitempty"`
	OCRRawText    string           `json:"ocr_raw_text,omitempty"`
	OCRError      string           `json:"ocr_error,omitempty"`

	FraudScore      float64        `json:"fraud_score"`
	FraudFlags      datatypes.JSON `json:"fraud_flags,omitempty"`
	DocumentAltered bool           `json:"document_altered"`
	DuplicateOf     *uuid.UUID     `gorm:"type:uuid" json:"duplicate_of,omitempty"`

	Status        ReceiptStatus `gorm:"index;default:processando" json:"status"`
	TransactionID *uuid.UUID    `gorm:"type:uuid" json:"transaction_id,omitempty"`
	MatchVersion  int64         `json:"match_version"`

	ReviewedBy     string     `json:"reviewed_by,omitempty"`
	ReviewedAt     *time.Time `json:"reviewed_at,omitempty"`
	DecisionReason string     `json:"decision_reason,omitempty"`

	UploadedAt time.Time `gorm:"index" json:"uploaded_at"`
}
