package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type QueueType string

const (
	QueueManual          QueueType = "manual"
	QueueException       QueueType = "excecao"
	QueueDuplicate       QueueType = "duplicado"
	QueueSuspectedFraud  QueueType = "fraude_suspeita"
	QueueMultipleMatches QueueType = "multiplos_matches"
	QueueLowConfidence   QueueType = "baixa_confianca"
)

type QueueStatus string

const (
	QueuePending   QueueStatus = "pendente"
	QueueInReview  QueueStatus = "em_revisao"
	QueueDone      QueueStatus = "concluido"
	QueueCancelled QueueStatus = "cancelado"
)

// QueueItem is one review-queue row. The queue is a materialized view over
// receipt and transaction state: rows are refreshed on every store mutation
// that can change a receipt's candidate matches, and are never consulted to
// decide whether an approve/reject is valid.
type QueueItem struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ReceiptID     uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"receipt_id"`
	AssociationID uuid.UUID      `gorm:"type:uuid;index" json:"association_id"`
	Type          QueueType      `gorm:"index" json:"type"`
	Priority      float64        `gorm:"index" json:"priority"`
	Status        QueueStatus    `gorm:"index;default:pendente" json:"status"`
	Matches       datatypes.JSON `json:"matches"`
	MatchVersion  int64          `json:"match_version"`
	AssignedTo    string         `json:"assigned_to,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
