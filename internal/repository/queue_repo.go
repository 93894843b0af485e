package repository

import (
	"condo-audit-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) DB() *gorm.DB {
	return r.db
}

// Upsert inserts the queue row or, when the receipt is already queued,
// refreshes its type, priority, match list and version in place. The unique
// index on receipt_id makes enqueue idempotent.
func (r *QueueRepository) Upsert(item *models.QueueItem) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "receipt_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "priority", "matches", "match_version", "updated_at",
		}),
	}).Create(item).Error
}

// DeleteByReceipt removes the queue row for a receipt. Removing an absent
// row is a no-op, never an error.
func (r *QueueRepository) DeleteByReceipt(receiptID uuid.UUID) error {
	return r.db.Where("receipt_id = ?", receiptID).Delete(&models.QueueItem{}).Error
}

// ListOpen returns the undecided queue rows of one association, optionally
// filtered by queue type. Final ordering is applied by the queue manager,
// which recomputes aging-sensitive priority at read time.
func (r *QueueRepository) ListOpen(associationID uuid.UUID, queueType string) ([]models.QueueItem, error) {
	query := r.db.
		Where("association_id = ? AND status IN ?", associationID,
			[]models.QueueStatus{models.QueuePending, models.QueueInReview})
	if queueType != "" {
		query = query.Where("type = ?", queueType)
	}
	var items []models.QueueItem
	err := query.Find(&items).Error
	return items, err
}
