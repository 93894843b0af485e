package repository

import (
	"condo-audit-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

func (r *ReceiptRepository) DB() *gorm.DB {
	return r.db
}

func (r *ReceiptRepository) Create(receipt *models.Receipt) error {
	return r.db.Create(receipt).Error
}

func (r *ReceiptRepository) GetByID(id uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	if err := r.db.First(&receipt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

// FindByHash returns the original receipt of the association carrying the
// same file hash, or nil when the hash is unseen. Rows already marked as
// duplicates are skipped so later uploads always link to the original.
func (r *ReceiptRepository) FindByHash(associationID uuid.UUID, hash string) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.db.
		Where("association_id = ? AND file_hash = ? AND duplicate_of IS NULL", associationID, hash).
		Order("uploaded_at ASC").
		First(&receipt).Error
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) ListByIDs(ids []uuid.UUID) ([]models.Receipt, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var receipts []models.Receipt
	err := r.db.Where("id IN ?", ids).Find(&receipts).Error
	return receipts, err
}

// ListUndecided returns every receipt of the association that has OCR data
// and still awaits a decision. These are the rows re-scored whenever the
// candidate pool changes.
func (r *ReceiptRepository) ListUndecided(associationID uuid.UUID) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.db.
		Where("association_id = ? AND ocr_processed = ? AND status IN ?",
			associationID, true,
			[]models.ReceiptStatus{models.ReceiptPending, models.ReceiptSuspicious}).
		Order("uploaded_at ASC").
		Find(&receipts).Error
	return receipts, err
}
