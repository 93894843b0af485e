package repository

import (
	"errors"

	"condo-audit-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

func (r *BankTransactionRepository) DB() *gorm.DB {
	return r.db
}

func (r *BankTransactionRepository) CreateBatch(txs []models.BankTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	return r.db.Create(&txs).Error
}

func (r *BankTransactionRepository) GetByID(id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	if err := r.db.First(&tx, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListPending returns the candidate pool the scorer runs against: every
// still-unreconciled transaction of one association.
func (r *BankTransactionRepository) ListPending(associationID uuid.UUID) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.
		Where("association_id = ? AND status = ?", associationID, models.TransactionPending).
		Order("transaction_date ASC, id ASC").
		Find(&txs).Error
	return txs, err
}

func (r *BankTransactionRepository) List(associationID uuid.UUID, status string) ([]models.BankTransaction, error) {
	query := r.db.Where("association_id = ?", associationID).Order("transaction_date DESC, id ASC")
	if status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}
	var txs []models.BankTransaction
	err := query.Find(&txs).Error
	return txs, err
}

// IsNotFound reports whether err is gorm's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
