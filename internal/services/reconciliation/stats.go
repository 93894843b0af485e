package reconciliation

import (
	"context"

	"condo-audit-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AssociationStats struct {
	PendingTransactions    int64           `json:"pending_transactions"`
	ReconciledTransactions int64           `json:"reconciled_transactions"`
	PendingSum             decimal.Decimal `json:"pending_sum"`
	ReconciledSum          decimal.Decimal `json:"reconciled_sum"`

	ReceiptsProcessing int64 `json:"receipts_processing"`
	ReceiptsPending    int64 `json:"receipts_pending"`
	ReceiptsApproved   int64 `json:"receipts_approved"`
	ReceiptsRejected   int64 `json:"receipts_rejected"`
	ReceiptsSuspicious int64 `json:"receipts_suspicious"`
	ReceiptsDuplicate  int64 `json:"receipts_duplicate"`
}

type statRow struct {
	Status string
	Count  int64
	Sum    decimal.Decimal
}

// Stats summarizes the reconciliation position of one association.
func (s *Service) Stats(ctx context.Context, associationID uuid.UUID) (AssociationStats, error) {
	var stats AssociationStats

	var txRows []statRow
	err := s.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("association_id = ?", associationID).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("status").
		Scan(&txRows).Error
	if err != nil {
		return stats, err
	}
	for _, r := range txRows {
		switch models.TransactionStatus(r.Status) {
		case models.TransactionPending:
			stats.PendingTransactions = r.Count
			stats.PendingSum = r.Sum
		case models.TransactionReconciled:
			stats.ReconciledTransactions = r.Count
			stats.ReconciledSum = r.Sum
		}
	}

	var receiptRows []statRow
	err = s.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("association_id = ?", associationID).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&receiptRows).Error
	if err != nil {
		return stats, err
	}
	for _, r := range receiptRows {
		switch models.ReceiptStatus(r.Status) {
		case models.ReceiptProcessing:
			stats.ReceiptsProcessing = r.Count
		case models.ReceiptPending:
			stats.ReceiptsPending = r.Count
		case models.ReceiptApproved:
			stats.ReceiptsApproved = r.Count
		case models.ReceiptRejected:
			stats.ReceiptsRejected = r.Count
		case models.ReceiptSuspicious:
			stats.ReceiptsSuspicious = r.Count
		case models.ReceiptDuplicate:
			stats.ReceiptsDuplicate = r.Count
		}
	}
	return stats, nil
}
