// Package reconciliation orchestrates the matching workflow: transaction
// and receipt ingestion, OCR/fraud collaborator callbacks, queue refresh,
// and the approve/reject decisions that link receipts to transactions.
package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"condo-audit-backend/internal/config"
	"condo-audit-backend/internal/models"
	"condo-audit-backend/internal/repository"
	"condo-audit-backend/internal/services/matching"
	"condo-audit-backend/internal/services/queue"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AutoReviewer is recorded as the performer of auto-approved decisions so
// they stay distinguishable from human approvals in the audit trail.
const AutoReviewer = "sistema"

type Service struct {
	receiptRepo *repository.ReceiptRepository
	txRepo      *repository.BankTransactionRepository
	queue       *queue.Manager
	db          *gorm.DB
	policy      config.Policy
	log         *slog.Logger
	now         func() time.Time
}

func NewService(
	receiptRepo *repository.ReceiptRepository,
	txRepo *repository.BankTransactionRepository,
	queueMgr *queue.Manager,
	policy config.Policy,
	log *slog.Logger,
) *Service {
	return &Service{
		receiptRepo: receiptRepo,
		txRepo:      txRepo,
		queue:       queueMgr,
		db:          receiptRepo.DB(),
		policy:      policy,
		log:         log,
		now:         time.Now,
	}
}

// TransactionInput is the ingestion boundary contract for one statement line.
type TransactionInput struct {
	ID           uuid.UUID       `json:"id"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	NSU          string          `json:"nsu,omitempty"`
	BarcodeValue string          `json:"barcode_value,omitempty"`
}

// ImportTransactions appends a sync batch as pending transactions and
// re-scores every undecided receipt of the association against the enlarged
// candidate pool.
func (s *Service) ImportTransactions(ctx context.Context, associationID uuid.UUID, inputs []TransactionInput) ([]models.BankTransaction, error) {
	if associationID == uuid.Nil {
		return nil, fmt.Errorf("%w: association id is required", ErrValidation)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: empty transaction batch", ErrValidation)
	}

	txs := make([]models.BankTransaction, 0, len(inputs))
	for _, in := range inputs {
		if in.Amount.IsZero() {
			return nil, fmt.Errorf("%w: transaction amount must be non-zero", ErrValidation)
		}
		id := in.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		txs = append(txs, models.BankTransaction{
			ID:              id,
			AssociationID:   associationID,
			TransactionDate: in.Date,
			Amount:          in.Amount,
			Description:     in.Description,
			NSU:             in.NSU,
			BarcodeValue:    in.BarcodeValue,
			Status:          models.TransactionPending,
			CreatedAt:       s.now(),
		})
	}
	if err := s.txRepo.CreateBatch(txs); err != nil {
		return nil, err
	}

	if err := s.RescoreAssociation(ctx, associationID); err != nil {
		return nil, err
	}
	return txs, nil
}

// ReceiptInput is the upload boundary contract. OCR and fraud fields arrive
// later through ApplyOCRResult and ApplyFraudResult.
type ReceiptInput struct {
	ID            uuid.UUID `json:"id"`
	AssociationID uuid.UUID `json:"association_id"`
	UploadedBy    string    `json:"uploaded_by"`
	Unit          string    `json:"unit,omitempty"`
	FileHash      string    `json:"file_hash"`
}

// RegisterReceipt stores a new upload. A file-hash collision is a true
// duplicate: the receipt is terminal immediately and routed to the
// duplicate queue, never auto-resolved.
func (s *Service) RegisterReceipt(ctx context.Context, in ReceiptInput) (*models.Receipt, error) {
	if in.AssociationID == uuid.Nil {
		return nil, fmt.Errorf("%w: association id is required", ErrValidation)
	}
	if in.FileHash == "" {
		return nil, fmt.Errorf("%w: file hash is required", ErrValidation)
	}

	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	receipt := &models.Receipt{
		ID:            id,
		AssociationID: in.AssociationID,
		UploadedBy:    in.UploadedBy,
		Unit:          in.Unit,
		FileHash:      in.FileHash,
		Status:        models.ReceiptProcessing,
		UploadedAt:    s.now(),
	}

	original, err := s.receiptRepo.FindByHash(in.AssociationID, in.FileHash)
	if err != nil {
		return nil, err
	}
	if original != nil {
		markDuplicateOf(receipt, original.ID)
	}

	if err := s.receiptRepo.Create(receipt); err != nil {
		if original == nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent upload of the same file won the insert; it is the
			// original and this one lands as its duplicate.
			original, err = s.receiptRepo.FindByHash(in.AssociationID, in.FileHash)
			if err != nil {
				return nil, err
			}
			if original == nil {
				return nil, fmt.Errorf("%w: concurrent upload of the same file", ErrConflict)
			}
			markDuplicateOf(receipt, original.ID)
			if err := s.receiptRepo.Create(receipt); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}
	if receipt.Status == models.ReceiptDuplicate {
		if err := s.queue.Enqueue(receipt, nil, s.now()); err != nil {
			return nil, err
		}
		s.log.Warn("duplicate receipt registered",
			"receipt_id", receipt.ID, "duplicate_of", original.ID)
	}
	return receipt, nil
}

// OCRResult is the asynchronous OCR collaborator callback payload.
type OCRResult struct {
	Confidence float64          `json:"confidence"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Date       *time.Time       `json:"date,omitempty"`
	NSU        string           `json:"nsu,omitempty"`
	Barcode    string           `json:"barcode,omitempty"`
	RawText    string           `json:"raw_text,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// ApplyOCRResult records the OCR output (successful or errored), moves the
// receipt out of processing, bumps its match version and refreshes scoring.
// The fraud callback may land concurrently, so only OCR-owned columns are
// written and the version bump happens in SQL, never on a loaded struct.
func (s *Service) ApplyOCRResult(ctx context.Context, receiptID uuid.UUID, ocr OCRResult) (*models.Receipt, error) {
	if ocr.Confidence < 0 || ocr.Confidence > 100 {
		return nil, fmt.Errorf("%w: confidence must be between 0 and 100", ErrValidation)
	}
	if ocr.Amount != nil && !ocr.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: extracted amount must be positive", ErrValidation)
	}
	if _, err := s.getReceipt(receiptID); err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ? AND status IN ?", receiptID, []models.ReceiptStatus{
			models.ReceiptProcessing, models.ReceiptPending, models.ReceiptSuspicious}).
		Updates(map[string]interface{}{
			"ocr_processed":  true,
			"ocr_confidence": ocr.Confidence,
			"ocr_amount":     ocr.Amount,
			"ocr_date":       ocr.Date,
			"ocr_nsu":        ocr.NSU,
			"ocr_barcode":    ocr.Barcode,
			"ocr_raw_text":   ocr.RawText,
			"ocr_error":      ocr.Error,
			"match_version":  gorm.Expr("match_version + 1"),
			"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
				models.ReceiptProcessing, models.ReceiptPending),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("%w: receipt %s already decided", ErrConflict, receiptID)
	}

	receipt, err := s.getReceipt(receiptID)
	if err != nil {
		return nil, err
	}
	if err := s.refresh(ctx, receipt); err != nil {
		return nil, err
	}
	return s.getReceipt(receiptID)
}

// FraudResult is the asynchronous fraud collaborator callback payload.
type FraudResult struct {
	FraudScore      float64  `json:"fraud_score"`
	Flags           []string `json:"flags,omitempty"`
	DocumentAltered bool     `json:"document_altered"`
}

// ApplyFraudResult records the fraud verdict. A score at or above the
// threshold marks the receipt suspicious and queues it with top urgency
// even before OCR has arrived. Like ApplyOCRResult, it writes only the
// columns this callback owns so a concurrent OCR write is never clobbered.
func (s *Service) ApplyFraudResult(ctx context.Context, receiptID uuid.UUID, fraud FraudResult) (*models.Receipt, error) {
	if fraud.FraudScore < 0 || fraud.FraudScore > 100 {
		return nil, fmt.Errorf("%w: fraud score must be between 0 and 100", ErrValidation)
	}
	if _, err := s.getReceipt(receiptID); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"fraud_score":      fraud.FraudScore,
		"document_altered": fraud.DocumentAltered,
		"match_version":    gorm.Expr("match_version + 1"),
	}
	if len(fraud.Flags) > 0 {
		flags, _ := json.Marshal(fraud.Flags)
		updates["fraud_flags"] = datatypes.JSON(flags)
	}
	if fraud.FraudScore >= s.policy.Queue.FraudThreshold {
		updates["status"] = gorm.Expr("CASE WHEN status IN (?, ?) THEN ? ELSE status END",
			models.ReceiptProcessing, models.ReceiptPending, models.ReceiptSuspicious)
	}

	res := s.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ? AND status IN ?", receiptID, []models.ReceiptStatus{
			models.ReceiptProcessing, models.ReceiptPending, models.ReceiptSuspicious}).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("%w: receipt %s already decided", ErrConflict, receiptID)
	}

	receipt, err := s.getReceipt(receiptID)
	if err != nil {
		return nil, err
	}
	if receipt.OCRProcessed {
		if err := s.refresh(ctx, receipt); err != nil {
			return nil, err
		}
	} else if fraud.FraudScore >= s.policy.Queue.FraudThreshold {
		if err := s.queue.Enqueue(receipt, nil, s.now()); err != nil {
			return nil, err
		}
	}
	return s.getReceipt(receiptID)
}

// MatchesFor recomputes the live ranked match list for a receipt together
// with the version token a decision must carry.
func (s *Service) MatchesFor(ctx context.Context, receiptID uuid.UUID) ([]matching.Match, int64, error) {
	receipt, err := s.getReceipt(receiptID)
	if err != nil {
		return nil, 0, err
	}
	if !receipt.OCRProcessed {
		return nil, 0, fmt.Errorf("%w: OCR result has not arrived", ErrNotReady)
	}
	candidates, err := s.txRepo.ListPending(receipt.AssociationID)
	if err != nil {
		return nil, 0, err
	}
	matches := matching.Score(receipt, candidates, s.policy.Scoring)
	if matches == nil {
		matches = []matching.Match{}
	}
	return matches, receipt.MatchVersion, nil
}

// Approve links a receipt to a transaction. The decision must carry the
// match version it was computed from; the chosen transaction must still be
// pending and still present in the freshly recomputed match list. All
// effects commit atomically or not at all.
func (s *Service) Approve(ctx context.Context, receiptID, transactionID uuid.UUID, matchVersion int64, reviewer string) (*models.Receipt, *models.BankTransaction, error) {
	receipt, err := s.getReceipt(receiptID)
	if err != nil {
		return nil, nil, err
	}
	if receipt.Status == models.ReceiptProcessing {
		return nil, nil, fmt.Errorf("%w: OCR result has not arrived", ErrNotReady)
	}
	if !receipt.Status.Decidable() {
		return nil, nil, fmt.Errorf("%w: receipt %s already decided", ErrConflict, receiptID)
	}
	if !receipt.OCRProcessed {
		return nil, nil, fmt.Errorf("%w: OCR result has not arrived", ErrNotReady)
	}
	if matchVersion != receipt.MatchVersion {
		return nil, nil, fmt.Errorf("%w: stale match version %d (current %d)", ErrConflict, matchVersion, receipt.MatchVersion)
	}

	// Stale-match guard: recompute from live store state, never trust the
	// queue snapshot.
	candidates, err := s.txRepo.ListPending(receipt.AssociationID)
	if err != nil {
		return nil, nil, err
	}
	matches := matching.Score(receipt, candidates, s.policy.Scoring)
	chosen, ok := findMatch(matches, transactionID)
	if !ok {
		// The transaction left the candidate set (reconciled elsewhere or
		// re-scored away). Refresh the queue so the reviewer sees current
		// state, then surface the conflict.
		if qerr := s.queue.Enqueue(receipt, matches, s.now()); qerr != nil {
			s.log.Error("queue refresh after conflict failed", "receipt_id", receiptID, "error", qerr)
		}
		return nil, nil, fmt.Errorf("%w: transaction %s is not a current match for receipt %s", ErrConflict, transactionID, receiptID)
	}

	if err := s.commitApproval(ctx, receipt, chosen, reviewer, models.AuditActionApproved, ""); err != nil {
		return nil, nil, err
	}

	updatedReceipt, err := s.getReceipt(receiptID)
	if err != nil {
		return nil, nil, err
	}
	updatedTx, err := s.txRepo.GetByID(transactionID)
	if err != nil {
		return nil, nil, err
	}
	return updatedReceipt, updatedTx, nil
}

// Reject marks a receipt rejected with a mandatory reason. No transaction
// is touched.
func (s *Service) Reject(ctx context.Context, receiptID uuid.UUID, reason, reviewer string) (*models.Receipt, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	receipt, err := s.getReceipt(receiptID)
	if err != nil {
		return nil, err
	}
	if !receipt.Status.Decidable() {
		return nil, fmt.Errorf("%w: receipt %s already decided", ErrConflict, receiptID)
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Receipt{}).
			Where("id = ? AND status IN ?", receiptID,
				[]models.ReceiptStatus{models.ReceiptPending, models.ReceiptSuspicious}).
			Updates(map[string]interface{}{
				"status":          models.ReceiptRejected,
				"reviewed_by":     reviewer,
				"reviewed_at":     now,
				"decision_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: receipt %s already decided", ErrConflict, receiptID)
		}
		if err := tx.Where("receipt_id = ?", receiptID).Delete(&models.QueueItem{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.ReconciliationAuditLog{
			ID:          uuid.New(),
			ReceiptID:   receiptID,
			Action:      models.AuditActionRejected,
			PerformedBy: reviewer,
			Reason:      reason,
			CreatedAt:   now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("receipt rejected", "receipt_id", receiptID, "reviewed_by", reviewer)
	return s.getReceipt(receiptID)
}

// RescoreAssociation bumps the match version of every undecided receipt of
// the association and refreshes its queue row, running the auto-approve
// path where policy allows.
func (s *Service) RescoreAssociation(ctx context.Context, associationID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&models.Receipt{}).
		Where("association_id = ? AND ocr_processed = ? AND status IN ?",
			associationID, true,
			[]models.ReceiptStatus{models.ReceiptPending, models.ReceiptSuspicious}).
		Update("match_version", gorm.Expr("match_version + 1")).Error
	if err != nil {
		return err
	}

	receipts, err := s.receiptRepo.ListUndecided(associationID)
	if err != nil {
		return err
	}
	for i := range receipts {
		if err := s.refresh(ctx, &receipts[i]); err != nil {
			return err
		}
	}
	return nil
}

// refresh recomputes matches for one receipt, updates its queue row, and
// attempts auto-approval when eligible.
func (s *Service) refresh(ctx context.Context, receipt *models.Receipt) error {
	if !receipt.OCRProcessed || !receipt.Status.Decidable() {
		return nil
	}
	candidates, err := s.txRepo.ListPending(receipt.AssociationID)
	if err != nil {
		return err
	}
	matches := matching.Score(receipt, candidates, s.policy.Scoring)

	if s.shouldAutoApprove(receipt, matches) {
		timeout := time.Duration(s.policy.AutoApprove.TimeoutSeconds) * time.Second
		autoCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := s.commitApproval(autoCtx, receipt, matches[0], AutoReviewer,
			models.AuditActionAutoApproved, "Aprovado automaticamente")
		if err == nil {
			s.log.Info("receipt auto-approved",
				"receipt_id", receipt.ID, "transaction_id", matches[0].TransactionID,
				"score", matches[0].Score)
			return nil
		}
		// Losing the race to a human decision is not an import failure;
		// fall through and queue whatever is still reconcilable.
		s.log.Warn("auto-approval aborted", "receipt_id", receipt.ID, "error", err)
		refreshed, gerr := s.getReceipt(receipt.ID)
		if gerr != nil {
			return gerr
		}
		if !refreshed.Status.Decidable() {
			return nil
		}
		receipt = refreshed
	}

	return s.queue.Enqueue(receipt, matches, s.now())
}

// shouldAutoApprove gates the no-human path: policy enabled, exactly one
// candidate above the auto threshold, trustworthy OCR, and a fraud score
// below the threshold. Suspicious receipts always go to a human.
func (s *Service) shouldAutoApprove(receipt *models.Receipt, matches []matching.Match) bool {
	if !s.policy.AutoApprove.Enabled || receipt.Status != models.ReceiptPending {
		return false
	}
	if receipt.OCRConfidence < s.policy.Scoring.ConfidenceFloor {
		return false
	}
	if receipt.FraudScore >= s.policy.Queue.FraudThreshold {
		return false
	}
	above := 0
	for _, m := range matches {
		if m.Score >= s.policy.Scoring.AutoApproveScore {
			above++
		}
	}
	return above == 1 && matches[0].Score >= s.policy.Scoring.AutoApproveScore
}

// commitApproval applies the three approval effects in one transaction:
// transaction reconciled, receipt approved, queue row gone, plus the audit
// row. Conditional updates guard both sides; any guard miss rolls the whole
// commit back with a conflict.
func (s *Service) commitApproval(ctx context.Context, receipt *models.Receipt, match matching.Match, reviewer, action, reason string) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BankTransaction{}).
			Where("id = ? AND status = ?", match.TransactionID, models.TransactionPending).
			Updates(map[string]interface{}{
				"status":     models.TransactionReconciled,
				"receipt_id": receipt.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: transaction %s is no longer pending", ErrConflict, match.TransactionID)
		}

		res = tx.Model(&models.Receipt{}).
			Where("id = ? AND match_version = ? AND status IN ?",
				receipt.ID, receipt.MatchVersion,
				[]models.ReceiptStatus{models.ReceiptPending, models.ReceiptSuspicious}).
			Updates(map[string]interface{}{
				"status":          models.ReceiptApproved,
				"transaction_id":  match.TransactionID,
				"reviewed_by":     reviewer,
				"reviewed_at":     now,
				"decision_reason": reason,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: receipt %s was decided concurrently", ErrConflict, receipt.ID)
		}

		if err := tx.Where("receipt_id = ?", receipt.ID).Delete(&models.QueueItem{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.ReconciliationAuditLog{
			ID:            uuid.New(),
			ReceiptID:     receipt.ID,
			TransactionID: &match.TransactionID,
			Action:        action,
			PerformedBy:   reviewer,
			Reason:        reason,
			MatchScore:    match.Score,
			CreatedAt:     now,
		}).Error
	})
}

func (s *Service) getReceipt(id uuid.UUID) (*models.Receipt, error) {
	receipt, err := s.receiptRepo.GetByID(id)
	if repository.IsNotFound(err) {
		return nil, fmt.Errorf("%w: receipt %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func markDuplicateOf(receipt *models.Receipt, originalID uuid.UUID) {
	receipt.Status = models.ReceiptDuplicate
	receipt.DuplicateOf = &originalID
	receipt.FraudScore = 100
	receipt.FraudFlags, _ = json.Marshal([]string{"duplicate_file"})
}

func findMatch(matches []matching.Match, transactionID uuid.UUID) (matching.Match, bool) {
	for _, m := range matches {
		if m.TransactionID == transactionID {
			return m, true
		}
	}
	return matching.Match{}, false
}
