package reconciliation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"condo-audit-backend/internal/config"
	"condo-audit-backend/internal/models"
	"condo-audit-backend/internal/repository"
	"condo-audit-backend/internal/services/queue"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDay = time.Date(2025, 12, 28, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	service *Service
	queue   *queue.Manager
	assocID uuid.UUID
}

func newFixture(t *testing.T, policy config.Policy) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.BankTransaction{},
		&models.Receipt{},
		&models.QueueItem{},
		&models.ReconciliationAuditLog{},
	))

	receiptRepo := repository.NewReceiptRepository(db)
	txRepo := repository.NewBankTransactionRepository(db)
	queueMgr := queue.NewManager(repository.NewQueueRepository(db), receiptRepo, policy)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		db:      db,
		service: NewService(receiptRepo, txRepo, queueMgr, policy, log),
		queue:   queueMgr,
		assocID: uuid.New(),
	}
}

func (f *fixture) importTx(t *testing.T, amount string, date time.Time, nsu string) models.BankTransaction {
	t.Helper()
	txs, err := f.service.ImportTransactions(context.Background(), f.assocID, []TransactionInput{{
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Description: "PIX RECEBIDO COND",
		NSU:         nsu,
	}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	return txs[0]
}

func (f *fixture) registerReceipt(t *testing.T, hash string) *models.Receipt {
	t.Helper()
	r, err := f.service.RegisterReceipt(context.Background(), ReceiptInput{
		AssociationID: f.assocID,
		UploadedBy:    "morador-101",
		Unit:          "101",
		FileHash:      hash,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) applyOCR(t *testing.T, receiptID uuid.UUID, amount string, date time.Time, confidence float64, nsu string) *models.Receipt {
	t.Helper()
	amt := decimal.RequireFromString(amount)
	d := date
	r, err := f.service.ApplyOCRResult(context.Background(), receiptID, OCRResult{
		Confidence: confidence,
		Amount:     &amt,
		Date:       &d,
		NSU:        nsu,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) queueItem(t *testing.T, receiptID uuid.UUID) *models.QueueItem {
	t.Helper()
	var item models.QueueItem
	err := f.db.First(&item, "receipt_id = ?", receiptID).Error
	if repository.IsNotFound(err) {
		return nil
	}
	require.NoError(t, err)
	return &item
}

func TestRegisterReceipt_Validation(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())

	_, err := f.service.RegisterReceipt(context.Background(), ReceiptInput{AssociationID: f.assocID})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.service.RegisterReceipt(context.Background(), ReceiptInput{FileHash: "abc"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegisterReceipt_DuplicateHash(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())

	original := f.registerReceipt(t, "hash-1")
	assert.Equal(t, models.ReceiptProcessing, original.Status)
	assert.Nil(t, f.queueItem(t, original.ID), "processing receipts are not queued")

	dup := f.registerReceipt(t, "hash-1")
	assert.Equal(t, models.ReceiptDuplicate, dup.Status)
	require.NotNil(t, dup.DuplicateOf)
	assert.Equal(t, original.ID, *dup.DuplicateOf)

	item := f.queueItem(t, dup.ID)
	require.NotNil(t, item)
	assert.Equal(t, models.QueueDuplicate, item.Type)
}

func TestRegisterReceipt_OneOriginalPerHash(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	repo := repository.NewReceiptRepository(f.db)

	first := &models.Receipt{
		ID: uuid.New(), AssociationID: f.assocID, FileHash: "hash-1",
		Status: models.ReceiptProcessing, UploadedAt: testDay,
	}
	require.NoError(t, repo.Create(first))

	// Two concurrent uploads of the same file cannot both land as
	// originals: the second insert trips the partial unique index.
	second := &models.Receipt{
		ID: uuid.New(), AssociationID: f.assocID, FileHash: "hash-1",
		Status: models.ReceiptProcessing, UploadedAt: testDay,
	}
	assert.ErrorIs(t, repo.Create(second), gorm.ErrDuplicatedKey)

	// Rows marked as duplicates share the hash freely.
	second.Status = models.ReceiptDuplicate
	second.DuplicateOf = &first.ID
	require.NoError(t, repo.Create(second))

	// Other associations may reuse the hash.
	other := &models.Receipt{
		ID: uuid.New(), AssociationID: uuid.New(), FileHash: "hash-1",
		Status: models.ReceiptProcessing, UploadedAt: testDay,
	}
	require.NoError(t, repo.Create(other))
}

func TestCallbacks_WriteOnlyTheirOwnColumns(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	f.importTx(t, "850.00", testDay, "NSU-1")

	// Fraud verdict first, OCR second: the OCR write must not reset the
	// fraud columns to their zero values, and each callback advances the
	// version exactly once.
	r := f.registerReceipt(t, "hash-1")
	_, err := f.service.ApplyFraudResult(context.Background(), r.ID, FraudResult{
		FraudScore:      85,
		Flags:           []string{"edited_with_photoshop"},
		DocumentAltered: true,
	})
	require.NoError(t, err)

	updated := f.applyOCR(t, r.ID, "850.00", testDay, 96, "NSU-1")
	assert.EqualValues(t, 85, updated.FraudScore)
	assert.True(t, updated.DocumentAltered)
	assert.JSONEq(t, `["edited_with_photoshop"]`, string(updated.FraudFlags))
	assert.Equal(t, models.ReceiptSuspicious, updated.Status)
	assert.EqualValues(t, 2, updated.MatchVersion)

	// Reverse order: the fraud write keeps everything OCR extracted.
	r2 := f.registerReceipt(t, "hash-2")
	r2 = f.applyOCR(t, r2.ID, "850.00", testDay, 96, "NSU-1")
	updated2, err := f.service.ApplyFraudResult(context.Background(), r2.ID, FraudResult{FraudScore: 20})
	require.NoError(t, err)
	assert.True(t, updated2.OCRProcessed)
	assert.EqualValues(t, 96, updated2.OCRConfidence)
	require.NotNil(t, updated2.OCRAmount)
	assert.Equal(t, "850", updated2.OCRAmount.String())
	assert.EqualValues(t, 20, updated2.FraudScore)
	assert.EqualValues(t, 2, updated2.MatchVersion)
}

func TestApplyOCRResult_QueuesReceipt(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	tx := f.importTx(t, "850.00", testDay, "NSU-1")

	r := f.registerReceipt(t, "hash-1")
	r = f.applyOCR(t, r.ID, "850.00", testDay, 96, "NSU-1")

	assert.Equal(t, models.ReceiptPending, r.Status)
	assert.EqualValues(t, 1, r.MatchVersion)

	item := f.queueItem(t, r.ID)
	require.NotNil(t, item)
	assert.Equal(t, models.QueueManual, item.Type)

	matches, version, err := f.service.MatchesFor(context.Background(), r.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	require.Len(t, matches, 1)
	assert.Equal(t, tx.ID, matches[0].TransactionID)
	assert.GreaterOrEqual(t, matches[0].Score, 95.0)
}

func TestMatchesFor_BeforeOCR(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	r := f.registerReceipt(t, "hash-1")

	_, _, err := f.service.MatchesFor(context.Background(), r.ID)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestApprove_HappyPath(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	tx := f.importTx(t, "850.00", testDay, "NSU-1")
	r := f.registerReceipt(t, "hash-1")
	r = f.applyOCR(t, r.ID, "850.00", testDay, 96, "NSU-1")

	receipt, updatedTx, err := f.service.Approve(context.Background(), r.ID, tx.ID, r.MatchVersion, "sindico")
	require.NoError(t, err)

	assert.Equal(t, models.ReceiptApproved, receipt.Status)
	require.NotNil(t, receipt.TransactionID)
	assert.Equal(t, tx.ID, *receipt.TransactionID)
	assert.Equal(t, "sindico", receipt.ReviewedBy)

	assert.Equal(t, models.TransactionReconciled, updatedTx.Status)
	require.NotNil(t, updatedTx.ReceiptID)
	assert.Equal(t, r.ID, *updatedTx.ReceiptID)

	assert.Nil(t, f.queueItem(t, r.ID), "approved receipts leave the queue")

	var audit models.ReconciliationAuditLog
	require.NoError(t, f.db.First(&audit, "receipt_id = ?", r.ID).Error)
	assert.Equal(t, models.AuditActionApproved, audit.Action)
	assert.Equal(t, "sindico", audit.PerformedBy)
}

func TestApprove_StaleVersionConflict(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	tx := f.importTx(t, "850.00", testDay, "")
	r := f.registerReceipt(t, "hash-1")
	r = f.applyOCR(t, r.ID, "850.00", testDay, 96, "")

	_, _, err := f.service.Approve(context.Background(), r.ID, tx.ID, r.MatchVersion-1, "sindico")
	assert.ErrorIs(t, err, ErrConflict)

	var reloaded models.Receipt
	require.NoError(t, f.db.First(&reloaded, "id = ?", r.ID).Error)
	assert.Equal(t, models.ReceiptPending, reloaded.Status, "stale decision leaves the receipt untouched")
}

func TestApprove_SingleFire(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	tx1 := f.importTx(t, "850.00", testDay, "")
	tx2 := f.importTx(t, "850.00", testDay.AddDate(0, 0, 1), "")
	r := f.registerReceipt(t, "hash-1")
	r = f.applyOCR(t, r.ID, "850.00", testDay, 96, "")

	_, _, err := f.service.Approve(context.Background(), r.ID, tx1.ID, r.MatchVersion, "sindico")
	require.NoError(t, err)

	_, _, err = f.service.Approve(context.Background(), r.ID, tx2.ID, r.MatchVersion, "subsindico")
	assert.ErrorIs(t, err, ErrConflict, "a second decision on the same receipt must conflict")

	var tx2Reloaded models.BankTransaction
	require.NoError(t, f.db.First(&tx2Reloaded, "id = ?", tx2.ID).Error)
	assert.Equal(t, models.TransactionPending, tx2Reloaded.Status, "the losing decision touches nothing")
}

func TestApprove_TransactionTakenElsewhere(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	tx := f.importTx(t, "850.00", testDay, "")

	a := f.registerReceipt(t, "hash-a")
	a = f.applyOCR(t, a.ID, "850.00", testDay, 96, "")
	b := f.registerReceipt(t, "hash-b")
	b = f.applyOCR(t, b.ID, "850.00", testDay, 96, "")

	_, _, err := f.service.Approve(context.Background(), a.ID, tx.ID, a.MatchVersion, "sindico")
	require.NoError(t, err)

	_, _, err = f.service.Approve(context.Background(), b.ID, tx.ID, b.MatchVersion, "sindico")
	assert.ErrorIs(t, err, ErrConflict)

	item := f.queueItem(t, b.ID)
	require.NotNil(t, item, "the losing receipt stays queued")
	assert.JSONEq(t, "[]", string(item.Matches), "with a refreshed, now-empty match list")

	var bReloaded models.Receipt
	require.NoError(t, f.db.First(&bReloaded, "id = ?", b.ID).Error)
	assert.Equal(t, models.ReceiptPending, bReloaded.Status)
}

func TestReject(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	f.importTx(t, "850.00", testDay, "")
	r := f.registerReceipt(t, "hash-1")
	r = f.applyOCR(t, r.ID, "850.00", testDay, 96, "")

	t.Run("requires a reason", func(t *testing.T) {
		_, err := f.service.Reject(context.Background(), r.ID, "", "sindico")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects and dequeues", func(t *testing.T) {
		rejected, err := f.service.Reject(context.Background(), r.ID, "comprovante ilegível", "sindico")
		require.NoError(t, err)
		assert.Equal(t, models.ReceiptRejected, rejected.Status)
		assert.Equal(t, "comprovante ilegível", rejected.DecisionReason)
		assert.Nil(t, f.queueItem(t, r.ID))

		var tx models.BankTransaction
		require.NoError(t, f.db.First(&tx).Error)
		assert.Equal(t, models.TransactionPending, tx.Status, "rejection touches no transaction")
	})

	t.Run("second decision conflicts", func(t *testing.T) {
		_, err := f.service.Reject(context.Background(), r.ID, "de novo", "sindico")
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestAutoApprove_Path(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.AutoApprove.Enabled = true
	f := newFixture(t, policy)

	tx := f.importTx(t, "850.00", testDay, "NSU-1")
	r := f.registerReceipt(t, "hash-1")
	r = f.applyOCR(t, r.ID, "850.00", testDay, 96, "NSU-1")

	assert.Equal(t, models.ReceiptApproved, r.Status)
	require.NotNil(t, r.TransactionID)
	assert.Equal(t, tx.ID, *r.TransactionID)
	assert.Equal(t, AutoReviewer, r.ReviewedBy)
	assert.Nil(t, f.queueItem(t, r.ID))

	var audit models.ReconciliationAuditLog
	require.NoError(t, f.db.First(&audit, "receipt_id = ?", r.ID).Error)
	assert.Equal(t, models.AuditActionAutoApproved, audit.Action, "auto-approvals stay distinguishable")
	assert.Equal(t, AutoReviewer, audit.PerformedBy)
}

func TestAutoApprove_BlockedByFraud(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.AutoApprove.Enabled = true
	f := newFixture(t, policy)

	f.importTx(t, "850.00", testDay, "NSU-1")
	r := f.registerReceipt(t, "hash-1")

	_, err := f.service.ApplyFraudResult(context.Background(), r.ID, FraudResult{
		FraudScore: 85,
		Flags:      []string{"edited_with_photoshop"},
	})
	require.NoError(t, err)

	updated := f.applyOCR(t, r.ID, "850.00", testDay, 96, "NSU-1")
	assert.Equal(t, models.ReceiptSuspicious, updated.Status, "a perfect match never overrides fraud routing")

	item := f.queueItem(t, r.ID)
	require.NotNil(t, item)
	assert.Equal(t, models.QueueSuspectedFraud, item.Type)
}

func TestAutoApprove_BlockedByMultipleCandidates(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.AutoApprove.Enabled = true
	f := newFixture(t, policy)

	f.importTx(t, "850.00", testDay, "NSU-1")
	f.importTx(t, "850.00", testDay, "NSU-1")
	r := f.registerReceipt(t, "hash-1")
	r = f.applyOCR(t, r.ID, "850.00", testDay, 96, "NSU-1")

	assert.Equal(t, models.ReceiptPending, r.Status, "two strong candidates require a human")
	item := f.queueItem(t, r.ID)
	require.NotNil(t, item)
	assert.Equal(t, models.QueueMultipleMatches, item.Type)
}

func TestImportTransactions_RescoresExistingReceipts(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())

	r := f.registerReceipt(t, "hash-1")
	r = f.applyOCR(t, r.ID, "850.00", testDay, 96, "")
	item := f.queueItem(t, r.ID)
	require.NotNil(t, item)
	assert.JSONEq(t, "[]", string(item.Matches), "no candidates yet")

	tx := f.importTx(t, "850.00", testDay, "")

	var reloaded models.Receipt
	require.NoError(t, f.db.First(&reloaded, "id = ?", r.ID).Error)
	assert.EqualValues(t, 2, reloaded.MatchVersion, "new transactions invalidate old match snapshots")

	matches, _, err := f.service.MatchesFor(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, tx.ID, matches[0].TransactionID)

	item = f.queueItem(t, r.ID)
	require.NotNil(t, item)
	assert.NotEqual(t, "[]", string(item.Matches), "queue row carries the refreshed match list")
}

func TestApplyOCRResult_ErrorStillQueues(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	r := f.registerReceipt(t, "hash-1")

	updated, err := f.service.ApplyOCRResult(context.Background(), r.ID, OCRResult{
		Confidence: 0,
		Error:      "unreadable document",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReceiptPending, updated.Status, "an errored OCR still counts as arrived")

	item := f.queueItem(t, r.ID)
	require.NotNil(t, item)
	assert.Equal(t, models.QueueLowConfidence, item.Type)
}

func TestApplyOCRResult_Validation(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	r := f.registerReceipt(t, "hash-1")

	_, err := f.service.ApplyOCRResult(context.Background(), r.ID, OCRResult{Confidence: 150})
	assert.ErrorIs(t, err, ErrValidation)

	bad := decimal.NewFromInt(-5)
	_, err = f.service.ApplyOCRResult(context.Background(), r.ID, OCRResult{Confidence: 90, Amount: &bad})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDecisions_OnUnknownReceipt(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())

	_, _, err := f.service.Approve(context.Background(), uuid.New(), uuid.New(), 0, "sindico")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.service.Reject(context.Background(), uuid.New(), "motivo", "sindico")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApprove_BeforeOCR(t *testing.T) {
	f := newFixture(t, config.DefaultPolicy())
	tx := f.importTx(t, "850.00", testDay, "")
	r := f.registerReceipt(t, "hash-1")

	_, _, err := f.service.Approve(context.Background(), r.ID, tx.ID, 0, "sindico")
	assert.ErrorIs(t, err, ErrNotReady)
}
