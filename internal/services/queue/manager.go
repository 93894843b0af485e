// Package queue maintains the human review queue as a materialized view
// over receipt and transaction state. Rows are refreshed by the workflow on
// every relevant store mutation; listing recomputes aging-sensitive
// priority at read time so old items cannot starve.
package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"condo-audit-backend/internal/config"
	"condo-audit-backend/internal/models"
	"condo-audit-backend/internal/repository"
	"condo-audit-backend/internal/services/matching"

	"github.com/google/uuid"
)

type Manager struct {
	queueRepo   *repository.QueueRepository
	receiptRepo *repository.ReceiptRepository
	policy      config.Policy
}

func NewManager(queueRepo *repository.QueueRepository, receiptRepo *repository.ReceiptRepository, policy config.Policy) *Manager {
	return &Manager{queueRepo: queueRepo, receiptRepo: receiptRepo, policy: policy}
}

// Classify picks the queue type explaining why a receipt needs review.
// Checks are mutually exclusive and run in fixed precedence order:
// duplicate > suspected fraud > multiple matches > low confidence > manual.
func Classify(receipt *models.Receipt, matches []matching.Match, p config.Policy) models.QueueType {
	switch {
	case receipt.DuplicateOf != nil || receipt.Status == models.ReceiptDuplicate:
		return models.QueueDuplicate
	case receipt.FraudScore >= p.Queue.FraudThreshold:
		return models.QueueSuspectedFraud
	case countAbove(matches, p.Scoring.ReviewScore) > 1:
		return models.QueueMultipleMatches
	case receipt.OCRProcessed && receipt.OCRConfidence < p.Scoring.ConfidenceFloor:
		return models.QueueLowConfidence
	}
	return models.QueueManual
}

func countAbove(matches []matching.Match, threshold float64) int {
	n := 0
	for _, m := range matches {
		if m.Score > threshold {
			n++
		}
	}
	return n
}

// Priority computes the review urgency of a receipt at a given instant.
// It rises with fraud score, age and payment size, and falls with the top
// match score (near-certain matches are auto-resolution candidates).
func Priority(receipt *models.Receipt, topScore float64, now time.Time, p config.QueuePolicy) float64 {
	ageHours := now.Sub(receipt.UploadedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	amount := 0.0
	if receipt.OCRAmount != nil {
		amount = receipt.OCRAmount.Abs().InexactFloat64()
	}
	return receipt.FraudScore*p.FraudWeight +
		ageHours*p.AgingPerHour +
		amount*p.AmountWeight -
		topScore*p.TopScoreWeight
}

func topScore(matches []matching.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	return matches[0].Score
}

// Enqueue inserts or refreshes the queue row for a receipt. Re-enqueuing an
// already-queued receipt updates its match list, type and priority in place.
func (m *Manager) Enqueue(receipt *models.Receipt, matches []matching.Match, now time.Time) error {
	if matches == nil {
		matches = []matching.Match{}
	}
	payload, err := json.Marshal(matches)
	if err != nil {
		return fmt.Errorf("marshal matches: %w", err)
	}
	item := &models.QueueItem{
		ID:            uuid.New(),
		ReceiptID:     receipt.ID,
		AssociationID: receipt.AssociationID,
		Type:          Classify(receipt, matches, m.policy),
		Priority:      Priority(receipt, topScore(matches), now, m.policy.Queue),
		Status:        models.QueuePending,
		Matches:       payload,
		MatchVersion:  receipt.MatchVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return m.queueRepo.Upsert(item)
}

// Remove drops the queue row after a decision. Idempotent.
func (m *Manager) Remove(receiptID uuid.UUID) error {
	return m.queueRepo.DeleteByReceipt(receiptID)
}

// List returns the open queue of one association ordered by priority
// descending. Priority is recomputed against the current clock so aging is
// reflected without a write; the ordering is total (ties broken by upload
// time ascending, then receipt ID).
func (m *Manager) List(associationID uuid.UUID, queueType string, now time.Time) ([]models.QueueItem, error) {
	items, err := m.queueRepo.ListOpen(associationID, queueType)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []models.QueueItem{}, nil
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ReceiptID)
	}
	receipts, err := m.receiptRepo.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Receipt, len(receipts))
	for _, r := range receipts {
		byID[r.ID] = r
	}

	uploaded := make(map[uuid.UUID]time.Time, len(items))
	for i := range items {
		receipt, ok := byID[items[i].ReceiptID]
		if !ok {
			continue
		}
		uploaded[items[i].ReceiptID] = receipt.UploadedAt

		var matches []matching.Match
		_ = json.Unmarshal(items[i].Matches, &matches)
		items[i].Priority = Priority(&receipt, topScore(matches), now, m.policy.Queue)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		ui, uj := uploaded[items[i].ReceiptID], uploaded[items[j].ReceiptID]
		if !ui.Equal(uj) {
			return ui.Before(uj)
		}
		return items[i].ReceiptID.String() < items[j].ReceiptID.String()
	})
	return items, nil
}
