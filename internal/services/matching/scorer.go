package matching

import (
	"math"
	"sort"
	"strings"
	"time"

	"condo-audit-backend/internal/config"
	"condo-audit-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Human-readable match reasons, in the order signals are evaluated.
const (
	ReasonExactAmount  = "Valor exato"
	ReasonApproxAmount = "Valor aproximado"
	ReasonExactDate    = "Data coincidente"
	ReasonNearDate     = "Data próxima"
	ReasonNSU          = "NSU confere"
	ReasonBarcode      = "Código de barras confere"
	ReasonDescription  = "Descrição semelhante"
)

// Match is a scored receipt/transaction pairing. Matches are derived values:
// they are recomputed from live store state on every use and never persisted
// as a source of truth.
type Match struct {
	TransactionID   uuid.UUID       `json:"transaction_id"`
	TransactionDate time.Time       `json:"transaction_date"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description,omitempty"`
	NSU             string          `json:"nsu,omitempty"`
	Score           float64         `json:"score"`
	Reasons         []string        `json:"reasons"`
}

// Score ranks candidate transactions against one receipt. It is pure: no
// I/O, no side effects, and deterministic output for identical input.
//
// Returns nil when the receipt has no usable OCR data yet ("not yet
// scored"); returns an empty, non-nil slice when scoring ran and found no
// candidate.
func Score(receipt *models.Receipt, candidates []models.BankTransaction, p config.ScoringPolicy) []Match {
	if !receipt.OCRProcessed || receipt.OCRAmount == nil {
		return nil
	}

	ocrAmount := receipt.OCRAmount.Abs()
	absTol := decimal.NewFromFloat(p.AmountToleranceAbs)
	relTol := ocrAmount.Mul(decimal.NewFromFloat(p.AmountToleranceRel))

	matches := make([]Match, 0, len(candidates))
	distances := make(map[uuid.UUID]int, len(candidates))

	for _, tx := range candidates {
		if tx.AssociationID != receipt.AssociationID || tx.Status != models.TransactionPending {
			continue
		}

		nsuMatch := receipt.OCRNSU != "" && tx.NSU != "" && receipt.OCRNSU == tx.NSU
		barcodeMatch := receipt.OCRBarcode != "" && tx.BarcodeValue != "" && receipt.OCRBarcode == tx.BarcodeValue

		diff := tx.Amount.Abs().Sub(ocrAmount).Abs()
		if diff.Cmp(absTol) > 0 && diff.Cmp(relTol) > 0 {
			continue
		}

		// Without an OCR date only a reference-number hit can place the
		// transaction; with one, the day window gates inclusion unless the
		// NSU or barcode matches exactly.
		days := math.MaxInt32
		if receipt.OCRDate != nil {
			days = dayDistance(*receipt.OCRDate, tx.TransactionDate)
		}
		if days > p.DateWindowDays && !nsuMatch && !barcodeMatch {
			continue
		}

		var score float64
		var reasons []string

		if diff.IsZero() {
			score += p.Weights.ExactAmount
			reasons = append(reasons, ReasonExactAmount)
		} else {
			score += p.Weights.ApproxAmount
			reasons = append(reasons, ReasonApproxAmount)
		}

		switch {
		case days == 0:
			score += p.Weights.ExactDate
			reasons = append(reasons, ReasonExactDate)
		case days <= p.DateWindowDays:
			score += p.Weights.NearDate
			reasons = append(reasons, ReasonNearDate)
		}

		if nsuMatch {
			score += p.Weights.NSU
			reasons = append(reasons, ReasonNSU)
		}
		if barcodeMatch {
			score += p.Weights.Barcode
			reasons = append(reasons, ReasonBarcode)
		}
		if descriptionOverlap(receipt.OCRRawText, tx.Description) {
			score += p.Weights.Description
			reasons = append(reasons, ReasonDescription)
		}

		score = math.Min(score, 100)
		if receipt.OCRConfidence < p.ConfidenceFloor {
			// Low-confidence OCR never reaches the auto-approval band.
			score = math.Min(score, p.AutoApproveScore-1)
		}

		distances[tx.ID] = days
		matches = append(matches, Match{
			TransactionID:   tx.ID,
			TransactionDate: tx.TransactionDate,
			Amount:          tx.Amount,
			Description:     tx.Description,
			NSU:             tx.NSU,
			Score:           score,
			Reasons:         reasons,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		di, dj := distances[matches[i].TransactionID], distances[matches[j].TransactionID]
		if di != dj {
			return di < dj
		}
		return matches[i].TransactionID.String() < matches[j].TransactionID.String()
	})

	return matches
}

func dayDistance(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(math.Abs(da.Sub(db).Hours()) / 24)
}

// descriptionOverlap reports whether any significant token of the bank
// description appears in the receipt's OCR text.
func descriptionOverlap(ocrText, description string) bool {
	if ocrText == "" || description == "" {
		return false
	}
	text := normalize(ocrText)
	for _, tok := range strings.Fields(normalize(description)) {
		if len(tok) >= 4 && strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.TrimSpace(s)
}
