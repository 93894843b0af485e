package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Policy holds every tunable of the matching and queueing engine. The spec
// for these values fixes their role, not their numbers: everything here can
// be overridden by policy.yaml and selected environment variables.
type Policy struct {
	Scoring     ScoringPolicy     `yaml:"scoring"`
	Queue       QueuePolicy       `yaml:"queue"`
	AutoApprove AutoApprovePolicy `yaml:"auto_approve"`
}

// ScoringPolicy drives the pure match scorer.
type ScoringPolicy struct {
	// Amount gate: a candidate is kept when it is within the absolute OR
	// the relative tolerance of the OCR amount.
	AmountToleranceAbs float64 `yaml:"amount_tolerance_abs"`
	AmountToleranceRel float64 `yaml:"amount_tolerance_rel"`
	// Date gate: candidates beyond the window are excluded unless the NSU
	// matches exactly.
	DateWindowDays int `yaml:"date_window_days"`
	// Receipts whose OCR confidence is below the floor have their scores
	// capped just under AutoApproveScore, forcing human review.
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	// A match above ReviewScore counts toward "multiple matches" routing.
	ReviewScore      float64 `yaml:"review_score"`
	AutoApproveScore float64 `yaml:"auto_approve_score"`

	Weights ScoringWeights `yaml:"weights"`
}

type ScoringWeights struct {
	ExactAmount  float64 `yaml:"exact_amount"`
	ApproxAmount float64 `yaml:"approx_amount"`
	ExactDate    float64 `yaml:"exact_date"`
	NearDate     float64 `yaml:"near_date"`
	NSU          float64 `yaml:"nsu"`
	Barcode      float64 `yaml:"barcode"`
	Description  float64 `yaml:"description"`
}

// QueuePolicy drives priority and queue-type classification.
type QueuePolicy struct {
	FraudThreshold float64 `yaml:"fraud_threshold"`
	FraudWeight    float64 `yaml:"fraud_weight"`
	AgingPerHour   float64 `yaml:"aging_per_hour"`
	AmountWeight   float64 `yaml:"amount_weight"`
	TopScoreWeight float64 `yaml:"top_score_weight"`
}

type AutoApprovePolicy struct {
	Enabled        bool `yaml:"enabled"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

func DefaultPolicy() Policy {
	return Policy{
		Scoring: ScoringPolicy{
			AmountToleranceAbs: 0.50,
			AmountToleranceRel: 0.01,
			DateWindowDays:     3,
			ConfidenceFloor:    70,
			ReviewScore:        60,
			AutoApproveScore:   90,
			Weights: ScoringWeights{
				ExactAmount:  40,
				ApproxAmount: 25,
				ExactDate:    20,
				NearDate:     10,
				NSU:          35,
				Barcode:      20,
				Description:  5,
			},
		},
		Queue: QueuePolicy{
			FraudThreshold: 70,
			FraudWeight:    0.5,
			AgingPerHour:   0.1,
			AmountWeight:   0.01,
			TopScoreWeight: 0.3,
		},
		AutoApprove: AutoApprovePolicy{
			Enabled:        false,
			TimeoutSeconds: 5,
		},
	}
}

// LoadPolicy returns the defaults overlaid with policy.yaml (when present)
// and environment overrides.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &p); err != nil {
				return p, fmt.Errorf("parse policy %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return p, fmt.Errorf("read policy %s: %w", path, err)
		}
	}

	if v := os.Getenv("AUTO_APPROVE_ENABLED"); v != "" {
		p.AutoApprove.Enabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("FRAUD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			p.Queue.FraudThreshold = f
		}
	}
	return p, nil
}
