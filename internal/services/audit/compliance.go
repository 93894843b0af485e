// Package audit is the boundary to the external supplier compliance
// service: one synchronous lookup per expense, no retries and no matching
// logic of its own.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

type Verdict string

const (
	VerdictApproved Verdict = "aprovado"
	VerdictAlert    Verdict = "alerta"
	VerdictRejected Verdict = "rejeitado"
)

// ErrUnreachable signals that the compliance service could not answer; the
// expense stays unaudited rather than being silently approved.
var ErrUnreachable = errors.New("compliance service unreachable")

type ComplianceRequest struct {
	SupplierTaxID   string `json:"supplier_tax_id"`
	ServiceCategory string `json:"service_category"`
}

type ComplianceResult struct {
	Verdict Verdict `json:"verdict"`
	Report  string  `json:"report"`
}

type ComplianceClient struct {
	baseURL string
	http    *http.Client
}

func NewComplianceClient() *ComplianceClient {
	baseURL := os.Getenv("COMPLIANCE_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:9090"
	}
	return &ComplianceClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Check performs the single synchronous compliance call.
func (c *ComplianceClient) Check(ctx context.Context, in ComplianceRequest) (*ComplianceResult, error) {
	if in.SupplierTaxID == "" {
		return nil, errors.New("supplier tax id is required")
	}
	if in.ServiceCategory == "" {
		return nil, errors.New("service category is required")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/compliance/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var result ComplianceResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	switch result.Verdict {
	case VerdictApproved, VerdictAlert, VerdictRejected:
		return &result, nil
	}
	return nil, fmt.Errorf("%w: unknown verdict %q", ErrUnreachable, result.Verdict)
}
