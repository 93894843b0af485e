package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplianceClient_Check(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/compliance/check", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"verdict":"alerta","report":"CNAE divergente do serviço declarado"}`))
	}))
	defer srv.Close()

	t.Setenv("COMPLIANCE_API_URL", srv.URL)
	client := NewComplianceClient()

	result, err := client.Check(context.Background(), ComplianceRequest{
		SupplierTaxID:   "12345678000190",
		ServiceCategory: "manutencao_elevador",
	})
	require.NoError(t, err)
	assert.Equal(t, VerdictAlert, result.Verdict)
	assert.NotEmpty(t, result.Report)
}

func TestComplianceClient_Validation(t *testing.T) {
	client := NewComplianceClient()

	_, err := client.Check(context.Background(), ComplianceRequest{ServiceCategory: "limpeza"})
	assert.Error(t, err)

	_, err = client.Check(context.Background(), ComplianceRequest{SupplierTaxID: "12345678000190"})
	assert.Error(t, err)
}

func TestComplianceClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	srv.Close() // refuse connections

	t.Setenv("COMPLIANCE_API_URL", srv.URL)
	client := NewComplianceClient()

	_, err := client.Check(context.Background(), ComplianceRequest{
		SupplierTaxID:   "12345678000190",
		ServiceCategory: "limpeza",
	})
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestComplianceClient_UnknownVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"verdict":"talvez"}`))
	}))
	defer srv.Close()

	t.Setenv("COMPLIANCE_API_URL", srv.URL)
	client := NewComplianceClient()

	_, err := client.Check(context.Background(), ComplianceRequest{
		SupplierTaxID:   "12345678000190",
		ServiceCategory: "limpeza",
	})
	assert.ErrorIs(t, err, ErrUnreachable)
}
