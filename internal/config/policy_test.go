package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolicy_Defaults(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)

	assert.Equal(t, 3, p.Scoring.DateWindowDays)
	assert.Equal(t, 70.0, p.Queue.FraudThreshold)
	assert.False(t, p.AutoApprove.Enabled)
}

func TestLoadPolicy_FileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scoring:
  date_window_days: 5
  confidence_floor: 80
auto_approve:
  enabled: true
`), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, 5, p.Scoring.DateWindowDays)
	assert.Equal(t, 80.0, p.Scoring.ConfidenceFloor)
	assert.True(t, p.AutoApprove.Enabled)
	// Untouched values keep their defaults.
	assert.Equal(t, 40.0, p.Scoring.Weights.ExactAmount)
}

func TestLoadPolicy_EnvOverrides(t *testing.T) {
	t.Setenv("AUTO_APPROVE_ENABLED", "true")
	t.Setenv("FRAUD_THRESHOLD", "55")

	p, err := LoadPolicy("")
	require.NoError(t, err)

	assert.True(t, p.AutoApprove.Enabled)
	assert.Equal(t, 55.0, p.Queue.FraudThreshold)
}

func TestLoadPolicy_MissingFileIsFine(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.NoError(t, err)
}

func TestLoadPolicy_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scoring: ["), 0o644))

	_, err := LoadPolicy(path)
	assert.Error(t, err)
}
