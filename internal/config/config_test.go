package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headline-goat/launch-goat/internal/config"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestValidate_SevereBelowWorsened(t *testing.T) {
	th := config.Default()
	th.GuardrailSevere = 0.0005

	err := th.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestValidate_SevereEqualWorsenedAllowed(t *testing.T) {
	th := config.Default()
	th.GuardrailSevere = th.GuardrailWorsened

	assert.NoError(t, th.Validate())
}

func TestValidate_BlockedAboveWarning(t *testing.T) {
	th := config.Default()
	th.SRMBlocked = 0.01

	assert.ErrorIs(t, th.Validate(), config.ErrInvalid)
}

func TestValidate_UnknownMethod(t *testing.T) {
	th := config.Default()
	th.MultipleTesting = "sidak"

	assert.ErrorIs(t, th.Validate(), config.ErrInvalid)
}

func TestValidate_AlphaRange(t *testing.T) {
	for _, alpha := range []float64{0, 1, -0.1} {
		th := config.Default()
		th.Alpha = alpha
		assert.Error(t, th.Validate(), "alpha=%v", alpha)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg.Thresholds)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lg.yaml")
	content := `
thresholds:
  alpha: 0.01
  multiple_testing: holm
server:
  port: 9090
cache:
  ttl: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.01, cfg.Thresholds.Alpha)
	assert.Equal(t, config.MethodHolm, cfg.Thresholds.MultipleTesting)
	assert.Equal(t, 0.003, cfg.Thresholds.GuardrailSevere)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("LG_THRESHOLDS_MIN_SAMPLE_SIZE", "500")
	t.Setenv("LG_STORE_PATH", "/tmp/other.db")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(500), cfg.Thresholds.MinSampleSize)
	assert.Equal(t, "/tmp/other.db", cfg.Store.Path)
}

func TestLoad_InvalidThresholdsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lg.yaml")
	content := `
thresholds:
  guardrail_worsened: 0.01
  guardrail_severe: 0.005
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := config.Load(path)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
