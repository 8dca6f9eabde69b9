package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.MaxAnalysts)
	assert.Equal(t, 4, cfg.MaxTurns)
	assert.Equal(t, 180*time.Second, cfg.ReviewTimeout)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 50, cfg.RecursionLimit)
	assert.Equal(t, 0, cfg.MaxRegenerations)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(`
max_analysts: 5
max_turns: 2
review_timeout: 90s
poll_interval: 500ms
max_regenerations: 3
`))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxAnalysts)
	assert.Equal(t, 2, cfg.MaxTurns)
	assert.Equal(t, 90*time.Second, cfg.ReviewTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxRegenerations)
	// Untouched fields keep their defaults.
	assert.Equal(t, 50, cfg.RecursionLimit)
	assert.Equal(t, "weft-workflow", cfg.ReviewerName)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	_, err := Load(strings.NewReader(`max_analysts: 0`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_analysts")

	_, err = Load(strings.NewReader(`max_turns: -1`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_turns")

	_, err = Load(strings.NewReader(`not yaml: [`))
	require.Error(t, err)
}
