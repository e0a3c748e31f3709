package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremon "github.com/kilianp07/sitepower/core/monitoring"
)

func TestNewSentryMonitor_EmptyDSNIsNop(t *testing.T) {
	m, err := NewSentryMonitor(Config{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestNewSentryMonitor_InvalidDSN(t *testing.T) {
	_, err := NewSentryMonitor(Config{DSN: "not-a-dsn"})
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{TracesSampleRate: 0.2}.Validate())
	assert.Error(t, Config{TracesSampleRate: 2}.Validate())
}
