package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	logger, err := New(false, "")
	require.NoError(t, err)
	assert.False(t, logger.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Desugar().Core().Enabled(zapcore.WarnLevel))

	logger, err = New(false, "INFO")
	require.NoError(t, err)
	assert.True(t, logger.Desugar().Core().Enabled(zapcore.InfoLevel))

	logger, err = New(true, "error")
	require.NoError(t, err)
	assert.True(t, logger.Desugar().Core().Enabled(zapcore.DebugLevel))

	_, err = New(false, "loud")
	assert.Error(t, err)
	assert.Panics(t, func() { Must(false, "loud") })
}
