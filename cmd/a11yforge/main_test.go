package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/config"
)

func TestQuietLogConfig(t *testing.T) {
	zcfg := quietLogConfig()

	assert.Equal(t, []string{"stderr"}, zcfg.OutputPaths)
	assert.Equal(t, zap.WarnLevel, zcfg.Level.Level())
}

func TestNewLogger_KeepsWarnings(t *testing.T) {
	logger := newLogger(&config.Config{Env: config.EnvDevelopment}, false)
	require.NotNil(t, logger)

	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
	assert.True(t, logger.Core().Enabled(zap.ErrorLevel))
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
}
