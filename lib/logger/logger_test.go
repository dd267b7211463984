package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), tt.in)
	}
}

func TestNewUsesLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	log, err := New("test")
	require.NoError(t, err)

	assert.False(t, log.Desugar().Core().Enabled(zapcore.WarnLevel))
	assert.True(t, log.Desugar().Core().Enabled(zapcore.ErrorLevel))
}
