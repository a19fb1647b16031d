package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Level(t *testing.T) {
	l, err := New(Config{Level: "WARN", Encoding: "json"})
	require.NoError(t, err)

	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid level")
}

func TestNew_InvalidEncoding(t *testing.T) {
	_, err := New(Config{Encoding: "xml"})
	require.Error(t, err)
}

func TestInitAndL(t *testing.T) {
	l, err := Init(Config{Development: true, Encoding: "console", Service: "clicklink"})
	require.NoError(t, err)
	assert.Same(t, l, L())
	assert.NoError(t, Sync())
}

func TestEncoderConfig(t *testing.T) {
	console := encoderConfig("console")
	assert.Equal(t, " | ", console.ConsoleSeparator)

	json := encoderConfig("json")
	assert.Equal(t, "msg", json.MessageKey)
	assert.Empty(t, json.ConsoleSeparator)

	assert.NotNil(t, levelEncoder(true))
	assert.NotNil(t, levelEncoder(false))
}
