package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWriter(&buf, "WARN", false))
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Msg("dropped")
	log.Warn().Str("model_path", "models/best_model.onnx").Msg("demo mode")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "demo mode", entry["message"])
	assert.Equal(t, "atk-classifier", entry["app"])
}

func TestInitWriterEmptyLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitWriter(&buf, "", true))

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInitWriterRejectsUnknownLevel(t *testing.T) {
	assert.Error(t, InitWriter(&bytes.Buffer{}, "verbose", false))
}
