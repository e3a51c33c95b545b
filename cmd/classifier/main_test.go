package main

import (
	"testing"

	"github.com/Brownie44l1/atk-classifier/internal/config"
	"github.com/Brownie44l1/atk-classifier/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineConfigFromDefaults(t *testing.T) {
	cfg, err := config.Load(nil)
	require.NoError(t, err)

	pc := pipelineConfig(cfg)

	assert.False(t, pc.Normalize, "the trained model rescales its own input")
	assert.Equal(t, model.BackendAuto, pc.Backend)
	assert.Equal(t, 300, pc.Width)
	assert.Equal(t, 300, pc.Height)
	assert.Equal(t, []string{"eraser", "kertas", "pensil"}, pc.ClassNames)
	assert.Equal(t, 3, pc.TopK)
	assert.Equal(t, int64(5*1024*1024), pc.MaxUploadBytes)
}

func TestPipelineConfigNormalizesWhenModelDoesNot(t *testing.T) {
	t.Setenv("ATK_MODEL_RESCALES", "false")
	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.True(t, pipelineConfig(cfg).Normalize)
}
