package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 90*time.Second, cfg.Stages.Timeout)
	assert.Equal(t, 70.0, cfg.Gate.MinSEOScore)
	assert.Equal(t, 0.5, cfg.Gate.MinConfidence)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("STAGE_TIMEOUT", "30s")
	t.Setenv("GATE_MIN_CONFIDENCE", "0.8")
	t.Setenv("STAGE_URL_REVIEW", "http://review.internal/run")

	cfg := LoadConfig()
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Stages.Timeout)
	assert.Equal(t, 0.8, cfg.Gate.MinConfidence)
	assert.Equal(t, "http://review.internal/run", cfg.Stages.Endpoints["review"])
}

func TestLoadConfig_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("STAGE_TIMEOUT", "not-a-duration")
	t.Setenv("GATE_MIN_SEO_SCORE", "high")

	cfg := LoadConfig()
	assert.Equal(t, 90*time.Second, cfg.Stages.Timeout)
	assert.Equal(t, 70.0, cfg.Gate.MinSEOScore)
}
