package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-service")
	t.Setenv("STORE_TIMEOUT", "")

	cfg := Load()

	assert.Equal(t, "8084", cfg.HTTPPort)
	assert.Equal(t, "9100", cfg.MetricsPort)
	assert.Equal(t, "side1", cfg.DefaultWinningSide)
	assert.False(t, cfg.RequireExplicitSide)
	assert.Equal(t, 3*time.Second, cfg.StoreTimeout) // valor inválido cai no default
	assert.Equal(t, 66*time.Second, cfg.ResumeGrace)
	assert.Equal(t, "wager_settled", cfg.TopicWagerSettled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "settlement-worker")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("REQUIRE_EXPLICIT_SIDE", "true")
	t.Setenv("DEFAULT_WINNING_SIDE", "side2")
	t.Setenv("EXPIRY_SWEEP_SPEC", "@every 10s")

	cfg := Load()

	assert.Equal(t, "", cfg.HTTPPort)
	assert.Equal(t, "9101", cfg.MetricsPort)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, time.Minute+1500*time.Millisecond, cfg.ResumeGrace)
	assert.True(t, cfg.RequireExplicitSide)
	assert.Equal(t, "side2", cfg.DefaultWinningSide)
	assert.Equal(t, "@every 10s", cfg.ExpirySweepSpec)
}
