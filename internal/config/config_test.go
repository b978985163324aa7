package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":8080", cfg.APIAddr)
	assert.Equal(t, defaultAllowedOrigins, cfg.AllowedOrigin)
	assert.Equal(t, 30, cfg.SweepIntervalSec)
	assert.Equal(t, 32, cfg.SendBuffer)
	assert.Equal(t, 1<<16, cfg.MaxMessageBytes)
	assert.Equal(t, 10, cfg.WriteTimeoutSec)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("SWEEP_INTERVAL_SEC", "5")
	t.Setenv("WS_SEND_BUFFER", "128")

	cfg := Load()

	assert.Equal(t, ":9999", cfg.APIAddr)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigin)
	assert.Equal(t, 5, cfg.SweepIntervalSec)
	assert.Equal(t, 128, cfg.SendBuffer)
}

func TestLoadInvalidIntFallsBack(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL_SEC", "not-a-number")

	cfg := Load()
	assert.Equal(t, 30, cfg.SweepIntervalSec)
}

func TestEnvCSVSkipsBlankEntries(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " , ,")

	cfg := Load()
	assert.Equal(t, defaultAllowedOrigins, cfg.AllowedOrigin, "空要素のみなら既定値に戻る")
}
