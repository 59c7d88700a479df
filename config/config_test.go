package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VISIBILITY_DELAY", "")
	t.Setenv("REDIS_URL", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, time.Duration(0), cfg.VisibilityDelay)
	assert.Equal(t, "overwrite", cfg.AckPolicy)
	assert.Empty(t, cfg.RedisURL)
	assert.True(t, cfg.MinIOUseSSL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VISIBILITY_DELAY", "5m")
	t.Setenv("ACK_POLICY", "first-wins")
	t.Setenv("SUBMIT_RATE_PER_MIN", "0")
	t.Setenv("MINIO_USE_SSL", "false")
	t.Setenv("PUBLIC_BASE_URL", "https://cdn.example.org/media/")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.VisibilityDelay)
	assert.Equal(t, "first-wins", cfg.AckPolicy)
	assert.Equal(t, 0, cfg.SubmitRatePerMin)
	assert.False(t, cfg.MinIOUseSSL)
	assert.Equal(t, "https://cdn.example.org/media", cfg.PublicBaseURL)
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("VISIBILITY_DELAY", "soon")
	t.Setenv("MAX_UPLOAD_MB", "lots")

	cfg := Load()
	assert.Equal(t, time.Duration(0), cfg.VisibilityDelay)
	assert.Equal(t, 50, cfg.MaxUploadMB)
}
