package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("ONION_DISPATCH_SHARDS", "7")
	t.Setenv("ONION_DISPATCH_ENQUEUE_TIMEOUT", "250ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Shards)
	assert.Equal(t, 250*time.Millisecond, cfg.EnqueueTimeout)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 4, cfg.Shards)
	assert.Equal(t, 100*time.Millisecond, cfg.BaseBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxInterval)
}
