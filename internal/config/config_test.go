package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("METRO_CITIES", "")
	t.Setenv("CHECKOUT_REDIRECT_DELAY", "")

	cfg := Load()
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"Hanoi", "Ho Chi Minh City", "Ho Chi Minh", "Da Nang"}, cfg.MetroCities)
	assert.Equal(t, 3*time.Second, cfg.RedirectDelay)
	assert.False(t, cfg.StrictTransitions)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("WATCH_WORKERS", "12")
	t.Setenv("STRICT_TRANSITIONS", "true")
	t.Setenv("CHECKOUT_REDIRECT_DELAY", "500ms")

	cfg := Load()
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 12, cfg.WatchWorkers)
	assert.True(t, cfg.StrictTransitions)
	assert.Equal(t, 500*time.Millisecond, cfg.RedirectDelay)
}

func TestLoadIgnoresBadNumbers(t *testing.T) {
	t.Setenv("WATCH_WORKERS", "-3")
	t.Setenv("STRICT_TRANSITIONS", "maybe")

	cfg := Load()
	assert.Equal(t, 4, cfg.WatchWorkers)
	assert.False(t, cfg.StrictTransitions)
}
