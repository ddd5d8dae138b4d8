package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BUSINESS_TIMEZONE", "")
	t.Setenv("BOOKING_STRICT_TRANSITIONS", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.Business.StrictTransitions)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10*time.Second, cfg.Business.ListingLockTTL)
	assert.NotNil(t, cfg.Business.Location)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BOOKING_STRICT_TRANSITIONS", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BUSINESS_TIMEZONE", "Not/AZone")
	t.Setenv("LISTING_CACHE_TTL_SECONDS", "5")

	cfg := Load()

	assert.False(t, cfg.Business.StrictTransitions)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.UTC, cfg.Business.Location)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ListingCacheTTL)
}

func TestGetBool(t *testing.T) {
	t.Setenv("SOME_FLAG", "yes-please")
	assert.True(t, getBool("SOME_FLAG", true))

	t.Setenv("SOME_FLAG", "0")
	assert.False(t, getBool("SOME_FLAG", true))
}

func TestMalformedNumbersKeepDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("JWT_TTL_MINUTES", "abc")
	t.Setenv("RATE_LIMIT_PER_SEC", "x")
	t.Setenv("RATE_LIMIT_BURST", "5")

	cfg := Load()

	assert.Equal(t, 1440*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, float64(10), cfg.HTTP.RateLimitPerSec)
	assert.Equal(t, 5, cfg.HTTP.RateLimitBurst)
}

func TestValidateRequiresSecretInProduction(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Env: "production"},
		Auth:   AuthConfig{JWTSecret: defaultJWTSecret, TokenTTL: time.Hour},
	}
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "a-long-random-secret"
	assert.NoError(t, cfg.Validate())

	cfg.Server.Env = "development"
	cfg.Auth.JWTSecret = defaultJWTSecret
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTokenTTL(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Env: "development"}, Auth: AuthConfig{JWTSecret: "s", TokenTTL: 0}}
	assert.ErrorContains(t, cfg.Validate(), "JWT_TTL_MINUTES")
}
