package internal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidRedisURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"plain", "redis://localhost:6379", false},
		{"with db", "redis://localhost:6379/0", false},
		{"tls", "rediss://redis.internal:6379/0", false},
		{"unix socket", "unix:///var/run/redis.sock", false},
		{"empty", "", true},
		{"http scheme", "http://localhost:6379", true},
		{"bare host", "localhost:6379", true},
		{"malformed", "redis://localhost:6379/not-a-db", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidRedisURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRedisClient_ConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClientConfig)
	}{
		{"empty url", func(c *ClientConfig) { c.RedisURL = "" }},
		{"bad scheme", func(c *ClientConfig) { c.RedisURL = "http://localhost" }},
		{"db out of range", func(c *ClientConfig) { c.RedisDB = 16 }},
		{"zero connections", func(c *ClientConfig) { c.MaxConnections = 0 }},
		{"zero connection timeout", func(c *ClientConfig) { c.ConnectionTimeout = 0 }},
		{"zero read timeout", func(c *ClientConfig) { c.ReadTimeout = 0 }},
		{"zero write timeout", func(c *ClientConfig) { c.WriteTimeout = 0 }},
		{"negative ttl", func(c *ClientConfig) { c.DefaultTTL = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultClientConfig()
			tt.mutate(config)

			client, err := NewRedisClient(config)
			assert.Error(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestNewRedisClient_Defaults(t *testing.T) {
	// Construction never dials; a nil config selects the defaults.
	client, err := NewRedisClient(nil)
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	assert.Equal(t, "redis://localhost:6379/0", client.Config().RedisURL)
	assert.Equal(t, 10, client.Config().MaxConnections)
	assert.Equal(t, time.Hour, client.Config().DefaultTTL)
	assert.NotNil(t, client.Client())
}

func TestValidateRetryConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RetryConfig)
	}{
		{"negative attempts", func(c *RetryConfig) { c.MaxAttempts = -1 }},
		{"negative initial delay", func(c *RetryConfig) { c.InitialDelay = -time.Millisecond }},
		{"multiplier below one", func(c *RetryConfig) { c.Multiplier = 0.5 }},
		{"initial delay above max", func(c *RetryConfig) {
			c.InitialDelay = 10 * time.Second
			c.MaxDelay = time.Second
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultClientConfig()
			tt.mutate(config.RetryConfig)

			_, err := NewRedisClient(config)
			assert.Error(t, err)
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"io timeout", errors.New("i/o timeout"), true},
		{"no route", errors.New("connect: no route to host"), true},
		{"loading dataset", errors.New("LOADING Redis is loading the dataset in memory"), true},
		{"busy", errors.New("BUSY Redis is busy running a script"), true},
		{"wrong type", errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"), false},
		{"auth failure", errors.New("NOAUTH Authentication required"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	config := DefaultClientConfig()
	config.RetryConfig = &RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}

	client, err := NewRedisClient(config)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 100*time.Millisecond, client.backoffDelay(0))
	assert.Equal(t, 200*time.Millisecond, client.backoffDelay(1))
	assert.Equal(t, 400*time.Millisecond, client.backoffDelay(2))
	// Growth is capped at MaxDelay.
	assert.Equal(t, time.Second, client.backoffDelay(10))
}

func TestBackoffDelay_Jitter(t *testing.T) {
	config := DefaultClientConfig()
	config.RetryConfig.Jitter = true

	client, err := NewRedisClient(config)
	require.NoError(t, err)
	defer client.Close()

	base := 100 * time.Millisecond
	for i := 0; i < 20; i++ {
		delay := client.backoffDelay(0)
		assert.GreaterOrEqual(t, delay, base)
		assert.LessOrEqual(t, delay, base+base/10)
	}
}
