package appServer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/parking/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "0",
			RequestTimeout: 5 * time.Second,
		},
		Storage: config.StorageConfig{Driver: "memory"},
		Lock:    config.LockConfig{Driver: "local", Wait: time.Second},
		JWT:     config.JWTConfig{Secret: "test-secret", Expiration: time.Hour},
		Auth:    config.AuthConfig{AdminEmail: "admin@parking.local", AdminPassword: "admin123"},
		Worker:  config.WorkerConfig{SweepInterval: time.Minute},
		Report:  config.ReportConfig{CacheTTL: time.Minute},
		Events:  config.EventsConfig{Driver: "none"},
		RateLimit: config.RateLimitConfig{
			BookingsPerSecond: 5,
			Burst:             10,
		},
	}
}

func TestNewApp_Memory(t *testing.T) {
	gin.SetMode(gin.TestMode)

	app, err := NewApp(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Dispatcher)

	body, _ := json.Marshal(gin.H{"email": "admin@parking.local", "password": "admin123"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"role":"ADMIN"`)
}

func TestNewApp_UnknownDrivers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"storage", func(c *config.Config) { c.Storage.Driver = "sqlite" }},
		{"lock", func(c *config.Config) { c.Lock.Driver = "etcd" }},
		{"events", func(c *config.Config) { c.Events.Driver = "nats" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig()
			tt.mutate(cfg)

			_, err := NewApp(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewApp_TelegramNeedsCredentials(t *testing.T) {
	cfg := memoryConfig()
	cfg.Events.Telegram.Enabled = true

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Dispatcher)
}

func TestNewApp_TelegramSink(t *testing.T) {
	cfg := memoryConfig()
	cfg.Events.Telegram = config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "42"}
	cfg.Events.Buffer = 8

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Dispatcher)
}
