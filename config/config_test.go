package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, time.Minute, cfg.Worker.SweepInterval)
	assert.Equal(t, "local", cfg.Lock.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.Kafka.Brokers)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
}

func TestParseConfigYAMLOverridesDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
storage:
  driver: memory
worker:
  sweep_interval: 15s
events:
  driver: kafka
  kafka:
    topic: custom
`)))

	cfg, err := ParseConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 15*time.Second, cfg.Worker.SweepInterval)
	assert.Equal(t, "kafka", cfg.Events.Driver)
	assert.Equal(t, "custom", cfg.Events.Kafka.Topic)
	// untouched keys keep their defaults
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestParseConfigEnvOverride(t *testing.T) {
	t.Setenv("PARKING_SERVER_PORT", "9090")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PARKING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg, err := ParseConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, ":9090", cfg.GetServerAddress())
}
