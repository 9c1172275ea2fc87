package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 5*time.Minute, c.Prediction.GenerateInterval)
	assert.Equal(t, 500, c.Prediction.HistoryCap)
	assert.Equal(t, 200, c.Alerts.HistoryCap)
	assert.Equal(t, "memory", c.Storage.Backend)
	assert.Equal(t, "chainsignal.alerts", c.Kafka.AlertsTopic)
	assert.Equal(t, 10*time.Second, c.DataSource.Timeout)
}

func TestParseClickHouseTimeouts(t *testing.T) {
	c, err := Parse([]byte("clickhouse:\n  dial_timeout: 2s\n  read_timeout: 45s\n"))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, c.ClickHouse.DialTimeout)
	assert.Equal(t, 45*time.Second, c.ClickHouse.ReadTimeout)
	assert.Equal(t, time.Minute, c.ClickHouse.MaxExecutionTime)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"backend":   "storage:\n  backend: etcd\n",
		"timeframe": "prediction:\n  timeframes: [2h]\n",
		"target":    "prediction:\n  targets: [gold]\n",
		"kafka":     "kafka:\n  enabled: true\n",
		"port":      "server:\n  port: 70000\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)

	env := map[string]string{
		"ENVIRONMENT":            "production",
		"STORAGE_BACKEND":        "redis",
		"REDIS_ADDR":             "redis:6379",
		"KAFKA_BROKERS":          "k1:9092,k2:9092",
		"DATASOURCE_INDEXER_URL": "http://indexer:9100",
		"LOG_LEVEL":              "debug",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, "redis", c.Storage.Backend)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, "http://indexer:9100", c.DataSource.IndexerURL)
	assert.Equal(t, "debug", c.Log.Level)
	require.NoError(t, c.Validate())
}

func TestLoadShippedConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Len(t, c.Prediction.Targets, 8)
	assert.Len(t, c.Prediction.Timeframes, 4)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
