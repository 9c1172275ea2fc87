package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ChainSignal/pkg/logger"
	"ChainSignal/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		GenerateRPS     float64       `yaml:"generate_rps" default:"0.2"`
		GenerateBurst   int           `yaml:"generate_burst" default:"3"`
	} `yaml:"server"`
	Log     logger.Config `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Prediction struct {
		GenerateInterval time.Duration `yaml:"generate_interval" default:"5m" validate:"gt=0"`
		ResolveInterval  time.Duration `yaml:"resolve_interval" default:"1m" validate:"gt=0"`
		Targets          []string      `yaml:"targets" validate:"dive,oneof=price tx_volume whale_movement large_tx holder_trend correlation_signal exchange_netflow whale_alert_freq"`
		Timeframes       []string      `yaml:"timeframes" validate:"dive,oneof=15m 1h 4h 24h"`
		HistoryCap       int           `yaml:"history_cap" default:"500" validate:"gte=1"`
		PriceWindow      int           `yaml:"price_window" default:"100" validate:"gte=26"`
		FlowDays         int           `yaml:"flow_days" default:"60" validate:"gte=26"`
		SampleHistoryCap int           `yaml:"sample_history_cap" default:"200" validate:"gte=26"`
		SampleSpacing    time.Duration `yaml:"sample_spacing" default:"1m"`
	} `yaml:"prediction"`
	Alerts struct {
		CheckInterval    time.Duration `yaml:"check_interval" default:"3m" validate:"gt=0"`
		HistoryCap       int           `yaml:"history_cap" default:"200" validate:"gte=1"`
		LargeTxMinAmount float64       `yaml:"large_tx_min_amount" default:"10" validate:"gt=0"`
		LargeTxDepth     int           `yaml:"large_tx_depth" default:"50" validate:"gte=1"`
		Disabled         []string      `yaml:"disabled"`
		ToastMax         int           `yaml:"toast_max" default:"5" validate:"gte=1"`
		ToastTTL         time.Duration `yaml:"toast_ttl" default:"5s"`
	} `yaml:"alerts"`
	Storage struct {
		Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"chainsignal"`
	} `yaml:"redis"`
	Cache struct {
		AddressTTL time.Duration `yaml:"address_ttl" default:"10m"`
		MemorySize int           `yaml:"memory_size" default:"5000" validate:"gte=1"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" validate:"required_if=Enabled true"`
		AlertsTopic  string   `yaml:"alerts_topic" default:"chainsignal.alerts"`
		LogsTopic    string   `yaml:"logs_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"chainsignal"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		Symbol           string        `yaml:"symbol" default:"BTCUSDT"`
		Interval         string        `yaml:"interval" default:"1h"`
	} `yaml:"clickhouse"`
	DataSource struct {
		MarketURL  string        `yaml:"market_url" default:"https://api.binance.com" validate:"url"`
		MempoolURL string        `yaml:"mempool_url" default:"https://mempool.space" validate:"url"`
		IndexerURL string        `yaml:"indexer_url" validate:"omitempty,url"`
		Symbol     string        `yaml:"symbol" default:"BTCUSDT"`
		Interval   string        `yaml:"interval" default:"1h"`
		Timeout    time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	} `yaml:"datasource"`
}

var validate = validator.New()

// Load reads a YAML file, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML. Fields the document omits keep their defaults.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitNonEmpty(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("DATASOURCE_INDEXER_URL"); v != "" {
		c.DataSource.IndexerURL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks struct tags.
func (c *Config) Validate() error {
	return validate.Struct(c)
}
