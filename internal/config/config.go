package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "NETSANKEY"

// ProbeConfig holds the capture and transport settings of ns-probe.
type ProbeConfig struct {
	Interface   string `yaml:"interface"`
	SnapshotLen int32  `yaml:"snapshot_len"`
	Promiscuous bool   `yaml:"promiscuous"`
	BPFFilter   string `yaml:"bpf_filter"`
	// JournalPath, when set, receives a pcap copy of every captured frame.
	JournalPath string `yaml:"journal_path"`
	NATSURL     string `yaml:"nats_url"`
	Subject     string `yaml:"subject"`
}

// IngestConfig sizes the bounded queue between producers and the store.
type IngestConfig struct {
	QueueSize     int    `yaml:"queue_size"`
	NumWorkers    int    `yaml:"num_workers"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval string `yaml:"flush_interval"`
	// MaxRetries bounds the backoff retries of a failed batch write.
	MaxRetries uint64 `yaml:"max_retries"`
}

// ClickHouseConfig holds the connection settings of the ClickHouse store.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BadgerConfig holds the settings of the embedded badger store.
type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// StoreConfig selects and configures the flow record store.
type StoreConfig struct {
	Type       string           `yaml:"type"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Badger     BadgerConfig     `yaml:"badger"`
}

// APIConfig holds the listen addresses and query settings of ns-api.
type APIConfig struct {
	HttpListenAddr      string `yaml:"http_listen_addr"`
	GrpcListenAddr      string `yaml:"grpc_listen_addr"`
	QueryTimeout        string `yaml:"query_timeout"`
	CacheTTL            string `yaml:"cache_ttl"`
	HealthCheckInterval string `yaml:"health_check_interval"`
	// StreamInterval is the push period of the websocket traffic stream.
	StreamInterval string `yaml:"stream_interval"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Probe  ProbeConfig  `yaml:"probe"`
	Ingest IngestConfig `yaml:"ingest"`
	Store  StoreConfig  `yaml:"store"`
	API    APIConfig    `yaml:"api"`
	Log    LogConfig    `yaml:"log"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Config {
	return &Config{
		Probe: ProbeConfig{
			SnapshotLen: 1600,
			Promiscuous: true,
			BPFFilter:   "ip or ip6",
			NATSURL:     "nats://127.0.0.1:4222",
			Subject:     "netsankey.flows",
		},
		Ingest: IngestConfig{
			QueueSize:     10000,
			NumWorkers:    2,
			BatchSize:     500,
			FlushInterval: "1s",
			MaxRetries:    3,
		},
		Store: StoreConfig{
			Type: "clickhouse",
			ClickHouse: ClickHouseConfig{
				Host:     "127.0.0.1",
				Port:     9000,
				Database: "default",
				Username: "default",
			},
			Badger: BadgerConfig{Path: "data/badger"},
		},
		API: APIConfig{
			HttpListenAddr:      ":5001",
			GrpcListenAddr:      ":5002",
			QueryTimeout:        "10s",
			CacheTTL:            "2s",
			HealthCheckInterval: "10s",
			StreamInterval:      "5s",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the configuration from a YAML file on top of the defaults,
// then applies .env and environment overrides. An empty path skips the file.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverrides lists the settings that may be overridden from the
// environment. Empty values leave the file setting untouched.
type envOverrides struct {
	Interface      string `envconfig:"CAPTURE_INTERFACE"`
	NATSURL        string `envconfig:"NATS_URL"`
	Subject        string `envconfig:"NATS_SUBJECT"`
	StoreType      string `envconfig:"STORE_TYPE"`
	CHHost         string `envconfig:"CLICKHOUSE_HOST"`
	CHPort         int    `envconfig:"CLICKHOUSE_PORT"`
	CHDatabase     string `envconfig:"CLICKHOUSE_DATABASE"`
	CHUsername     string `envconfig:"CLICKHOUSE_USERNAME"`
	CHPassword     string `envconfig:"CLICKHOUSE_PASSWORD"`
	BadgerPath     string `envconfig:"BADGER_PATH"`
	HttpListenAddr string `envconfig:"HTTP_LISTEN_ADDR"`
	GrpcListenAddr string `envconfig:"GRPC_LISTEN_ADDR"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	LogFormat      string `envconfig:"LOG_FORMAT"`
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Probe.Interface, env.Interface)
	set(&cfg.Probe.NATSURL, env.NATSURL)
	set(&cfg.Probe.Subject, env.Subject)
	set(&cfg.Store.Type, env.StoreType)
	set(&cfg.Store.ClickHouse.Host, env.CHHost)
	set(&cfg.Store.ClickHouse.Database, env.CHDatabase)
	set(&cfg.Store.ClickHouse.Username, env.CHUsername)
	set(&cfg.Store.ClickHouse.Password, env.CHPassword)
	set(&cfg.Store.Badger.Path, env.BadgerPath)
	set(&cfg.API.HttpListenAddr, env.HttpListenAddr)
	set(&cfg.API.GrpcListenAddr, env.GrpcListenAddr)
	set(&cfg.Log.Level, env.LogLevel)
	set(&cfg.Log.Format, env.LogFormat)
	if env.CHPort != 0 {
		cfg.Store.ClickHouse.Port = env.CHPort
	}
	return nil
}

// Validate checks the durations and sizes of the configuration.
func (c *Config) Validate() error {
	durations := []struct{ name, value string }{
		{"ingest.flush_interval", c.Ingest.FlushInterval},
		{"api.query_timeout", c.API.QueryTimeout},
		{"api.cache_ttl", c.API.CacheTTL},
		{"api.health_check_interval", c.API.HealthCheckInterval},
		{"api.stream_interval", c.API.StreamInterval},
	}
	for _, d := range durations {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queue_size must be positive, got %d", c.Ingest.QueueSize)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Store.Type == "" {
		return fmt.Errorf("store.type must be set")
	}
	return nil
}

// Duration parses a duration that Validate has already checked.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
