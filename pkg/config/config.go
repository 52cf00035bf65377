// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Ingest, Kafka, Elasticsearch, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         RedisConfig         `yaml:"redis"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the ingest service.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// IngestConfig controls the accept queue, the batcher, and the durable
// append log of the ingestion pipeline.
type IngestConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	BatchSize   int           `yaml:"batch_size"`
	BatchWaitMS int           `yaml:"batch_wait_ms"`
	LogDir      string        `yaml:"log_dir"`
	SinkURL     string        `yaml:"sink_url"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

// BatchWait returns the maximum time a partial batch may wait before flush.
func (i IngestConfig) BatchWait() time.Duration {
	return time.Duration(i.BatchWaitMS) * time.Millisecond
}

// KafkaConfig holds Kafka broker, group, and topic settings for the
// indexing consumer.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	GroupID  string   `yaml:"group_id"`
	Topic    string   `yaml:"topic"`
	DLQTopic string   `yaml:"dlq_topic"`
}

// ElasticsearchConfig holds the Elasticsearch endpoint.
type ElasticsearchConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// URL returns the base URL for the Elasticsearch node.
func (e ElasticsearchConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", e.Host, e.Port)
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// Addr returns the host:port address of the Redis server.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8081,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Ingest: IngestConfig{
			QueueSize:   10000,
			BatchSize:   100,
			BatchWaitMS: 1000,
			LogDir:      "./append-log",
			SinkURL:     "",
			SinkTimeout: 30 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:  []string{"localhost:9092"},
			GroupID:  "product-indexer",
			Topic:    "product-events",
			DLQTopic: "product-events-dlq",
		},
		Elasticsearch: ElasticsearchConfig{
			Host: "localhost",
			Port: 9200,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads AEP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AEP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AEP_INGEST_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.QueueSize = n
		}
	}
	if v := os.Getenv("AEP_INGEST_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.BatchSize = n
		}
	}
	if v := os.Getenv("AEP_INGEST_BATCH_WAIT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.BatchWaitMS = n
		}
	}
	if v := os.Getenv("AEP_INGEST_LOG_DIR"); v != "" {
		cfg.Ingest.LogDir = v
	}
	if v := os.Getenv("AEP_INGEST_SINK_URL"); v != "" {
		cfg.Ingest.SinkURL = v
	}
	if v := os.Getenv("AEP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("AEP_KAFKA_GROUP_ID"); v != "" {
		cfg.Kafka.GroupID = v
	}
	if v := os.Getenv("AEP_KAFKA_TOPIC"); v != "" {
		cfg.Kafka.Topic = v
	}
	if v := os.Getenv("AEP_KAFKA_DLQ_TOPIC"); v != "" {
		cfg.Kafka.DLQTopic = v
	}
	if v := os.Getenv("AEP_ELASTICSEARCH_HOST"); v != "" {
		cfg.Elasticsearch.Host = v
	}
	if v := os.Getenv("AEP_ELASTICSEARCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Elasticsearch.Port = port
		}
	}
	if v := os.Getenv("AEP_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("AEP_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("AEP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AEP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AEP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AEP_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
