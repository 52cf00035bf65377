package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8081 {
		t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
	}
	if cfg.Ingest.QueueSize != 10000 || cfg.Ingest.BatchSize != 100 {
		t.Errorf("Ingest defaults = %+v", cfg.Ingest)
	}
	if cfg.Ingest.BatchWait() != time.Second {
		t.Errorf("BatchWait = %v, want 1s", cfg.Ingest.BatchWait())
	}
	if cfg.Kafka.Topic != "product-events" || cfg.Kafka.DLQTopic != "product-events-dlq" {
		t.Errorf("Kafka defaults = %+v", cfg.Kafka)
	}
	if cfg.Elasticsearch.URL() != "http://localhost:9200" {
		t.Errorf("Elasticsearch.URL = %s", cfg.Elasticsearch.URL())
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Errorf("Redis.Addr = %s", cfg.Redis.Addr())
	}
}

func TestLoadYAMLFile(t *testing.T) {
	content := `
server:
  port: 9999
ingest:
  queue_size: 5
  batch_size: 2
  batch_wait_ms: 250
  log_dir: /tmp/aep-test-log
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  group_id: test-group
  topic: test-topic
  dlq_topic: test-dlq
elasticsearch:
  host: es.internal
  port: 9201
redis:
  host: redis.internal
  port: 6380
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Ingest.QueueSize != 5 || cfg.Ingest.BatchWait() != 250*time.Millisecond {
		t.Errorf("Ingest = %+v", cfg.Ingest)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.GroupID != "test-group" {
		t.Errorf("Kafka = %+v", cfg.Kafka)
	}
	if cfg.Elasticsearch.URL() != "http://es.internal:9201" {
		t.Errorf("Elasticsearch.URL = %s", cfg.Elasticsearch.URL())
	}
	if cfg.Redis.Addr() != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %s", cfg.Redis.Addr())
	}
	// Unset sections keep defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %s, want info", cfg.Logging.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AEP_SERVER_PORT", "7777")
	t.Setenv("AEP_KAFKA_BROKERS", "a:9092,b:9092,c:9092")
	t.Setenv("AEP_INGEST_LOG_DIR", "/var/lib/aep")
	t.Setenv("AEP_REDIS_HOST", "cache.internal")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
	if len(cfg.Kafka.Brokers) != 3 {
		t.Errorf("Kafka.Brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Ingest.LogDir != "/var/lib/aep" {
		t.Errorf("Ingest.LogDir = %s", cfg.Ingest.LogDir)
	}
	if cfg.Redis.Host != "cache.internal" {
		t.Errorf("Redis.Host = %s", cfg.Redis.Host)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Fatal("Load of missing file must error")
	}
}
