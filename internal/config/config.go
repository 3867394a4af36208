// Package config loads the hub's runtime configuration: environment
// variables as the primary source, with an optional yaml.v3-decoded
// static file overlaying the tag-velocity table and scope defaults.
package config

import (
	"time"

	"github.com/daniel-olson-code/buelon/internal/logger"
)

const DefaultLeaseSeconds = 720 // 0.2 * 3600, per the scheduler's stale-working reclaim rule

type Config struct {
	PipelineHost string
	PipelinePort string

	PipeWorkerHost string
	PipeWorkerPort string

	// Metadata store
	MetadataDriver string // "postgres" or "sqlite"
	PostgresHost   string
	PostgresPort   string
	PostgresUser   string
	PostgresPass   string
	PostgresName   string
	SQLitePath     string

	// Transaction queue
	RedisAddr          string
	RedisStreamKey      string
	RedisConsumerGroup string

	// Admin/health HTTP surface; empty disables it entirely.
	AdminHTTPAddr string

	LeaseSeconds int

	TagVelocity map[string]int
	Scopes      []string

	AcceptBacklog int // bounded connection-admission concurrency (x/sync/semaphore)
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		PipelineHost:       GetEnv("PIPELINE_HOST", "0.0.0.0", log),
		PipelinePort:       GetEnv("PIPELINE_PORT", "5124", log),
		PipeWorkerHost:     GetEnv("PIPE_WORKER_HOST", "0.0.0.0", log),
		PipeWorkerPort:     GetEnv("PIPE_WORKER_PORT", "5124", log),
		MetadataDriver:     GetEnv("METADATA_DRIVER", "sqlite", log),
		PostgresHost:       GetEnv("POSTGRES_HOST", "localhost", log),
		PostgresPort:       GetEnv("POSTGRES_PORT", "5432", log),
		PostgresUser:       GetEnv("POSTGRES_USER", "postgres", log),
		PostgresPass:       GetEnv("POSTGRES_PASSWORD", "", log),
		PostgresName:       GetEnv("POSTGRES_NAME", "pipeline_hub", log),
		SQLitePath:         GetEnv("SQLITE_PATH", "pipeline_hub.db", log),
		RedisAddr:          GetEnv("REDIS_ADDR", "localhost:6379", log),
		RedisStreamKey:     GetEnv("REDIS_STREAM_KEY", "pipeline-hub:txqueue", log),
		RedisConsumerGroup: GetEnv("REDIS_CONSUMER_GROUP", "pipeline-hub-executor", log),
		AdminHTTPAddr:      GetEnv("ADMIN_HTTP_ADDR", ":8090", log),
		LeaseSeconds:       GetEnvAsInt("LEASE_SECONDS", DefaultLeaseSeconds, log),
		AcceptBacklog:      GetEnvAsInt("ACCEPT_BACKLOG", 256, log),
	}

	if path := GetEnv("HUB_CONFIG_FILE", "", log); path != "" {
		if overlay, err := loadFileOverlay(path); err != nil {
			if log != nil {
				log.Warn("failed to load hub config file, continuing with env-only config", "path", path, "error", err)
			}
		} else {
			cfg.TagVelocity = overlay.TagVelocity
			cfg.Scopes = overlay.Scopes
		}
	}
	if cfg.TagVelocity == nil {
		cfg.TagVelocity = map[string]int{}
	}
	return cfg
}

func (c Config) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

func (c Config) PostgresDSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPass +
		" dbname=" + c.PostgresName +
		" sslmode=disable"
}
