// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and environment variables on top of New().
// - Validation failures wrap ErrInvalidConfig; provider failures wrap ErrLoadConfig.
package config

import (
	"runtime"
	"time"
)

// Store backends accepted by the "store" key.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Record codecs accepted by the "record_codec" key.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the backend: redis or memory.
	Store string `koanf:"store"`

	// Redis connection settings, used when Store is redis.
	RedisAddr     string `koanf:"redis_addr"`
	RedisDB       int    `koanf:"redis_db"`
	RedisUsername string `koanf:"redis_username"`
	RedisPassword string `koanf:"redis_password"`
	RedisPoolSize int    `koanf:"redis_pool_size"`

	// StoreTimeoutMS bounds every single store call.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// FetchTimeoutMS bounds the bulk buyer read during resolution before
	// falling back to per-buyer reads.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// TimeZone is the IANA zone used to derive hour and day from timestamps.
	TimeZone string `koanf:"time_zone"`

	// RecordCodec selects the encoding of newly written buyer records.
	RecordCodec string `koanf:"record_codec"`

	// IngestMaxRetries caps retries of a registration that lost a write race.
	IngestMaxRetries int `koanf:"ingest_max_retries"`

	// MaxBodyBytes caps POST /buyers request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// RepairQueueSize bounds the in-memory index repair queue.
	RepairQueueSize int `koanf:"repair_queue_size"`

	// RepairWorkerCount sets the number of index repair workers.
	RepairWorkerCount int `koanf:"repair_worker_count"`

	// RepairDedupeSize sets the size of the in-flight repair dedupe set.
	RepairDedupeSize int `koanf:"repair_dedupe_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		Store:             StoreRedis,
		RedisAddr:         "localhost:6379",
		RedisPoolSize:     runtime.NumCPU() * 10,
		StoreTimeoutMS:    200,
		FetchTimeoutMS:    100,
		TimeZone:          "UTC",
		RecordCodec:       CodecJSON,
		IngestMaxRetries:  3,
		MaxBodyBytes:      1 << 20,
		RepairQueueSize:   10_000,
		RepairWorkerCount: 2,
		RepairDedupeSize:  50_000,
	}
}

// StoreTimeout returns StoreTimeoutMS as a duration.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// FetchTimeout returns FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// Location resolves TimeZone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
