// Package config loads the engine's TOML configuration (spec §6),
// mirroring the teacher's cmd/geth config loader: a typed struct plus
// naoina/toml.
package config

import (
	"os"
	"reflect"
	"time"

	"github.com/naoina/toml"

	"github.com/prerankio/preranking-engine/internal/errkind"
)

// Config is every recognised option of spec §6.
type Config struct {
	BlobStoreURL      string `toml:"blob_store_url"`
	SimulatorRPCAddr  string `toml:"simulator_rpc_addr"`
	ChainRPCAddr      string `toml:"chain_rpc_addr"`
	ChainPackageID    string `toml:"chain_package_id"`
	RedisAddr         string `toml:"redis_addr"`

	EventPollIntervalMs int64 `toml:"event_poll_interval_ms"`
	EventBatchLimit     int   `toml:"event_batch_limit"`
	AutoStartListener   bool  `toml:"auto_start_listener"`

	RecordTTLMs        int64 `toml:"record_ttl_ms"`
	FlushOnEmptyPassed bool  `toml:"flush_on_empty_passed"`
	EagerDelete        bool  `toml:"eager_delete"`

	PipelineConcurrency int `toml:"pipeline_concurrency"`

	SimulatorTimeoutMs int64 `toml:"simulator_timeout_ms"`
	FetchTimeoutMs     int64 `toml:"fetch_timeout_ms"`
	StoreTimeoutMs     int64 `toml:"store_timeout_ms"`
	EnqueueTimeoutMs   int64 `toml:"enqueue_timeout_ms"`

	BlobCacheSize     int `toml:"blob_cache_size"`
	BlobMaxRetries    int `toml:"blob_max_retries"`
	EnqueueMaxRetries int `toml:"enqueue_max_retries"`
}

// tomlSettings mirrors cmd/geth's own naoina/toml codec configuration.
// Both hooks return their input unchanged, so a TOML key must match a
// field's toml tag exactly.
var tomlSettings = toml.Config{
	NormFieldName: func(typ reflect.Type, s string) string { return s },
	FieldToKey:    func(typ reflect.Type, field string) string { return field },
}

// Default returns spec §6's stated defaults.
func Default() Config {
	return Config{
		EventPollIntervalMs: 2000,
		EventBatchLimit:     50,
		AutoStartListener:   true,
		RecordTTLMs:         3_600_000,
		FlushOnEmptyPassed:  false,
		PipelineConcurrency: 8,
		SimulatorTimeoutMs:  10_000,
		FetchTimeoutMs:      5_000,
		StoreTimeoutMs:      1_000,
		EnqueueTimeoutMs:    2_000,
		BlobCacheSize:       4096,
		BlobMaxRetries:      5,
		EnqueueMaxRetries:   5,
	}
}

// Load reads and decodes path over Default(), so every field the file
// omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errkind.Wrap(errkind.Fatal, "open config %s: %v", path, err)
	}
	defer f.Close()
	if err := tomlSettings.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, errkind.Wrap(errkind.Fatal, "decode config %s: %v", path, err)
	}
	return cfg, nil
}

// RecordTTL is RecordTTLMs as a time.Duration.
func (c Config) RecordTTL() time.Duration { return time.Duration(c.RecordTTLMs) * time.Millisecond }

// EventPollInterval is EventPollIntervalMs as a time.Duration.
func (c Config) EventPollInterval() time.Duration {
	return time.Duration(c.EventPollIntervalMs) * time.Millisecond
}

// SimulatorTimeout is SimulatorTimeoutMs as a time.Duration.
func (c Config) SimulatorTimeout() time.Duration {
	return time.Duration(c.SimulatorTimeoutMs) * time.Millisecond
}

// FetchTimeout is FetchTimeoutMs as a time.Duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

// StoreTimeout is StoreTimeoutMs as a time.Duration.
func (c Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMs) * time.Millisecond
}

// EnqueueTimeout is EnqueueTimeoutMs as a time.Duration.
func (c Config) EnqueueTimeout() time.Duration {
	return time.Duration(c.EnqueueTimeoutMs) * time.Millisecond
}
