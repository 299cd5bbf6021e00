/*
Package config manages TOML config for the typeahead suggestion core.

InitConfig handles automatic config file creation and loading with fallback to defaults.
LoadConfig and SaveConfig provide direct fs for runtime changes.
Update allows targeted parameter changes with persistence.
*/
package config

import (
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/evgenyvinnik/typeahead-core/internal/utils"
)

// Config holds the entire config structure.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Trie        TrieConfig        `toml:"trie"`
	Aggregator  AggregatorConfig  `toml:"aggregator"`
	Cache       CacheConfig       `toml:"cache"`
	RateLimit   RateLimitConfig   `toml:"rate_limit"`
	Idempotency IdempotencyConfig `toml:"idempotency"`
	Breakers    BreakersConfig    `toml:"breakers"`
	CLI         CliConfig         `toml:"cli"`
}

// ServerConfig has read-path and admin related options.
type ServerConfig struct {
	DefaultLimit        int `toml:"default_limit"`
	TimeoutMsSuggestion int `toml:"timeout_ms_suggestion_total"`
}

// TrieConfig tunes the prefix index.
type TrieConfig struct {
	TopK         int `toml:"top_k"`
	MaxPhraseLen int `toml:"max_phrase_len"`
}

// AggregatorConfig tunes buffering, flush and trending.
type AggregatorConfig struct {
	FlushIntervalMs    int `toml:"flush_interval_ms"`
	RebuildLimit       int `toml:"rebuild_limit"`
	TrendingWindowMin  int `toml:"trending_window_minutes"`
	TrendingHorizonMin int `toml:"trending_horizon_minutes"`
	DecayIntervalMin   int `toml:"decay_interval_minutes"`
}

// CacheConfig tunes the suggestion cache.
type CacheConfig struct {
	TTLSec int `toml:"cache_ttl_sec"`
}

// RateLimitConfig tunes the sliding-window limiter.
type RateLimitConfig struct {
	Requests int `toml:"requests"`
	WindowMs int `toml:"window_ms"`
}

// IdempotencyConfig tunes the dedup store.
type IdempotencyConfig struct {
	TTLSec     int `toml:"ttl_sec"`
	LockTTLSec int `toml:"lock_ttl_sec"`
}

// BreakerConfig is one named breaker's tuning.
type BreakerConfig struct {
	TimeoutMs         int `toml:"timeout_ms"`
	ErrorThresholdPct int `toml:"error_threshold_pct"`
	VolumeThreshold   int `toml:"volume_threshold"`
	ResetTimeoutMs    int `toml:"reset_timeout_ms"`
}

// BreakersConfig holds the three pre-configured breakers.
type BreakersConfig struct {
	SuggestionService BreakerConfig `toml:"suggestion_service"`
	Database          BreakerConfig `toml:"database"`
	RedisCache        BreakerConfig `toml:"redis_cache"`
}

// CliConfig holds CLI interface options for cmd/typeahead-cli.
type CliConfig struct {
	DefaultLimit   int  `toml:"default_limit"`
	DefaultNoFuzzy bool `toml:"default_no_fuzzy"`
}

// DefaultConfig returns a Config with the shipped defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			DefaultLimit:        5,
			TimeoutMsSuggestion: 100,
		},
		Trie: TrieConfig{
			TopK:         10,
			MaxPhraseLen: 100,
		},
		Aggregator: AggregatorConfig{
			FlushIntervalMs:    30000,
			RebuildLimit:       100000,
			TrendingWindowMin:  5,
			TrendingHorizonMin: 60,
			DecayIntervalMin:   60,
		},
		Cache: CacheConfig{
			TTLSec: 60,
		},
		RateLimit: RateLimitConfig{
			Requests: 120,
			WindowMs: 60000,
		},
		Idempotency: IdempotencyConfig{
			TTLSec:     300,
			LockTTLSec: 30,
		},
		Breakers: BreakersConfig{
			SuggestionService: BreakerConfig{TimeoutMs: 50, ErrorThresholdPct: 30, VolumeThreshold: 10, ResetTimeoutMs: 5000},
			Database:          BreakerConfig{TimeoutMs: 1000, ErrorThresholdPct: 50, VolumeThreshold: 5, ResetTimeoutMs: 15000},
			RedisCache:        BreakerConfig{TimeoutMs: 50, ErrorThresholdPct: 50, VolumeThreshold: 10, ResetTimeoutMs: 5000},
		},
		CLI: CliConfig{
			DefaultLimit:   5,
			DefaultNoFuzzy: false,
		},
	}
}

// InitConfig loads config from file or creates default if missing.
func InitConfig(configPath string) (*Config, error) {
	if err := utils.EnsureDir(filepath.Dir(configPath)); err != nil {
		return nil, err
	}
	if !utils.FileExists(configPath) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, configPath); err != nil {
			return nil, err
		}
		log.Debugf("Created default config file at: ( %s )", utils.GetAbsolutePath(configPath))
		return cfg, nil
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config, using defaults: %v", err)
		return DefaultConfig(), nil
	}
	return cfg, nil
}

// LoadConfig loads from a TOML file.
func LoadConfig(configPath string) (*Config, error) {
	var cfg Config
	if err := utils.LoadTOMLFile(configPath, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig saves into a TOML file.
func SaveConfig(cfg *Config, configPath string) error {
	return utils.SaveTOMLFile(cfg, configPath)
}

// Update changes select trie/cache parameters and saves to file.
func (c *Config) Update(configPath string, topK, maxPhraseLen *int, cacheTTLSec *int) error {
	if topK != nil {
		c.Trie.TopK = *topK
	}
	if maxPhraseLen != nil {
		c.Trie.MaxPhraseLen = *maxPhraseLen
	}
	if cacheTTLSec != nil {
		c.Cache.TTLSec = *cacheTTLSec
	}
	return SaveConfig(c, configPath)
}
