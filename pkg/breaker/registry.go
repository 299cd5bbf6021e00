package breaker

import "time"

// Names of the three pre-configured breakers used throughout.
const (
	NameSuggestionService = "suggestion_service"
	NameDatabase          = "database"
	NameRedisCache        = "redis_cache"
)

// Registry holds the three pre-configured breakers, constructed from a
// single shared observer so metrics and audit logs see every breaker's
// events.
type Registry struct {
	SuggestionService *Breaker
	Database          *Breaker
	RedisCache        *Breaker
}

// DefaultSuggestionServiceConfig, DefaultDatabaseConfig and
// DefaultRedisCacheConfig are the shipped per-dependency tunings, used
// by NewRegistry and as config.toml's defaults.
func DefaultSuggestionServiceConfig() Config {
	return Config{Name: NameSuggestionService, Timeout: 50 * time.Millisecond, ErrorThresholdPct: 30, VolumeThreshold: 10, ResetTimeout: 5 * time.Second}
}

func DefaultDatabaseConfig() Config {
	return Config{Name: NameDatabase, Timeout: 1000 * time.Millisecond, ErrorThresholdPct: 50, VolumeThreshold: 5, ResetTimeout: 15 * time.Second}
}

func DefaultRedisCacheConfig() Config {
	return Config{Name: NameRedisCache, Timeout: 50 * time.Millisecond, ErrorThresholdPct: 50, VolumeThreshold: 10, ResetTimeout: 5 * time.Second}
}

// NewRegistry builds the pre-configured breakers with their default tunings.
func NewRegistry(observer Observer) *Registry {
	return NewRegistryWithConfigs(DefaultSuggestionServiceConfig(), DefaultDatabaseConfig(), DefaultRedisCacheConfig(), observer)
}

// NewRegistryWithConfigs builds the three pre-configured breakers from
// explicit tunings, so a deployment's config.toml can override the
// defaults per breaker. Each Config's Name
// is forced to the breaker's canonical name regardless of what the
// caller set, since the registry's keys are fixed.
func NewRegistryWithConfigs(suggestionService, database, redisCache Config, observer Observer) *Registry {
	suggestionService.Name = NameSuggestionService
	database.Name = NameDatabase
	redisCache.Name = NameRedisCache
	return &Registry{
		SuggestionService: New(suggestionService, observer),
		Database:          New(database, observer),
		RedisCache:        New(redisCache, observer),
	}
}

// States returns the current state of every registered breaker, for the
// stats admin endpoint.
func (r *Registry) States() map[string]State {
	return map[string]State{
		NameSuggestionService: r.SuggestionService.State(),
		NameDatabase:          r.Database.State(),
		NameRedisCache:        r.RedisCache.State(),
	}
}
