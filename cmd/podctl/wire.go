package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/recoura/pod-engine/pkg/cache"
	"github.com/recoura/pod-engine/pkg/carrier"
	"github.com/recoura/pod-engine/pkg/claims"
	"github.com/recoura/pod-engine/pkg/fetcher"
	"github.com/recoura/pod-engine/pkg/logging"
	"github.com/recoura/pod-engine/pkg/notify"
	"github.com/recoura/pod-engine/pkg/ratelimit"
)

// engine bundles the wired components shared by the subcommands.
type engine struct {
	redis    *redis.Client
	store    *claims.RedisStore
	limiter  *ratelimit.Limiter
	fetcher  *fetcher.Fetcher
	notifier *notify.RedisQueue
	logger   zerolog.Logger
}

// newEngine wires the full fetch stack from the loaded configuration.
func newEngine(component string) (*engine, error) {
	setupLogging()
	logger := logging.NewLogger(component)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	quotas, err := loadQuotas()
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(quotas, newSnapshotStore(redisClient), logger)

	registry, err := newRegistry(quotas)
	if err != nil {
		return nil, err
	}

	cacheManager := cache.NewManager(redisClient, viper.GetDuration("cache.ttl"))

	podFetcher, err := fetcher.New(registry, cacheManager, fetcher.Config{
		Retry: fetcher.RetryPolicy{
			MaxAttempts: viper.GetInt("fetch.max_attempts"),
			BaseDelay:   viper.GetDuration("fetch.base_delay"),
		},
		PaceRPS:   viper.GetFloat64("fetch.pace_rps"),
		PaceBurst: viper.GetInt("fetch.pace_burst"),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("wire fetcher: %w", err)
	}

	return &engine{
		redis:    redisClient,
		store:    claims.NewRedisStore(redisClient),
		limiter:  limiter,
		fetcher:  podFetcher,
		notifier: notify.NewRedisQueue(redisClient),
		logger:   logger,
	}, nil
}

func (e *engine) Close() {
	_ = e.redis.Close()
}

// loadQuotas merges configured carrier quotas over the built-in defaults.
func loadQuotas() (map[string]ratelimit.Quota, error) {
	quotas := ratelimit.DefaultQuotas()

	if viper.IsSet("quotas") {
		configured := make(map[string]ratelimit.Quota)
		if err := viper.UnmarshalKey("quotas", &configured); err != nil {
			return nil, fmt.Errorf("invalid quotas configuration: %w", err)
		}
		for name, quota := range configured {
			quotas[name] = quota
		}
	}

	return quotas, nil
}

// newSnapshotStore picks the quota snapshot backend. The file backend mirrors
// the legacy JSON stats file and is mainly useful for single-host setups.
func newSnapshotStore(redisClient *redis.Client) ratelimit.SnapshotStore {
	if viper.GetString("snapshot.backend") == "file" {
		return ratelimit.NewFileStore(viper.GetString("snapshot.path"))
	}
	return ratelimit.NewRedisStore(redisClient)
}

// newRegistry builds one HTTP connector factory per carrier with a configured
// quota. Per-carrier gateway URLs override the shared base URL.
func newRegistry(quotas map[string]ratelimit.Quota) (*carrier.Registry, error) {
	factories := make(map[string]carrier.Factory, len(quotas))
	for name := range quotas {
		cfg := carrier.HTTPConfig{
			Carrier:   name,
			BaseURL:   fmt.Sprintf("%s/%s", viper.GetString("gateway.base_url"), name),
			APIKey:    viper.GetString("gateway.api_key"),
			UserAgent: "pod-engine/podctl",
			Timeout:   viper.GetDuration("gateway.timeout"),
		}
		if override := viper.GetString("gateway." + name + ".base_url"); override != "" {
			cfg.BaseURL = override
		}
		factories[name] = func() (carrier.Connector, error) {
			return carrier.NewHTTPConnector(cfg)
		}
	}
	return carrier.NewRegistry(factories)
}
