package ratelimit

import (
	"github.com/libernet/sofia-billing/internal/config"
)

// managerTestConfig builds a Redis config for manager tests.
func managerTestConfig(enabled bool) config.RedisConfig {
	cfg := config.RedisConfig{}
	if enabled {
		cfg.Enabled = true
		cfg.Addr = "localhost:6379"
	}
	return cfg
}
