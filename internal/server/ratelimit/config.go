package ratelimit

import (
	"strings"
	"time"

	"github.com/jonathan/continuity-handoff/internal/config"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        // Endpoint path pattern (supports prefix matching)
	Method string        // HTTP method (GET, POST, etc.)
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool
	DefaultLimit    int
	DefaultWindow   time.Duration
	IdleTTL         time.Duration // buckets unused for this long are evicted
	Whitelist       map[string]bool
	Blacklist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// LoadConfig loads rate limiting configuration from RATE_LIMIT_* environment variables.
func LoadConfig() *Config {
	if !config.GetEnvBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    config.GetEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   config.GetEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		IdleTTL:         config.GetEnvDuration("RATE_LIMIT_IDLE_TTL", time.Hour),
		Whitelist:       parseIPList(config.GetEnvString("RATE_LIMIT_WHITELIST", "")),
		Blacklist:       parseIPList(config.GetEnvString("RATE_LIMIT_BLACKLIST", "")),
		EndpointConfigs: DefaultEndpointConfigs(config.GetEnvInt("RATE_LIMIT_START_PER_HOUR", 60)),
	}
}

// DefaultEndpointConfigs returns the endpoint limits. Starting a pipeline is
// the expensive call and gets the tightest limit; status polling gets the loosest.
func DefaultEndpointConfigs(startsPerHour int) []EndpointConfig {
	startBurst := max(1, startsPerHour/10)
	return []EndpointConfig{
		{Path: "/handoff/start", Method: "POST", Limit: startsPerHour, Window: time.Hour, Burst: startBurst},
		{Path: "/handoff/stream", Method: "POST", Limit: startsPerHour, Window: time.Hour, Burst: startBurst},
		{Path: "/checkpoints", Method: "POST", Limit: 300, Window: time.Minute, Burst: 30},
		{Path: "/handoff/status", Method: "GET", Limit: 600, Window: time.Minute, Burst: 60},
	}
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
