package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the base server configuration.
type Config struct {
	Host          string
	Port          string
	SQLiteDBPath  string
	Env           string
	AllowTestMode bool

	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int

	// HEOS device settings. HeosHost pins the hub to a fixed device
	// address; when empty the hub discovers one via SSDP.
	HeosHost                 string
	HeosPort                 int
	HeosUsername             string
	HeosPassword             string
	HeosTimeoutMs            int
	HeosHeartbeatSec         int
	HeosReconnectMaxDelaySec int

	// SSDP discovery settings
	SSDPDiscoveryTimeoutMs int
	SSDPDiscoveryPasses    int
	SSDPPassIntervalMs     int
	SSDPRescanIntervalMs   int
	StaticDeviceIPs        []string

	// HistoryRetentionDays bounds how long command and event history rows
	// are kept before the prune job removes them.
	HistoryRetentionDays int
}

// Load reads configuration from the environment, with an optional YAML file
// as a second source. The file path comes from HEOS_HUB_CONFIG; keys in the
// file mirror the environment variable names. Environment values win.
func Load() (Config, error) {
	fileValues, err := loadFile(os.Getenv("HEOS_HUB_CONFIG"))
	if err != nil {
		return Config{}, err
	}
	src := source{file: fileValues}

	cfg := Config{
		Host:          src.str("HOST", "0.0.0.0"),
		Port:          src.str("PORT", "9000"),
		SQLiteDBPath:  src.str("SQLITE_DB_PATH", "./data/heos-hub.db"),
		Env:           src.str("HUB_ENV", "development"),
		AllowTestMode: src.boolean("ALLOW_TEST_MODE", false),

		JWTSecret:                src.str("JWT_SECRET", ""),
		JWTAccessTokenExpirySec:  src.integer("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		JWTRefreshTokenExpirySec: src.integer("JWT_REFRESH_TOKEN_EXPIRY", 2592000),

		HeosHost:                 src.str("HEOS_HOST", ""),
		HeosPort:                 src.integer("HEOS_PORT", 1255),
		HeosUsername:             src.str("HEOS_USERNAME", ""),
		HeosPassword:             src.str("HEOS_PASSWORD", ""),
		HeosTimeoutMs:            src.integer("HEOS_TIMEOUT_MS", 5000),
		HeosHeartbeatSec:         src.integer("HEOS_HEARTBEAT_SECONDS", 30),
		HeosReconnectMaxDelaySec: src.integer("HEOS_RECONNECT_MAX_DELAY_SECONDS", 30),

		SSDPDiscoveryTimeoutMs: src.integer("SSDP_DISCOVERY_TIMEOUT_MS", 5000),
		SSDPDiscoveryPasses:    src.integer("SSDP_DISCOVERY_PASSES", 3),
		SSDPPassIntervalMs:     src.integer("SSDP_PASS_INTERVAL_MS", 2000),
		SSDPRescanIntervalMs:   src.integer("SSDP_RESCAN_INTERVAL_MS", 60000),
		StaticDeviceIPs:        src.csv("STATIC_DEVICE_IPS"),

		HistoryRetentionDays: src.integer("HISTORY_RETENTION_DAYS", 30),
	}

	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.HeosPort < 1 || cfg.HeosPort > 65535 {
		return Config{}, fmt.Errorf("HEOS_PORT out of range: %d", cfg.HeosPort)
	}

	return cfg, nil
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return values, nil
}

func (s source) lookup(key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return s.file[key]
}

func (s source) str(key, fallback string) string {
	if val := s.lookup(key); val != "" {
		return val
	}
	return fallback
}

func (s source) integer(key string, fallback int) int {
	val := s.lookup(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) boolean(key string, fallback bool) bool {
	val := s.lookup(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func (s source) csv(key string) []string {
	val := s.lookup(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
