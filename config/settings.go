package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Settings holds the configuration an adapter (CLI or API) needs to build
// a processor.Config and stand up its own transport. It does not hold any
// per-payload state; an adapter builds an identity.TrustSet and
// consensus.Config from these values (redstone-api once at startup,
// redstone-cli once per invocation) and adds the block timestamp and
// requested feeds per Process call.
type Settings struct {
	// Trust configuration
	TrustedSigners   []string          // hex-encoded addresses trusted for every feed
	PerFeedSigners   map[string][]string // feed ID hex -> hex addresses, overrides TrustedSigners for that feed
	RecoveryCacheSize int

	// Validation thresholds
	MaxTimestampDelayMs uint64
	MaxTimestampAheadMs uint64
	MinSignersPerFeed   int

	// Redis-backed trust/config snapshot cache (optional)
	RedisEnabled      bool
	RedisHost         string
	RedisPort         string
	RedisDB           int
	RedisPassword     string
	RedisCacheTTL     time.Duration
	RedisKeyNamespace string

	// API configuration
	APIHost string
	APIPort int

	// Monitoring & Debugging
	MetricsEnabled bool
	MetricsPort    int
	LogLevel       string
	DebugMode      bool
}

var (
	// SettingsObj is the global settings instance
	SettingsObj *Settings
)

// LoadConfig loads configuration from environment variables.
func LoadConfig() error {
	SettingsObj = &Settings{
		RecoveryCacheSize: getEnvAsInt("RECOVERY_CACHE_SIZE", 4096),

		MaxTimestampDelayMs: uint64(getEnvAsInt("MAX_TIMESTAMP_DELAY_MS", 180_000)),
		MaxTimestampAheadMs: uint64(getEnvAsInt("MAX_TIMESTAMP_AHEAD_MS", 60_000)),
		MinSignersPerFeed:   getEnvAsInt("MIN_SIGNERS_PER_FEED", 1),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisCacheTTL: time.Duration(getEnvAsInt("REDIS_CACHE_TTL_SECONDS", 300)) * time.Second,
		RedisKeyNamespace: getEnv("REDIS_KEY_NAMESPACE", "redstone"),

		APIHost: getEnv("API_HOST", "0.0.0.0"),
		APIPort: getEnvAsInt("API_PORT", 8080),

		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),
		MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DebugMode:      getBoolEnv("DEBUG_MODE", false),
	}

	loadTrustedSigners()
	if err := loadPerFeedSigners(); err != nil {
		return fmt.Errorf("failed to load per-feed signers: %w", err)
	}

	configureLogging()

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logConfigSummary()
	return nil
}

// LoadConfigFile overlays trust configuration from a YAML/JSON/TOML file
// onto the already-loaded SettingsObj, the way a one-shot CLI invocation
// supplies a deployment's trust set without exporting env vars for it.
// LoadConfig must be called first. Fields absent from the file are left
// untouched.
func LoadConfigFile(path string) error {
	if SettingsObj == nil {
		return fmt.Errorf("LoadConfig must be called before LoadConfigFile")
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if v.IsSet("trusted_signers") {
		SettingsObj.TrustedSigners = v.GetStringSlice("trusted_signers")
	}
	if v.IsSet("per_feed_signers") {
		perFeed := make(map[string][]string)
		if err := v.UnmarshalKey("per_feed_signers", &perFeed); err != nil {
			return fmt.Errorf("failed to parse per_feed_signers in %s: %w", path, err)
		}
		SettingsObj.PerFeedSigners = perFeed
	}
	if v.IsSet("min_signers_per_feed") {
		SettingsObj.MinSignersPerFeed = v.GetInt("min_signers_per_feed")
	}
	if v.IsSet("max_timestamp_delay_ms") {
		SettingsObj.MaxTimestampDelayMs = uint64(v.GetInt64("max_timestamp_delay_ms"))
	}
	if v.IsSet("max_timestamp_ahead_ms") {
		SettingsObj.MaxTimestampAheadMs = uint64(v.GetInt64("max_timestamp_ahead_ms"))
	}

	return validateConfig()
}

// loadTrustedSigners reads TRUSTED_SIGNERS as a comma-separated or JSON
// array of hex addresses.
func loadTrustedSigners() {
	signersStr := getEnv("TRUSTED_SIGNERS", "")
	if signersStr == "" {
		return
	}
	if strings.HasPrefix(signersStr, "[") {
		json.Unmarshal([]byte(signersStr), &SettingsObj.TrustedSigners)
	} else {
		SettingsObj.TrustedSigners = strings.Split(signersStr, ",")
	}
	for i := range SettingsObj.TrustedSigners {
		SettingsObj.TrustedSigners[i] = strings.TrimSpace(strings.Trim(SettingsObj.TrustedSigners[i], "\""))
	}
}

// loadPerFeedSigners reads PER_FEED_SIGNERS as a JSON object mapping feed
// ID hex to an array of hex addresses.
func loadPerFeedSigners() error {
	perFeedStr := getEnv("PER_FEED_SIGNERS", "")
	if perFeedStr == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(perFeedStr), &SettingsObj.PerFeedSigners); err != nil {
		return fmt.Errorf("failed to parse PER_FEED_SIGNERS as a JSON object: %w", err)
	}
	return nil
}

// configureLogging sets up the logger based on configuration.
func configureLogging() {
	switch strings.ToLower(SettingsObj.LogLevel) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	if SettingsObj.DebugMode {
		log.SetLevel(log.DebugLevel)
	}

	log.SetFormatter(&log.JSONFormatter{})
}

// validateConfig validates the loaded configuration.
func validateConfig() error {
	if SettingsObj.MinSignersPerFeed < 1 {
		return fmt.Errorf("MIN_SIGNERS_PER_FEED must be at least 1")
	}
	if SettingsObj.RedisEnabled && SettingsObj.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST required when REDIS_ENABLED is set")
	}
	return nil
}

// logConfigSummary logs a summary of the configuration.
func logConfigSummary() {
	log.WithFields(log.Fields{
		"trusted_signers":   len(SettingsObj.TrustedSigners),
		"per_feed_overrides": len(SettingsObj.PerFeedSigners),
		"min_signers":       SettingsObj.MinSignersPerFeed,
		"redis_enabled":     SettingsObj.RedisEnabled,
		"api_port":          SettingsObj.APIPort,
		"metrics_port":      SettingsObj.MetricsPort,
	}).Info("configuration loaded")
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		value = strings.ToLower(value)
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// TrustedAddresses parses Settings.TrustedSigners into common.Address
// values, skipping any that aren't valid hex addresses.
func (s *Settings) TrustedAddresses() []common.Address {
	addrs := make([]common.Address, 0, len(s.TrustedSigners))
	for _, hexAddr := range s.TrustedSigners {
		if common.IsHexAddress(hexAddr) {
			addrs = append(addrs, common.HexToAddress(hexAddr))
		}
	}
	return addrs
}

// PerFeedAddresses parses Settings.PerFeedSigners into the form
// identity.Config expects.
func (s *Settings) PerFeedAddresses() map[string][]common.Address {
	out := make(map[string][]common.Address, len(s.PerFeedSigners))
	for feed, hexAddrs := range s.PerFeedSigners {
		addrs := make([]common.Address, 0, len(hexAddrs))
		for _, hexAddr := range hexAddrs {
			if common.IsHexAddress(hexAddr) {
				addrs = append(addrs, common.HexToAddress(hexAddr))
			}
		}
		out[feed] = addrs
	}
	return out
}

