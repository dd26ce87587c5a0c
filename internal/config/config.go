package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Bangumi account
	BangumiUsername string
	BangumiToken    string
	BangumiPrivate  bool

	// Sync
	SyncUsername    string   // media server user allowed to sync
	BlockedKeywords []string // titles containing any of these are ignored
	SyncWorkers     int      // size of the resolution worker pool (default: 3)

	// bangumi-data dataset
	DataURL     string
	DataTTLDays int // days before the cached dataset is considered stale (default: 7)
	HTTPProxy   string

	// Server
	ServerPort string

	// Paths
	DataCachePath string // $CONFIG_DIR/bangumi_data.json
	MappingFile   string // $CONFIG_DIR/bangumi_mapping.json
	DatabaseFile  string // $CONFIG_DIR/bangumarr.db

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("DATA_URL", "https://unpkg.com/bangumi-data@0.3/dist/data.json")
	viper.SetDefault("DATA_TTL_DAYS", 7)
	viper.SetDefault("SYNC_WORKERS", 3)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("BANGUMI_PRIVATE", false)

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "bangumarr")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	config := &Config{
		// Bangumi account
		BangumiUsername: viper.GetString("BANGUMI_USERNAME"),
		BangumiToken:    viper.GetString("BANGUMI_ACCESS_TOKEN"),
		BangumiPrivate:  viper.GetBool("BANGUMI_PRIVATE"),

		// Sync
		SyncUsername:    viper.GetString("SYNC_USERNAME"),
		BlockedKeywords: splitKeywords(viper.GetString("BLOCKED_KEYWORDS")),
		SyncWorkers:     viper.GetInt("SYNC_WORKERS"),

		// Dataset
		DataURL:     viper.GetString("DATA_URL"),
		DataTTLDays: viper.GetInt("DATA_TTL_DAYS"),
		HTTPProxy:   viper.GetString("HTTP_PROXY"),

		// Server
		ServerPort: viper.GetString("SERVER_PORT"),

		// Paths
		DataCachePath: filepath.Join(configDir, "bangumi_data.json"),
		MappingFile:   filepath.Join(configDir, "bangumi_mapping.json"),
		DatabaseFile:  filepath.Join(configDir, "bangumarr.db"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	// Validate required fields
	if config.BangumiUsername == "" {
		return nil, fmt.Errorf("BANGUMI_USERNAME is required")
	}
	if config.BangumiToken == "" {
		return nil, fmt.Errorf("BANGUMI_ACCESS_TOKEN is required")
	}
	if config.SyncUsername == "" {
		return nil, fmt.Errorf("SYNC_USERNAME is required")
	}
	if config.SyncWorkers < 1 {
		return nil, fmt.Errorf("SYNC_WORKERS must be at least 1")
	}

	return config, nil
}

// splitKeywords parses a comma-separated keyword list, dropping empty entries
func splitKeywords(s string) []string {
	var keywords []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	return keywords
}
