package config

// Package config provides a reusable loader for repair-engine configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"repair-engine/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a repair-engine process:
// the six recognized repair options plus a logging block.
type Config struct {
	Repair struct {
		IdentityKeyPath     string `mapstructure:"identity_key_path" json:"identity_key_path"`
		IntakeListenPort    int    `mapstructure:"repair_intake_listen_port" json:"repair_intake_listen_port"`
		ServeListenPort     int    `mapstructure:"repair_serve_listen_port" json:"repair_serve_listen_port"`
		MaxPendingShredSets int    `mapstructure:"max_pending_shred_sets" json:"max_pending_shred_sets"`
		ShredTileCnt        int    `mapstructure:"shred_tile_cnt" json:"shred_tile_cnt"`
		GoodPeerCacheFile   string `mapstructure:"good_peer_cache_file" json:"good_peer_cache_file"`
	} `mapstructure:"repair" json:"repair"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // picks up REPAIR_* overrides without a .env loader

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the REPAIR_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("REPAIR_ENV", ""))
}
