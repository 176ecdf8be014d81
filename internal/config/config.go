package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level clinicpulse configuration.
type Config struct {
	RedisAddr    string `mapstructure:"redis_addr"`
	KafkaBrokers string `mapstructure:"kafka_brokers"`
	KafkaTopic   string `mapstructure:"kafka_topic"`
	Batch        Batch  `mapstructure:"batch"`
	Output       Output `mapstructure:"output"`
}

// Batch defines the batch-orchestration parameters.
type Batch struct {
	Size        int `mapstructure:"size"`
	Concurrency int `mapstructure:"concurrency"`
	DelayMs     int `mapstructure:"delay_ms"`
	WindowDays  int `mapstructure:"window_days"`
}

// Delay returns the inter-batch delay as a duration.
func (b Batch) Delay() time.Duration {
	return time.Duration(b.DelayMs) * time.Millisecond
}

// Output defines output preferences.
type Output struct {
	Color bool `mapstructure:"color"`
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads configuration from the given path (or the default location)
// and returns a Config with all defaults applied. Environment variables
// prefixed CLINICPULSE_ override file values.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Set defaults.
	v.SetDefault("redis_addr", DefaultRedisAddr)
	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", DefaultKafkaTopic)
	v.SetDefault("batch.size", DefaultBatch.Size)
	v.SetDefault("batch.concurrency", DefaultBatch.Concurrency)
	v.SetDefault("batch.delay_ms", DefaultBatch.DelayMs)
	v.SetDefault("batch.window_days", DefaultBatch.WindowDays)
	v.SetDefault("output.color", true)

	v.SetEnvPrefix("CLINICPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(expandPath(cfgFile))
	} else {
		configDir := expandPath(DefaultConfigDir)
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Read config file if it exists; missing file is not an error.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DBPath returns the full path to the run-history SQLite database.
func DBPath() string {
	return filepath.Join(expandPath(DefaultConfigDir), DefaultDBName)
}

// ConfigDir returns the expanded configuration directory.
func ConfigDir() string {
	return expandPath(DefaultConfigDir)
}
