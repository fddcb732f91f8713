// Package config loads the messaging engine's construction-time and
// per-start configuration the way the teacher loads its forwarding
// configuration: a TOML file read through Viper, defaults filled in for
// anything absent, required fields validated, and the resolved values
// logged once at startup.
package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// PriorityPoolConfig is the §6 "per-pipeline, construction-time" worker
// count configuration, one count per non-Top priority class. The Top class
// is always exactly one worker (§3: "each outbound frame is produced by
// exactly one Top-priority socket-write job; concurrent writers on a
// socket are forbidden") and is not operator-configurable.
type PriorityPoolConfig struct {
	HighPriorityCount     int `mapstructure:"high_priority_count"`
	NormalPriorityCount   int `mapstructure:"normal_priority_count"`
	LowPriorityCount      int `mapstructure:"low_priority_count"`
	LongTermPriorityCount int `mapstructure:"longterm_priority_count"`
}

// Config holds every knob the core and its ambient surface need.
type Config struct {
	// Transport.
	ListenPort int `mapstructure:"listen_port"`
	BufferSize int `mapstructure:"buffer_size"`

	// Auth / handshake.
	RegisteredKey string `mapstructure:"registered_key"`
	EncryptMode   bool   `mapstructure:"encrypt_mode"`

	// Framing sentinels, default 0xFD x4 / 0xFC x4 per the wire protocol.
	StartCode []byte `mapstructure:"-"`
	EndCode   []byte `mapstructure:"-"`

	// Job pool.
	Pool PriorityPoolConfig `mapstructure:"pool"`

	// Bundle manager.
	BundleTimeoutSeconds int `mapstructure:"bundle_timeout_seconds"`

	// Ambient admin HTTP surface.
	AdminPort              int      `mapstructure:"admin_port"`
	AllowedOrigins         []string `mapstructure:"allowed_origins"`
	ShutdownDrainSeconds   int      `mapstructure:"shutdown_drain_seconds"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
}

// Load reads configuration from config.toml, the same config file
// discovery and default-then-validate shape the teacher's Load uses.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("listen_port", 9443)
	viper.SetDefault("buffer_size", 4096)
	viper.SetDefault("encrypt_mode", true)
	viper.SetDefault("pool.high_priority_count", 3)
	viper.SetDefault("pool.normal_priority_count", 3)
	viper.SetDefault("pool.low_priority_count", 3)
	viper.SetDefault("pool.longterm_priority_count", 1)
	viper.SetDefault("bundle_timeout_seconds", 300)
	viper.SetDefault("admin_port", 9090)
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("shutdown_drain_seconds", 2)
	viper.SetDefault("shutdown_timeout_seconds", 10)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.StartCode = []byte{0xFD, 0xFD, 0xFD, 0xFD}
	cfg.EndCode = []byte{0xFC, 0xFC, 0xFC, 0xFC}

	if cfg.RegisteredKey == "" {
		return nil, fmt.Errorf("registered_key is required in config file")
	}

	if cfg.Pool.HighPriorityCount <= 0 {
		log.Printf("WARN:  pool.high_priority_count <= 0, defaulting to 3")
		cfg.Pool.HighPriorityCount = 3
	}
	if cfg.Pool.NormalPriorityCount <= 0 {
		log.Printf("WARN:  pool.normal_priority_count <= 0, defaulting to 3")
		cfg.Pool.NormalPriorityCount = 3
	}
	if cfg.Pool.LowPriorityCount <= 0 {
		log.Printf("WARN:  pool.low_priority_count <= 0, defaulting to 3")
		cfg.Pool.LowPriorityCount = 3
	}
	if cfg.Pool.LongTermPriorityCount <= 0 {
		log.Printf("WARN:  pool.longterm_priority_count <= 0, defaulting to 1")
		cfg.Pool.LongTermPriorityCount = 1
	}

	log.Printf("INFO:  Configuration loaded successfully from %s", viper.ConfigFileUsed())
	log.Printf("INFO:    listen_port: %d", cfg.ListenPort)
	log.Printf("INFO:    buffer_size: %d", cfg.BufferSize)
	log.Printf("INFO:    encrypt_mode: %v", cfg.EncryptMode)
	log.Printf("INFO:    pool: high=%d normal=%d low=%d longterm=%d",
		cfg.Pool.HighPriorityCount, cfg.Pool.NormalPriorityCount, cfg.Pool.LowPriorityCount, cfg.Pool.LongTermPriorityCount)
	log.Printf("INFO:    bundle_timeout_seconds: %d", cfg.BundleTimeoutSeconds)
	log.Printf("INFO:    admin_port: %d", cfg.AdminPort)

	return &cfg, nil
}
