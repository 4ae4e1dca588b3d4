// Package config loads server settings from flags, environment and an
// optional config file.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/atmx/yield-farm/internal/authority"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Port              string
	DatabaseURL       string
	RedisURL          string
	CacheTTL          time.Duration
	RequireSignatures bool
	Treasury          common.Address
	FarmMint          common.Address
	DevMode           bool
	LogLevel          string
	ShutdownTimeout   time.Duration
}

// Load merges config file, environment variables (FARM_*), and flags into
// Config. PORT, DATABASE_URL and REDIS_URL are honored as fallbacks.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FARM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, fallback := range map[string]string{
		"port":         "PORT",
		"database-url": "DATABASE_URL",
		"redis-url":    "REDIS_URL",
	} {
		if err := v.BindEnv(key, "FARM_"+strings.ToUpper(strings.ReplaceAll(key, "-", "_")), fallback); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("port", "8080")
	v.SetDefault("cache-ttl", 30*time.Second)
	v.SetDefault("require-signatures", false)
	v.SetDefault("dev-mode", false)
	v.SetDefault("log-level", "info")
	v.SetDefault("shutdown-timeout", 5*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("farm")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	treasury, err := address(v, "treasury", authority.Derive("treasury"))
	if err != nil {
		return Config{}, err
	}
	farmMint, err := address(v, "farm-mint", authority.FarmMint())
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:              v.GetString("port"),
		DatabaseURL:       v.GetString("database-url"),
		RedisURL:          v.GetString("redis-url"),
		CacheTTL:          v.GetDuration("cache-ttl"),
		RequireSignatures: v.GetBool("require-signatures"),
		Treasury:          treasury,
		FarmMint:          farmMint,
		DevMode:           v.GetBool("dev-mode"),
		LogLevel:          v.GetString("log-level"),
		ShutdownTimeout:   v.GetDuration("shutdown-timeout"),
	}

	if cfg.RequireSignatures && cfg.DevMode {
		slog.Warn("dev-mode enabled alongside require-signatures; /dev/fund is unauthenticated")
	}
	return cfg, nil
}

// SlogLevel parses LogLevel, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func address(v *viper.Viper, key string, def common.Address) (common.Address, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return def, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, raw)
	}
	return common.HexToAddress(raw), nil
}
