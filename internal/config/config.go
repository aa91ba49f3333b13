// Package config layers defaults, a .env file, SOSED_* environment variables
// and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "SOSED"

// Config holds the runtime settings of the server.
type Config struct {
	DB           string `mapstructure:"db"`
	Addr         string `mapstructure:"addr"`
	AdminUser    string `mapstructure:"admin_user"`
	Log          string `mapstructure:"log"`
	CookieSecure bool   `mapstructure:"cookie_secure"`
	RecentLimit  int    `mapstructure:"recent_limit"`
}

// Defaults returns the built-in settings.
func Defaults() map[string]any {
	return map[string]any{
		"db":            "sosed.sqlite3",
		"addr":          ":8080",
		"admin_user":    "Admin",
		"log":           "",
		"cookie_secure": false,
		"recent_limit":  8,
	}
}

// Load resolves the configuration. Values from envFile (if it exists) take
// precedence over defaults, the process environment over envFile, and
// overrides (explicitly set flags) over everything.
func Load(envFile string, overrides map[string]any) (*Config, error) {
	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}

	if envFile != "" {
		fileEnv, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", envFile, err)
		}
		for k, val := range fileEnv {
			if key, ok := strings.CutPrefix(k, EnvPrefix+"_"); ok {
				v.SetDefault(strings.ToLower(key), val)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for k, val := range overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.RecentLimit <= 0 {
		return nil, fmt.Errorf("recent_limit must be positive, got %d", cfg.RecentLimit)
	}
	return &cfg, nil
}
