// Package config loads client configuration from the environment and an
// optional config file, producing an explicit struct that the rest of the
// program receives at construction time.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the client and CLI need. Loaded once at
// startup; components never read the environment themselves.
type Config struct {
	ServerURL         string
	JWTSecret         string
	MapboxAccessToken string

	Issuer   string
	Audience string
	Subject  string

	TokenTTL         time.Duration
	RefreshThreshold time.Duration
	RequestTimeout   time.Duration

	RateLimitRPS float64
}

// Load reads configuration from cfgFile (optional), the environment, and
// defaults, in that order of precedence. It fails when a required setting
// is absent: MCP_SERVER_URL and JWT_SECRET have no usable defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("mapbox-mcp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.mapbox-mcp")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment names match what the server deployment documents.
	bind := map[string]string{
		"server_url":          "MCP_SERVER_URL",
		"jwt_secret":          "JWT_SECRET",
		"mapbox_access_token": "MAPBOX_ACCESS_TOKEN",
		"jwt_issuer":          "JWT_ISSUER",
		"jwt_audience":        "JWT_AUDIENCE",
		"jwt_subject":         "JWT_SUBJECT",
	}
	for key, env := range bind {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	v.SetDefault("token_ttl_seconds", 3600)
	v.SetDefault("refresh_threshold_seconds", 0) // 0 = TTL minus five minutes
	v.SetDefault("request_timeout_seconds", 30)
	v.SetDefault("rate_limit_rps", 0.0)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		ServerURL:         v.GetString("server_url"),
		JWTSecret:         v.GetString("jwt_secret"),
		MapboxAccessToken: v.GetString("mapbox_access_token"),
		Issuer:            v.GetString("jwt_issuer"),
		Audience:          v.GetString("jwt_audience"),
		Subject:           v.GetString("jwt_subject"),
		TokenTTL:          time.Duration(v.GetInt("token_ttl_seconds")) * time.Second,
		RefreshThreshold:  time.Duration(v.GetInt("refresh_threshold_seconds")) * time.Second,
		RequestTimeout:    time.Duration(v.GetInt("request_timeout_seconds")) * time.Second,
		RateLimitRPS:      v.GetFloat64("rate_limit_rps"),
	}

	var missing []string
	if cfg.ServerURL == "" {
		missing = append(missing, "MCP_SERVER_URL")
	}
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}
