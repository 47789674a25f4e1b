package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the application configuration structure
type Config struct {
	Environment     string        `default:"dev" split_words:"true"`
	ListenAddress   string        `default:":8080" split_words:"true"`
	AllowedOrigin   string        `default:"*" split_words:"true"`
	UpstreamBaseURL string        `default:"http://zhjw.qfnu.edu.cn" envconfig:"upstream_base_url"`
	UpstreamTimeout time.Duration `default:"10s" split_words:"true"`
	SessionTTL      time.Duration `default:"15m" envconfig:"session_ttl"`
	SweepInterval   time.Duration `default:"1m" split_words:"true"`
}

// LoadFromEnv loads a new configuration structure using environment variables and an optional .env file
func LoadFromEnv() (*Config, error) {
	// Load a .env file if it exists
	_ = godotenv.Overload()

	// Load a new configuration structure using environment variables
	config := new(Config)
	if err := envconfig.Process("relay", config); err != nil {
		return nil, err
	}
	return config, nil
}

// IsEnvProduction returns whether the application runs in production mode
func (config *Config) IsEnvProduction() bool {
	return config.Environment == "prod" || config.Environment == "production"
}
