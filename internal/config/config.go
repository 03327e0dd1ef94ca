// Package config содержит логику чтения конфигурации сервиса лояльности.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const defaultIdentityEndpoint = "https://identitytoolkit.googleapis.com/v1"

// Config содержит параметры конфигурации сервиса лояльности.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	IdentityEndpoint string `env:"IDENTITY_ENDPOINT"`
	IdentityAPIKey   string `env:"IDENTITY_API_KEY"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envIdentityEndpoint := cfg.IdentityEndpoint
	envIdentityAPIKey := cfg.IdentityAPIKey

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.IdentityEndpoint, "i", defaultIdentityEndpoint, "identity provider endpoint")
	flag.StringVar(&cfg.IdentityAPIKey, "k", "", "identity provider API key")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envIdentityEndpoint != "" {
		cfg.IdentityEndpoint = envIdentityEndpoint
	}
	if envIdentityAPIKey != "" {
		cfg.IdentityAPIKey = envIdentityAPIKey
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.IdentityEndpoint == "" {
		cfg.IdentityEndpoint = defaultIdentityEndpoint
	}

	return cfg, nil
}
