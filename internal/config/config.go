// Package config содержит логику чтения конфигурации сервиса краудфандинга.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса краудфандинга.
type Config struct {
	RunAddress          string `env:"RUN_ADDRESS"`
	DatabaseURI         string `env:"DATABASE_URI"`
	PayoutSystemAddress string `env:"PAYOUT_SYSTEM_ADDRESS"`
	ControllerPrincipal string `env:"CONTROLLER_PRINCIPAL"`
	AuthSecret          string `env:"AUTH_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPayoutAddress := cfg.PayoutSystemAddress
	envControllerPrincipal := cfg.ControllerPrincipal
	envAuthSecret := cfg.AuthSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PayoutSystemAddress, "p", "", "payout system address")
	flag.StringVar(&cfg.ControllerPrincipal, "c", "", "controller principal")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret key for auth tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPayoutAddress != "" {
		cfg.PayoutSystemAddress = envPayoutAddress
	}
	if envControllerPrincipal != "" {
		cfg.ControllerPrincipal = envControllerPrincipal
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}
