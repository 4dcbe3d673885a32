// Package config содержит логику чтения конфигурации сервиса skillmarket.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса skillmarket.
type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	OwnerAddress       string `env:"OWNER_ADDRESS"`
	MarketplaceAddress string `env:"MARKETPLACE_ADDRESS"`
	IndexerAddress     string `env:"INDEXER_ADDRESS"`
	AuthSecret         string `env:"AUTH_SECRET"`
}

// DefaultMarketplaceAddress — адрес-казна площадки, используемый если деплой не
// задал собственный. Комиссии с покупок накапливаются на этом счёте.
const DefaultMarketplaceAddress = "0x0000000000000000000000000000000000000001"

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envOwnerAddress := cfg.OwnerAddress
	envMarketplaceAddress := cfg.MarketplaceAddress
	envIndexerAddress := cfg.IndexerAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.OwnerAddress, "o", "", "token ledger owner address")
	flag.StringVar(&cfg.MarketplaceAddress, "m", DefaultMarketplaceAddress, "marketplace treasury address")
	flag.StringVar(&cfg.IndexerAddress, "i", "", "external indexer address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envOwnerAddress != "" {
		cfg.OwnerAddress = envOwnerAddress
	}
	if envMarketplaceAddress != "" {
		cfg.MarketplaceAddress = envMarketplaceAddress
	}
	if envIndexerAddress != "" {
		cfg.IndexerAddress = envIndexerAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.MarketplaceAddress == "" {
		cfg.MarketplaceAddress = DefaultMarketplaceAddress
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "skillmarket-secret"
	}

	return cfg, nil
}
