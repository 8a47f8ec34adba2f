// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Platform roles. The wallet/session layer resolves caller identities
	// upstream; these two are the only globally configured ones.
	AdminAddress  string // platform admin, required
	KeeperAddress string // trusted oracle for current-value/current-allocation pushes
	FeeCollector  string // receives platform fees; defaults to AdminAddress
	VaultAddress  string // holds invested principal; defaults to FeeCollector

	// Investment settings
	PlatformFeeBPS     int  // deposit fee in basis points, ceiling 100
	InvestmentsEnabled bool // global deposit switch at boot

	// Risk scoring thresholds. The source protocol hardcodes these; kept
	// configurable per deployment with the protocol values as defaults.
	HighRiskThreshold    int    // flag score strictly above this (0-100)
	HighValueThreshold   string // base units; adds +10 to the combined score
	MediumValueThreshold string // base units; adds +5

	// Security
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // OTLP gRPC collector (optional, tracing disabled if unset)
}

// Defaults
const (
	DefaultPort                 = "8080"
	DefaultEnv                  = "development"
	DefaultLogLevel             = "info"
	DefaultPlatformFeeBPS       = 25
	DefaultHighRiskThreshold    = 70
	DefaultHighValueThreshold   = "100"
	DefaultMediumValueThreshold = "10"
	DefaultRateLimitRPM         = 120

	// MaxPlatformFeeBPS is the fee ceiling (1%).
	MaxPlatformFeeBPS = 100
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		AdminAddress:         os.Getenv("ADMIN_ADDRESS"),
		KeeperAddress:        os.Getenv("KEEPER_ADDRESS"),
		FeeCollector:         os.Getenv("FEE_COLLECTOR"),
		VaultAddress:         os.Getenv("VAULT_ADDRESS"),
		PlatformFeeBPS:       getEnvInt("PLATFORM_FEE_BPS", DefaultPlatformFeeBPS),
		InvestmentsEnabled:   getEnvBool("INVESTMENTS_ENABLED", true),
		HighRiskThreshold:    getEnvInt("HIGH_RISK_THRESHOLD", DefaultHighRiskThreshold),
		HighValueThreshold:   getEnv("HIGH_VALUE_THRESHOLD", DefaultHighValueThreshold),
		MediumValueThreshold: getEnv("MEDIUM_VALUE_THRESHOLD", DefaultMediumValueThreshold),
		RateLimitRPM:         getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		OTLPEndpoint:         os.Getenv("OTLP_ENDPOINT"),
	}

	if cfg.FeeCollector == "" {
		cfg.FeeCollector = cfg.AdminAddress
	}
	if cfg.VaultAddress == "" {
		cfg.VaultAddress = cfg.FeeCollector
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if c.AdminAddress == "" {
		return fmt.Errorf("ADMIN_ADDRESS is required")
	}
	if c.KeeperAddress == "" {
		return fmt.Errorf("KEEPER_ADDRESS is required")
	}
	if c.PlatformFeeBPS < 0 || c.PlatformFeeBPS > MaxPlatformFeeBPS {
		return fmt.Errorf("PLATFORM_FEE_BPS must be in [0, %d], got %d", MaxPlatformFeeBPS, c.PlatformFeeBPS)
	}
	if c.HighRiskThreshold < 0 || c.HighRiskThreshold > 100 {
		return fmt.Errorf("HIGH_RISK_THRESHOLD must be in [0, 100], got %d", c.HighRiskThreshold)
	}
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, staging, or production, got %q", c.Env)
	}
	return nil
}

// IsProduction returns true in production environments
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
