// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Vault    VaultConfig
	Mfa      MfaConfig
	Chains   ChainsConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// VaultConfig points at the transit signer. The service never holds keys;
// every signature comes back from Vault.
type VaultConfig struct {
	Address string
	Token   string
	Timeout time.Duration
}

type MfaConfig struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// ChainsConfig carries one endpoint per supported ledger. An empty URL leaves
// that chain unregistered.
type ChainsConfig struct {
	EthereumRPCURL string
	RippleRPCURL   string
	StellarURL     string
	BitcoinAPIURL  string
}

type WorkerConfig struct {
	Count       int
	ApproverTTL time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8035"),
			Env:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "custody"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Vault: VaultConfig{
			Address: getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:   getEnv("VAULT_TOKEN", ""),
			Timeout: getEnvDuration("VAULT_TIMEOUT", 10*time.Second),
		},
		Mfa: MfaConfig{
			APIURL:  getEnv("AUTHY_API_URL", "https://api.authy.com"),
			APIKey:  getEnv("AUTHY_API_KEY", ""),
			Timeout: getEnvDuration("AUTHY_TIMEOUT", 10*time.Second),
		},
		Chains: ChainsConfig{
			EthereumRPCURL: getEnv("ETHEREUM_RPC_URL", ""),
			RippleRPCURL:   getEnv("RIPPLE_RPC_URL", ""),
			StellarURL:     getEnv("STELLAR_HORIZON_URL", ""),
			BitcoinAPIURL:  getEnv("BITCOIN_API_URL", ""),
		},
		Worker: WorkerConfig{
			Count:       getEnvInt("APPROVAL_WORKERS", 4),
			ApproverTTL: getEnvDuration("APPROVER_TTL", 15*time.Minute),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
