package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/better-wallet/marketplace/internal/keystore"
)

// minJWTSecretLength is the shortest accepted HS256 signing secret.
const minJWTSecretLength = 32

// Config holds the marketplace server configuration
type Config struct {
	// Server
	Port            int
	ClientURL       string
	ShutdownTimeout time.Duration

	// Database
	PostgresDSN string

	// Auth
	JWTSecret  string
	AuthDomain string

	// Image uploads
	AWSRegion    string
	S3Bucket     string
	UploadURLTTL time.Duration

	// Rate limiting
	RateLimitRPS     float64
	RateLimitBurst   int
	RateLimitEnabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		ClientURL:        getEnv("CLIENT_URL", ""),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		PostgresDSN:      getEnv("POSTGRES_DSN", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		AuthDomain:       getEnv("AUTH_DOMAIN", "localhost"),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:         getEnv("AWS_S3_BUCKET", ""),
		UploadURLTTL:     getEnvDuration("UPLOAD_URL_TTL", time.Hour),
		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 20),
		RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}

	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}

	if c.S3Bucket == "" {
		return fmt.Errorf("AWS_S3_BUCKET is required")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got: %d", c.Port)
	}

	if c.UploadURLTTL <= 0 || c.UploadURLTTL > 7*24*time.Hour {
		return fmt.Errorf("UPLOAD_URL_TTL must be positive and at most 7 days, got: %s", c.UploadURLTTL)
	}

	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	if c.ClientURL != "" {
		u, err := url.Parse(c.ClientURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CLIENT_URL must be an absolute URL, got: %s", c.ClientURL)
		}
	}

	return nil
}

// WalletConfig configures the walletctl command.
type WalletConfig struct {
	// RPCURLs maps decimal chain IDs to node endpoints.
	RPCURLs   map[int64]string
	ChainID   int64
	KeyFile   string
	ServerURL string

	KMS keystore.KMSConfig
}

// LoadWallet loads the walletctl configuration from environment variables.
func LoadWallet() (*WalletConfig, error) {
	rpcURLs, err := parseRPCURLs(getEnv("ETH_RPC_URLS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &WalletConfig{
		RPCURLs:   rpcURLs,
		ChainID:   int64(getEnvInt("WALLET_CHAIN_ID", 1)),
		KeyFile:   getEnv("WALLET_KEY_FILE", "wallet.json"),
		ServerURL: getEnv("MARKETPLACE_URL", "http://localhost:8080"),
		KMS: keystore.KMSConfig{
			Provider:        getEnv("KMS_PROVIDER", string(keystore.KMSProviderLocal)),
			Passphrase:      getEnv("WALLET_PASSPHRASE", ""),
			AWSKMSKeyID:     getEnv("KMS_AWS_KEY_ID", ""),
			AWSKMSRegion:    getEnv("KMS_AWS_REGION", ""),
			VaultAddress:    getEnv("KMS_VAULT_ADDRESS", ""),
			VaultToken:      getEnv("KMS_VAULT_TOKEN", ""),
			VaultTransitKey: getEnv("KMS_VAULT_TRANSIT_KEY", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the wallet configuration is valid
func (c *WalletConfig) Validate() error {
	if c.KeyFile == "" {
		return fmt.Errorf("WALLET_KEY_FILE is required")
	}

	switch keystore.KMSProviderType(c.KMS.Provider) {
	case keystore.KMSProviderLocal, keystore.KMSProviderAWSKMS, keystore.KMSProviderVault:
	default:
		return fmt.Errorf("KMS_PROVIDER must be 'local', 'aws-kms' or 'vault', got: %s", c.KMS.Provider)
	}

	if len(c.RPCURLs) > 0 {
		if _, ok := c.RPCURLs[c.ChainID]; !ok {
			return fmt.Errorf("WALLET_CHAIN_ID %d has no entry in ETH_RPC_URLS", c.ChainID)
		}
	}
	return nil
}

// ChainIDs returns the configured chain IDs in ascending order.
func (c *WalletConfig) ChainIDs() []int64 {
	ids := make([]int64, 0, len(c.RPCURLs))
	for id := range c.RPCURLs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// parseRPCURLs parses "1=https://a,137=https://b".
func parseRPCURLs(raw string) (map[int64]string, error) {
	urls := make(map[int64]string)
	if strings.TrimSpace(raw) == "" {
		return urls, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		idStr, endpoint, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || endpoint == "" {
			return nil, fmt.Errorf("ETH_RPC_URLS entry %q must be <chainID>=<url>", entry)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("ETH_RPC_URLS entry %q has an invalid chain ID", entry)
		}
		urls[id] = strings.TrimSpace(endpoint)
	}
	return urls, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration gets a duration environment variable with a default value.
// Plain integers are read as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	valueStr = strings.ToLower(valueStr)
	return valueStr == "true" || valueStr == "1" || valueStr == "yes"
}
