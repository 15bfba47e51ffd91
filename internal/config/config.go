package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ecgcare/vault-api/pkg/messaging/redis"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Crypto   CryptoConfig
	Redis    RedisConfig
	Storage  StorageConfig
	ML       MLConfig `mapstructure:"ml"`
	Audit    AuditConfig
	Session  SessionConfig
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	Issuer             string `mapstructure:"issuer"`
	ExpiryMinutes      int    `mapstructure:"expiry_minutes"`
	RefreshExpiryHours int    `mapstructure:"refresh_expiry_hours"`
}

func (c JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.ExpiryMinutes) * time.Minute
}

func (c JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshExpiryHours) * time.Hour
}

type CryptoConfig struct {
	BcryptCost        int    `mapstructure:"bcrypt_cost"`
	KDFMemoryKB       uint32 `mapstructure:"kdf_memory_kb"`
	KDFIterations     uint32 `mapstructure:"kdf_iterations"`
	KDFParallelism    uint8  `mapstructure:"kdf_parallelism"`
	KDFKeyLengthBytes uint32 `mapstructure:"kdf_key_length_bytes"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

func (c RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: 100 * time.Millisecond,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}

type StorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
	Region string `mapstructure:"region"`
}

type MLConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

type AuditConfig struct {
	RetentionDays        int `mapstructure:"retention_days"`
	CleanupIntervalHours int `mapstructure:"cleanup_interval_hours"`
}

type SessionConfig struct {
	IdleTimeoutMinutes   int `mapstructure:"idle_timeout_minutes"`
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
}

func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMinutes) * time.Minute
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeoutSeconds", 30)
	viper.SetDefault("jwt.expiry_minutes", 15)
	viper.SetDefault("jwt.refresh_expiry_hours", 168)
	viper.SetDefault("jwt.issuer", "vault-api")
	viper.SetDefault("crypto.bcrypt_cost", 12)
	viper.SetDefault("crypto.kdf_memory_kb", 65536)
	viper.SetDefault("crypto.kdf_iterations", 3)
	viper.SetDefault("crypto.kdf_parallelism", 2)
	viper.SetDefault("crypto.kdf_key_length_bytes", 32)
	viper.SetDefault("audit.retention_days", 365)
	viper.SetDefault("audit.cleanup_interval_hours", 24)
	viper.SetDefault("session.idle_timeout_minutes", 30)
	viper.SetDefault("session.sweep_interval_minutes", 5)
	viper.SetDefault("ml.timeout_seconds", 30)
	viper.SetDefault("ml.max_retries", 3)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
