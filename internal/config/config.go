/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables and an optional
 * .env file, providing a centralized way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all the configuration variables for the transfer-service.
type Config struct {
	ServerPort                   string `mapstructure:"SERVER_PORT"`
	StoreDriver                  string `mapstructure:"STORE_DRIVER"`
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	DBMaxConns                   int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns                   int32  `mapstructure:"DB_MIN_CONNS"`
	AutoMigrate                  bool   `mapstructure:"AUTO_MIGRATE"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	TransferRateLimitPerMinute   int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	NotificationExchange         string `mapstructure:"NOTIFICATION_EXCHANGE"`
	JWTSecret                    string `mapstructure:"JWT_SECRET"`
	JWTIssuer                    string `mapstructure:"JWT_ISSUER"`
	TransferMaxAttempts          int    `mapstructure:"TRANSFER_MAX_ATTEMPTS"`
	CollaboratorTimeoutSeconds   int    `mapstructure:"COLLABORATOR_TIMEOUT_SECONDS"`
	SchedulerEnabled             bool   `mapstructure:"SCHEDULER_ENABLED"`
	ScheduledPaymentsJobSchedule string `mapstructure:"SCHEDULED_PAYMENTS_JOB_SCHEDULE"`
	RecurringPaymentsJobSchedule string `mapstructure:"RECURRING_PAYMENTS_JOB_SCHEDULE"`
	JobTimeoutSeconds            int    `mapstructure:"JOB_TIMEOUT_SECONDS"`
	ClaimLeaseSeconds            int    `mapstructure:"CLAIM_LEASE_SECONDS"`
	ClaimBatchSize               int    `mapstructure:"CLAIM_BATCH_SIZE"`
	LogLevel                     string `mapstructure:"LOG_LEVEL"`
}

// CollaboratorTimeout bounds notifier and activity-log calls after a transfer.
func (c Config) CollaboratorTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeoutSeconds) * time.Second
}

// JobTimeout bounds a single run of a scheduled job.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// ClaimLease is how long a claimed payment stays reserved for one processor.
func (c Config) ClaimLease() time.Duration {
	return time.Duration(c.ClaimLeaseSeconds) * time.Second
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	viper.SetDefault("DB_MAX_CONNS", 20)
	viper.SetDefault("DB_MIN_CONNS", 2)
	viper.SetDefault("AUTO_MIGRATE", true)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "bank:rate_limit")
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("NOTIFICATION_EXCHANGE", "bank.events")
	viper.SetDefault("JWT_ISSUER", "")
	viper.SetDefault("TRANSFER_MAX_ATTEMPTS", 5)
	viper.SetDefault("COLLABORATOR_TIMEOUT_SECONDS", 5)
	viper.SetDefault("SCHEDULER_ENABLED", true)
	viper.SetDefault("SCHEDULED_PAYMENTS_JOB_SCHEDULE", "@every 1m")
	viper.SetDefault("RECURRING_PAYMENTS_JOB_SCHEDULE", "@every 1m")
	viper.SetDefault("JOB_TIMEOUT_SECONDS", 50)
	viper.SetDefault("CLAIM_LEASE_SECONDS", 300)
	viper.SetDefault("CLAIM_BATCH_SIZE", 100)
	viper.SetDefault("LOG_LEVEL", "info")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("STORE_DRIVER")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("DB_MIN_CONNS")
	_ = viper.BindEnv("AUTO_MIGRATE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFICATION_EXCHANGE")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("TRANSFER_MAX_ATTEMPTS")
	_ = viper.BindEnv("COLLABORATOR_TIMEOUT_SECONDS")
	_ = viper.BindEnv("SCHEDULER_ENABLED")
	_ = viper.BindEnv("SCHEDULED_PAYMENTS_JOB_SCHEDULE")
	_ = viper.BindEnv("RECURRING_PAYMENTS_JOB_SCHEDULE")
	_ = viper.BindEnv("JOB_TIMEOUT_SECONDS")
	_ = viper.BindEnv("CLAIM_LEASE_SECONDS")
	_ = viper.BindEnv("CLAIM_BATCH_SIZE")
	_ = viper.BindEnv("LOG_LEVEL")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.StoreDriver = strings.ToLower(strings.TrimSpace(config.StoreDriver))
	switch config.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(config.DatabaseURL) == "" {
			return config, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return config, fmt.Errorf("unsupported STORE_DRIVER %q", config.StoreDriver)
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "bank:rate_limit"
	}
	config.NotificationExchange = strings.TrimSpace(config.NotificationExchange)
	if config.NotificationExchange == "" {
		config.NotificationExchange = "bank.events"
	}
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	if config.JWTSecret == "" {
		return config, fmt.Errorf("JWT_SECRET is required")
	}

	if config.DBMaxConns <= 0 {
		config.DBMaxConns = 20
	}
	if config.DBMinConns < 0 || config.DBMinConns > config.DBMaxConns {
		log.Printf("level=warn component=config msg=\"invalid DB_MIN_CONNS; clamping\" min=%d max=%d", config.DBMinConns, config.DBMaxConns)
		config.DBMinConns = 0
	}
	if config.TransferMaxAttempts <= 0 {
		config.TransferMaxAttempts = 5
	}
	if config.CollaboratorTimeoutSeconds <= 0 {
		config.CollaboratorTimeoutSeconds = 5
	}
	if config.JobTimeoutSeconds <= 0 {
		config.JobTimeoutSeconds = 50
	}
	if config.ClaimLeaseSeconds <= 0 {
		config.ClaimLeaseSeconds = 300
	}
	if config.ClaimBatchSize <= 0 {
		config.ClaimBatchSize = 100
	}
	if strings.TrimSpace(config.ScheduledPaymentsJobSchedule) == "" {
		config.ScheduledPaymentsJobSchedule = "@every 1m"
	}
	if strings.TrimSpace(config.RecurringPaymentsJobSchedule) == "" {
		config.RecurringPaymentsJobSchedule = "@every 1m"
	}

	return
}
