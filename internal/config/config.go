/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the claim service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                   string  `mapstructure:"SERVER_PORT"`
	DatabaseURL                  string  `mapstructure:"DATABASE_URL"`
	RedisURL                     string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                  string  `mapstructure:"RABBITMQ_URL"`
	ClaimEventExchange           string  `mapstructure:"CLAIM_EVENT_EXCHANGE"`
	JWKSURL                      string  `mapstructure:"JWKS_URL"`
	ApprovalCeilingFactor        float64 `mapstructure:"APPROVAL_CEILING_FACTOR"`
	LockTimeoutMs                int     `mapstructure:"LOCK_TIMEOUT_MS"`
	CodeSubmitRateLimitPerMinute int     `mapstructure:"CODE_SUBMIT_RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("CLAIM_EVENT_EXCHANGE", "claim_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "htb:rate_limit")
	viper.SetDefault("APPROVAL_CEILING_FACTOR", 1.0)
	viper.SetDefault("LOCK_TIMEOUT_MS", 3000)
	viper.SetDefault("CODE_SUBMIT_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "CLAIMS_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("CLAIM_EVENT_EXCHANGE")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("APPROVAL_CEILING_FACTOR")
	_ = viper.BindEnv("APPROVAL_CEILING_PERCENT")
	_ = viper.BindEnv("LOCK_TIMEOUT_MS")
	_ = viper.BindEnv("CODE_SUBMIT_RATE_LIMIT_PER_MINUTE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "htb:rate_limit"
	}

	// Allow specifying the approval ceiling as a percentage via APPROVAL_CEILING_PERCENT.
	if viper.IsSet("APPROVAL_CEILING_PERCENT") {
		percentStr := strings.TrimSpace(viper.GetString("APPROVAL_CEILING_PERCENT"))
		if percentStr != "" {
			percentValue, parseErr := strconv.ParseFloat(percentStr, 64)
			if parseErr != nil {
				log.Printf("level=warn component=config msg=\"invalid APPROVAL_CEILING_PERCENT\" value=%q err=%v", percentStr, parseErr)
			} else {
				config.ApprovalCeilingFactor = percentValue / 100
			}
		}
	}

	if config.ApprovalCeilingFactor <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive approval ceiling configured; coercing to 1.0\" factor=%f", config.ApprovalCeilingFactor)
		config.ApprovalCeilingFactor = 1.0
	}
	if config.LockTimeoutMs <= 0 {
		config.LockTimeoutMs = 3000
	}
	if config.CodeSubmitRateLimitPerMinute <= 0 {
		config.CodeSubmitRateLimitPerMinute = 30
	}

	return
}
