package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

type AppConfig struct {
	Env                Environment
	LogLevel           string
	ServerPort         string
	RawBodyLog         bool
	HttpTimeoutSeconds int
}

type ChronoConfig struct {
	APIBase       string
	TokenURL      string
	WebhookSecret string
	AccessToken   string
	RefreshToken  string
	ClientID      string
	ClientSecret  string
}

type ArchiveConfig struct {
	Bucket         string
	KeyPrefix      string
	ProviderMarker string
}

type AwsConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

type Config struct {
	App     AppConfig
	Chrono  ChronoConfig
	Archive ArchiveConfig
	Aws     AwsConfig
}

// keyPrefix is the fixed S3 folder all archived notes land under.
const keyPrefix = "chrono-webhook"

func Load() (*Config, error) {
	_ = godotenv.Load()

	appEnv := getEnv("APP_ENV", "development")
	env := parseEnvironment(appEnv)

	logLevel := getLogLevel(env)

	return &Config{
		App: AppConfig{
			Env:                env,
			LogLevel:           logLevel,
			ServerPort:         getEnv("APP_SERVER_PORT", "8080"),
			RawBodyLog:         getEnvBool("APP_RAW_BODY_LOG", false),
			HttpTimeoutSeconds: getEnvInt("APP_HTTP_TIMEOUT_SECONDS", 30),
		},
		Chrono: ChronoConfig{
			APIBase:       getEnv("DRCHRONO_API_BASE", "https://drchrono.com/api"),
			TokenURL:      getEnv("DRCHRONO_TOKEN_URL", "https://drchrono.com/o/token/"),
			WebhookSecret: getEnv("DRCHRONO_WEBHOOK_SECRET", ""),
			AccessToken:   getEnv("DRCHRONO_ACCESS_TOKEN", ""),
			RefreshToken:  getEnv("DRCHRONO_REFRESH_TOKEN", ""),
			ClientID:      getEnv("DRCHRONO_CLIENT_ID", ""),
			ClientSecret:  getEnv("DRCHRONO_CLIENT_SECRET", ""),
		},
		Archive: ArchiveConfig{
			Bucket:         getEnv("S3_BUCKET", ""),
			KeyPrefix:      keyPrefix,
			ProviderMarker: getEnv("PROVIDER_STRING", ""),
		},
		Aws: AwsConfig{
			AccessKeyID:     getEnv("MY_AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("MY_AWS_SECRET_ACCESS_KEY", ""),
			Region:          getEnv("MY_AWS_REGION", "us-east-1"),
		},
	}, nil
}

// Validate checks the values the processing pipeline cannot run without.
// The webhook secret is deliberately not listed: with no secret configured
// the handler answers 400 on the verification handshake and fails every
// signature check closed.
func (c *Config) Validate() error {
	if c.Chrono.AccessToken == "" || c.Chrono.RefreshToken == "" {
		return fmt.Errorf("DRCHRONO_ACCESS_TOKEN and DRCHRONO_REFRESH_TOKEN are required")
	}
	if c.Chrono.ClientID == "" || c.Chrono.ClientSecret == "" {
		return fmt.Errorf("DRCHRONO_CLIENT_ID and DRCHRONO_CLIENT_SECRET are required")
	}
	if c.Archive.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.Archive.ProviderMarker == "" {
		return fmt.Errorf("PROVIDER_STRING is required")
	}
	if c.Aws.AccessKeyID == "" || c.Aws.SecretAccessKey == "" {
		return fmt.Errorf("MY_AWS_ACCESS_KEY_ID and MY_AWS_SECRET_ACCESS_KEY are required")
	}
	return nil
}

func parseEnvironment(envStr string) Environment {
	env := Environment(strings.ToLower(envStr))

	switch env {
	case Development, Production:
		return env
	default:
		return Development
	}
}

func getLogLevel(env Environment) string {
	if env == Production {
		return getEnv("APP_LOG_LEVEL", "info")
	}

	return getEnv("APP_LOG_LEVEL", "debug")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value == "true" {
		return true
	}
	return defaultValue
}
