package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration. It is loaded once at startup
// and passed explicitly into every constructor; core logic never reads the
// environment on its own.
type Config struct {
	ProjectName string
	Port        string
	APIToken    string
	JWTSecret   string
	Database    DatabaseConfig
	Proxy       ProxyConfig
	Providers   ProvidersConfig
	Scheduler   SchedulerConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// ProxyConfig holds the credentials and port baked into every proxy VM,
// plus the echo endpoint used to verify egress.
type ProxyConfig struct {
	Login        string
	Password     string
	Port         int
	EchoURL      string
	ProbeTimeout time.Duration
}

// ProvidersConfig groups per-provider settings
type ProvidersConfig struct {
	DigitalOcean DigitalOceanConfig
	Hetzner      HetznerConfig
}

// DigitalOceanConfig holds DigitalOcean API settings and droplet sizing
type DigitalOceanConfig struct {
	Token     string
	ProjectID string
	Region    string
	Size      string
	Image     string
	Limit     int
}

// HetznerConfig holds Hetzner Cloud API settings and server sizing
type HetznerConfig struct {
	Token      string
	ServerType string
	Location   string
	Image      string
	Limit      int
}

// SchedulerConfig holds cron expressions for the periodic jobs
type SchedulerConfig struct {
	SweepSchedule     string
	ReconcileSchedule string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	proxyLogin := os.Getenv("PROXY_LOGIN")
	proxyPassword := os.Getenv("PROXY_PASSWORD")
	if proxyLogin == "" || proxyPassword == "" {
		return nil, fmt.Errorf("PROXY_LOGIN and PROXY_PASSWORD are required")
	}

	return &Config{
		ProjectName: getEnv("PROJECT_NAME", "proxyfleet"),
		Port:        getEnv("PORT", "3001"),
		APIToken:    os.Getenv("API_TOKEN"),
		JWTSecret:   jwtSecret,
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "proxyfleet"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		Proxy: ProxyConfig{
			Login:        proxyLogin,
			Password:     proxyPassword,
			Port:         getEnvInt("PROXY_PORT", 3128),
			EchoURL:      getEnv("PROXY_ECHO_URL", "https://httpbin.org/post"),
			ProbeTimeout: time.Duration(getEnvInt("PROXY_PROBE_TIMEOUT", 5)) * time.Second,
		},
		Providers: ProvidersConfig{
			DigitalOcean: DigitalOceanConfig{
				Token:     os.Getenv("DO_TOKEN"),
				ProjectID: os.Getenv("DO_PROJECT_ID"),
				Region:    getEnv("DO_REGION", "fra1"),
				Size:      getEnv("DO_SIZE", "s-1vcpu-512mb-10gb"),
				Image:     getEnv("DO_IMAGE", "centos-stream-9-x64"),
				Limit:     getEnvInt("DO_LIMIT", 30),
			},
			Hetzner: HetznerConfig{
				Token:      os.Getenv("HETZNER_TOKEN"),
				ServerType: getEnv("HETZNER_SERVER_TYPE", "cx22"),
				Location:   getEnv("HETZNER_LOCATION", "nbg1"),
				Image:      getEnv("HETZNER_IMAGE", "centos-stream-9"),
				Limit:      getEnvInt("HETZNER_LIMIT", 5),
			},
		},
		Scheduler: SchedulerConfig{
			SweepSchedule:     getEnv("SWEEP_SCHEDULE", "*/5 * * * *"),
			ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "0 4 * * *"),
		},
	}, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
