package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration loaded once at startup.
var Module = fx.Provide(Load)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	// Timezone is the fixed service time zone used for schedule validation
	// and next-cycle computation.
	Timezone string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBAutoMigrate     bool

	PortOne PortOneConfig
	Monitor MonitorConfig

	// AutoScheduleEnabled controls whether a successful charge chains the
	// next billing cycle.
	AutoScheduleEnabled bool
}

// PortOneConfig carries the payment gateway credentials.
type PortOneConfig struct {
	BaseURL                string
	APISecret              string
	StoreID                string
	ChannelKey             string
	KakaopayChannelKey     string
	TosspaymentsChannelKey string
	Timeout                time.Duration
}

// MonitorConfig carries the reconciliation monitor settings. Enabled is the
// master-instance flag: exactly one deployment replica runs with it set.
type MonitorConfig struct {
	Enabled            bool
	Interval           time.Duration
	MaxAPICallsPerTick int
	APICallDelay       time.Duration
	Window             time.Duration
	StaleAfter         time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "fitsync-billing"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		Timezone:    getenv("SERVICE_TIMEZONE", "Asia/Seoul"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fitsync"),
		DBUser:            getenv("DATABASE_USER", "fitsync"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", false),

		PortOne: PortOneConfig{
			BaseURL:                getenv("PORTONE_BASE_URL", "https://api.portone.io"),
			APISecret:              strings.TrimSpace(getenv("PORTONE_API_SECRET", "")),
			StoreID:                strings.TrimSpace(getenv("PORTONE_STORE_ID", "")),
			ChannelKey:             strings.TrimSpace(getenv("PORTONE_CHANNEL_KEY", "")),
			KakaopayChannelKey:     strings.TrimSpace(getenv("PORTONE_KAKAOPAY_CHANNEL_KEY", "")),
			TosspaymentsChannelKey: strings.TrimSpace(getenv("PORTONE_TOSSPAYMENTS_CHANNEL_KEY", "")),
			Timeout:                getenvDuration("PORTONE_TIMEOUT", 15*time.Second),
		},

		Monitor: MonitorConfig{
			Enabled:            getenvBool("PAYMENT_MONITOR_ENABLED", false),
			Interval:           getenvDuration("PAYMENT_MONITOR_INTERVAL", time.Minute),
			MaxAPICallsPerTick: getenvInt("PAYMENT_MONITOR_MAX_API_CALLS", 15),
			APICallDelay:       getenvDuration("PAYMENT_MONITOR_API_DELAY", time.Second),
			Window:             getenvDuration("PAYMENT_MONITOR_WINDOW", 10*time.Minute),
			StaleAfter:         getenvDuration("PAYMENT_MONITOR_STALE_AFTER", 48*time.Hour),
		},

		AutoScheduleEnabled: getenvBool("PAYMENT_AUTO_SCHEDULE_ENABLED", true),
	}
}

// Location resolves the configured service time zone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
