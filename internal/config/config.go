package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

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
	DBConnMaxIdleTime int

	CRM    CRMConfig
	Redis  RedisConfig
	Resync ResyncConfig
}

// CRMConfig points at the upstream customer directory and package ledger.
type CRMConfig struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// RedisConfig backs the rate limiter, advisory locks, and derived-view
// invalidation. Disabled when Addr is empty.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ResyncConfig controls the bulk resync batch job.
type ResyncConfig struct {
	IntervalSeconds   int
	BatchSize         int
	MaxInFlight       int
	CRMCallRate       float64
	CRMCallBurst      int
	LockTTLSeconds    int
	EnableTimerLoop   bool
	OnlyUnresolved    bool
	MaxProfilesPerRun int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "crmlink"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "crmlink"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		CRM: CRMConfig{
			BaseURL:        strings.TrimRight(getenv("CRM_BASE_URL", ""), "/"),
			APIKey:         strings.TrimSpace(getenv("CRM_API_KEY", "")),
			TimeoutSeconds: getenvInt("CRM_TIMEOUT_SECONDS", 5),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Resync: ResyncConfig{
			IntervalSeconds:   getenvInt("RESYNC_INTERVAL_SECONDS", 3600),
			BatchSize:         getenvInt("RESYNC_BATCH_SIZE", 20),
			MaxInFlight:       getenvInt("RESYNC_MAX_IN_FLIGHT", 4),
			CRMCallRate:       getenvFloat("RESYNC_CRM_CALL_RATE", 10),
			CRMCallBurst:      getenvInt("RESYNC_CRM_CALL_BURST", 20),
			LockTTLSeconds:    getenvInt("RESYNC_LOCK_TTL_SECONDS", 30),
			EnableTimerLoop:   getenvBool("RESYNC_TIMER_ENABLED", true),
			OnlyUnresolved:    getenvBool("RESYNC_ONLY_UNRESOLVED", false),
			MaxProfilesPerRun: getenvInt("RESYNC_MAX_PROFILES", 0),
		},
	}

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
