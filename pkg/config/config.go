package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Queue     QueueConfig
	Admission AdmissionConfig
	Reconcile ReconcileConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// QueueConfig tunes ledger and capacity behaviour.
type QueueConfig struct {
	DefaultHallCapacity int
	PerSeatServiceTime  time.Duration
	TagCeiling          int
	CapacityCacheTTL    time.Duration
}

// AdmissionConfig gates operational escape hatches for the check-in path.
// TestMode must be enabled by the operator before a client-supplied
// test_mode flag may synthesize missing students or queue entries.
type AdmissionConfig struct {
	TestMode bool
}

// ReconcileConfig drives the background sweep of orphaned queue entries.
type ReconcileConfig struct {
	Enabled       bool
	SweepInterval time.Duration
	Workers       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	capacity := v.GetInt("QUEUE_DEFAULT_HALL_CAPACITY")
	if capacity <= 0 {
		capacity = 250
	}
	tagCeiling := v.GetInt("QUEUE_TAG_CEILING")
	if tagCeiling <= 0 {
		tagCeiling = 9999
	}
	cfg.Queue = QueueConfig{
		DefaultHallCapacity: capacity,
		PerSeatServiceTime:  parseDuration(v.GetString("QUEUE_PER_SEAT_SERVICE_TIME"), time.Hour),
		TagCeiling:          tagCeiling,
		CapacityCacheTTL:    parseDuration(v.GetString("QUEUE_CAPACITY_CACHE_TTL"), 15*time.Second),
	}

	cfg.Admission = AdmissionConfig{
		TestMode: v.GetBool("ADMISSION_TEST_MODE"),
	}

	cfg.Reconcile = ReconcileConfig{
		Enabled:       v.GetBool("RECONCILE_ENABLED"),
		SweepInterval: parseDuration(v.GetString("RECONCILE_SWEEP_INTERVAL"), 5*time.Minute),
		Workers:       v.GetInt("RECONCILE_WORKERS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8000)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "easypass")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("QUEUE_DEFAULT_HALL_CAPACITY", 250)
	v.SetDefault("QUEUE_PER_SEAT_SERVICE_TIME", "1h")
	v.SetDefault("QUEUE_TAG_CEILING", 9999)
	v.SetDefault("QUEUE_CAPACITY_CACHE_TTL", "15s")

	v.SetDefault("ADMISSION_TEST_MODE", false)

	v.SetDefault("RECONCILE_ENABLED", true)
	v.SetDefault("RECONCILE_SWEEP_INTERVAL", "5m")
	v.SetDefault("RECONCILE_WORKERS", 1)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
