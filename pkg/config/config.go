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

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Makeup   MakeupConfig
	Jobs     JobsConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	Namespace   string
	DialTimeout time.Duration
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MakeupConfig tunes the availability and deadline engine.
type MakeupConfig struct {
	HorizonDays           int
	RepaymentUsableDays   int
	CreditUsableDays      int
	ZeroCapacityUnlimited bool
	Timezone              string
	DeadlineCacheEnabled  bool
	DeadlineCacheTTL      time.Duration
}

// JobsConfig governs the background sweeps.
type JobsConfig struct {
	Enabled             bool
	Workers             int
	Retries             int
	AbsenceExpiryEvery  time.Duration
	LedgerCheckEvery    time.Duration
	AbsenceLookbackDays int
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    positiveInt(v.GetInt("REDIS_POOL_SIZE"), 10),
		Namespace:   v.GetString("REDIS_NAMESPACE"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 3*time.Second),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Makeup = MakeupConfig{
		HorizonDays:           positiveInt(v.GetInt("MAKEUP_HORIZON_DAYS"), 120),
		RepaymentUsableDays:   positiveInt(v.GetInt("MAKEUP_REPAYMENT_USABLE_DAYS"), 7),
		CreditUsableDays:      positiveInt(v.GetInt("MAKEUP_CREDIT_USABLE_DAYS"), 30),
		ZeroCapacityUnlimited: v.GetBool("MAKEUP_ZERO_CAPACITY_UNLIMITED"),
		Timezone:              v.GetString("MAKEUP_TIMEZONE"),
		DeadlineCacheEnabled:  v.GetBool("ENABLE_DEADLINE_CACHE"),
		DeadlineCacheTTL:      parseDuration(v.GetString("MAKEUP_DEADLINE_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Jobs = JobsConfig{
		Enabled:             v.GetBool("ENABLE_JOBS"),
		Workers:             positiveInt(v.GetInt("JOBS_WORKERS"), 1),
		Retries:             positiveInt(v.GetInt("JOBS_RETRIES"), 3),
		AbsenceExpiryEvery:  parseDuration(v.GetString("ABSENCE_EXPIRY_INTERVAL"), time.Hour),
		LedgerCheckEvery:    parseDuration(v.GetString("LEDGER_CHECK_INTERVAL"), 6*time.Hour),
		AbsenceLookbackDays: positiveInt(v.GetInt("ABSENCE_EXPIRY_LOOKBACK_DAYS"), 180),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "studio_makeup")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_NAMESPACE", "makeup")
	v.SetDefault("REDIS_DIAL_TIMEOUT", "3s")

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MAKEUP_HORIZON_DAYS", 120)
	v.SetDefault("MAKEUP_REPAYMENT_USABLE_DAYS", 7)
	v.SetDefault("MAKEUP_CREDIT_USABLE_DAYS", 30)
	v.SetDefault("MAKEUP_ZERO_CAPACITY_UNLIMITED", true)
	v.SetDefault("MAKEUP_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("ENABLE_DEADLINE_CACHE", false)
	v.SetDefault("MAKEUP_DEADLINE_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_JOBS", false)
	v.SetDefault("JOBS_WORKERS", 1)
	v.SetDefault("JOBS_RETRIES", 3)
	v.SetDefault("ABSENCE_EXPIRY_INTERVAL", "1h")
	v.SetDefault("LEDGER_CHECK_INTERVAL", "6h")
	v.SetDefault("ABSENCE_EXPIRY_LOOKBACK_DAYS", 180)
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

func positiveInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// isMissingFile reports whether viper failed because the explicit .env path does not exist.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
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
