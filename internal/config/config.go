package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env         string
	Port        string
	DBDriver    string // postgres (default) or sqlite
	DatabaseURL string
	RedisURL    string

	ProviderURL     string // geospatial metrics service base URL
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	SchedulerEnabled     bool
	SyncInterval         time.Duration
	SyncLockTTL          time.Duration
	SyncLockSafetyMargin time.Duration
	SyncConcurrency      int

	BufferMeters float64 // outward buffer applied to every analysis polygon
	HexAreaHa    float64 // target hexagon area for Point farms

	AdminKey            string   // guards /api/v1/analysis/sync and /health/reset; empty disables them
	CORSAllowedSuffixes []string // browser origins allowed to call the API
	LogLevel            string
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("PROVIDER_TIMEOUT", "2m")
	viper.SetDefault("SCHEDULER_ENABLED", false)
	viper.SetDefault("SYNC_INTERVAL", "24h")
	viper.SetDefault("SYNC_LOCK_TTL", "24h")
	viper.SetDefault("SYNC_LOCK_SAFETY_MARGIN", "3s")
	viper.SetDefault("SYNC_CONCURRENCY", 1)
	viper.SetDefault("ANALYSIS_BUFFER_METERS", 30.0)
	viper.SetDefault("ANALYSIS_HEX_AREA_HA", 0.25)
	viper.SetDefault("LOG_LEVEL", "info")

	concurrency := viper.GetInt("SYNC_CONCURRENCY")
	if concurrency < 1 {
		concurrency = 1
	}

	return &Config{
		Env:                  viper.GetString("APP_ENV"),
		Port:                 viper.GetString("PORT"),
		DBDriver:             strings.ToLower(viper.GetString("DB_DRIVER")),
		DatabaseURL:          viper.GetString("DATABASE_URL"),
		RedisURL:             viper.GetString("REDIS_URL"),
		ProviderURL:          viper.GetString("PROVIDER_URL"),
		ProviderAPIKey:       viper.GetString("PROVIDER_API_KEY"),
		ProviderTimeout:      viper.GetDuration("PROVIDER_TIMEOUT"),
		SchedulerEnabled:     viper.GetBool("SCHEDULER_ENABLED"),
		SyncInterval:         viper.GetDuration("SYNC_INTERVAL"),
		SyncLockTTL:          viper.GetDuration("SYNC_LOCK_TTL"),
		SyncLockSafetyMargin: viper.GetDuration("SYNC_LOCK_SAFETY_MARGIN"),
		SyncConcurrency:      concurrency,
		BufferMeters:         viper.GetFloat64("ANALYSIS_BUFFER_METERS"),
		HexAreaHa:            viper.GetFloat64("ANALYSIS_HEX_AREA_HA"),
		AdminKey:             viper.GetString("ADMIN_KEY"),
		CORSAllowedSuffixes:  splitList(viper.GetString("CORS_ALLOWED_SUFFIXES")),
		LogLevel:             viper.GetString("LOG_LEVEL"),
	}, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
