package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/fieldworks/dispatchboard/internal/cache"
)

type Config struct {
	Env                 string        `mapstructure:"ENV"`
	BackendURL          string        `mapstructure:"BACKEND_URL"`
	BackendAPIKey       string        `mapstructure:"BACKEND_API_KEY"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	LocalStorePath      string        `mapstructure:"LOCAL_STORE_PATH"`
	OverrideMaxAge      time.Duration `mapstructure:"OVERRIDE_MAX_AGE"`
	WorkingHoursEnd     int           `mapstructure:"WORKING_HOURS_END"`
	DefaultJobMinutes   int           `mapstructure:"DEFAULT_JOB_MINUTES"`
	UndoDepth           int           `mapstructure:"UNDO_DEPTH"`
	TechnicianTTL       time.Duration `mapstructure:"TECHNICIAN_TTL"`
	DispatchTTL         time.Duration `mapstructure:"DISPATCH_TTL"`
	UnassignedJobsTTL   time.Duration `mapstructure:"UNASSIGNED_JOBS_TTL"`
	ServiceOrderTTL     time.Duration `mapstructure:"SERVICE_ORDER_TTL"`
	AssignedJobsTTL     time.Duration `mapstructure:"ASSIGNED_JOBS_TTL"`
	InstallationBatch   int           `mapstructure:"INSTALLATION_BATCH"`
	FallbackDisplayName string        `mapstructure:"FALLBACK_DISPLAY_NAME"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("BACKEND_URL", "http://localhost:8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOCAL_STORE_PATH", "dispatchboard.db")
	v.SetDefault("OVERRIDE_MAX_AGE", "24h")
	v.SetDefault("WORKING_HOURS_END", 17)
	v.SetDefault("DEFAULT_JOB_MINUTES", 60)
	v.SetDefault("UNDO_DEPTH", 5)
	v.SetDefault("TECHNICIAN_TTL", "120s")
	v.SetDefault("DISPATCH_TTL", "60s")
	v.SetDefault("UNASSIGNED_JOBS_TTL", "45s")
	v.SetDefault("SERVICE_ORDER_TTL", "45s")
	v.SetDefault("ASSIGNED_JOBS_TTL", "30s")
	v.SetDefault("INSTALLATION_BATCH", 15)
	v.SetDefault("FALLBACK_DISPLAY_NAME", "Dispatch Board")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TTLs maps the configured freshness windows onto the cache's shape.
func (c Config) TTLs() cache.TTLConfig {
	return cache.TTLConfig{
		Technicians:    c.TechnicianTTL,
		Dispatches:     c.DispatchTTL,
		UnassignedJobs: c.UnassignedJobsTTL,
		ServiceOrders:  c.ServiceOrderTTL,
		AssignedJobs:   c.AssignedJobsTTL,
	}
}
