// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/tender/internal/domain"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the database and local backups (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	Allocation AllocationConfig
	Scheduler  SchedulerConfig
	Backup     BackupConfig
}

// AllocationConfig holds the default run parameters. Requests may override them.
type AllocationConfig struct {
	CostWeight       float64
	QualityWeight    float64
	GrowthFactor     float64
	LookbackPeriods  int
	Workers          int
	RoundingStrategy string
	Strategy         string
}

// Params converts the configured defaults to run parameters
func (a AllocationConfig) Params() domain.Params {
	return domain.Params{
		CostWeight:      a.CostWeight,
		QualityWeight:   a.QualityWeight,
		GrowthFactor:    a.GrowthFactor,
		LookbackPeriods: a.LookbackPeriods,
		Strategy:        domain.Strategy(a.Strategy),
		Rounding:        a.RoundingStrategy,
	}
}

// SchedulerConfig holds cron expressions (with seconds) for background jobs
type SchedulerConfig struct {
	BackupSchedule      string
	MaintenanceSchedule string
	VacuumSchedule      string
	RunRetentionDays    int
}

// BackupConfig holds S3-compatible backup settings. Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Prefix          string
	Retention       int
}

// Enabled reports whether remote backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TENDER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("TENDER_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Allocation: AllocationConfig{
			CostWeight:       getEnvAsFloat("COST_WEIGHT", 0.7),
			QualityWeight:    getEnvAsFloat("QUALITY_WEIGHT", 0.3),
			GrowthFactor:     getEnvAsFloat("GROWTH_FACTOR", 0.30),
			LookbackPeriods:  getEnvAsInt("LOOKBACK_PERIODS", 5),
			Workers:          getEnvAsInt("ALLOCATION_WORKERS", runtime.NumCPU()),
			RoundingStrategy: getEnv("ROUNDING_STRATEGY", "largest_remainder"),
			Strategy:         getEnv("ALLOCATION_STRATEGY", "cascading"),
		},
		Scheduler: SchedulerConfig{
			BackupSchedule:      getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "0 30 2 * * *"),
			VacuumSchedule:      getEnv("VACUUM_SCHEDULE", "0 0 4 * * 0"),
			RunRetentionDays:    getEnvAsInt("RUN_RETENTION_DAYS", 30),
		},
		Backup: BackupConfig{
			Bucket:          getEnv("S3_BUCKET", ""),
			Region:          getEnv("S3_REGION", "auto"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnvAsBool("S3_USE_PATH_STYLE", false),
			Prefix:          getEnv("S3_PREFIX", "tender-backups/"),
			Retention:       getEnvAsInt("BACKUP_RETENTION", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the location of the SQLite store
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "tender.db")
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	a := c.Allocation
	if math.IsNaN(a.CostWeight) || math.IsNaN(a.QualityWeight) || math.IsInf(a.CostWeight, 0) || math.IsInf(a.QualityWeight, 0) {
		return fmt.Errorf("cost and quality weights must be finite")
	}
	if a.CostWeight < 0 || a.QualityWeight < 0 {
		return fmt.Errorf("cost and quality weights must be non-negative (got %.3f/%.3f)", a.CostWeight, a.QualityWeight)
	}
	if a.CostWeight+a.QualityWeight == 0 {
		return fmt.Errorf("cost and quality weights cannot both be zero")
	}
	if math.IsNaN(a.GrowthFactor) || a.GrowthFactor < 0 || a.GrowthFactor > 1 {
		return fmt.Errorf("growth factor must be within [0, 1] (got %.3f)", a.GrowthFactor)
	}
	if a.LookbackPeriods < 1 {
		return fmt.Errorf("lookback periods must be positive (got %d)", a.LookbackPeriods)
	}
	if a.Workers < 1 {
		return fmt.Errorf("allocation workers must be positive (got %d)", a.Workers)
	}

	if c.Scheduler.RunRetentionDays < 1 {
		return fmt.Errorf("run retention must be at least one day (got %d)", c.Scheduler.RunRetentionDays)
	}

	if c.Backup.Enabled() && (c.Backup.AccessKeyID == "") != (c.Backup.SecretAccessKey == "") {
		return fmt.Errorf("S3 access key id and secret must be provided together")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
