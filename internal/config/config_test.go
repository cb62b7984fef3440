package config

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tender/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TENDER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.InDelta(t, 0.7, cfg.Allocation.CostWeight, 1e-9)
	assert.InDelta(t, 0.3, cfg.Allocation.QualityWeight, 1e-9)
	assert.InDelta(t, 0.30, cfg.Allocation.GrowthFactor, 1e-9)
	assert.Equal(t, 5, cfg.Allocation.LookbackPeriods)
	assert.Equal(t, "largest_remainder", cfg.Allocation.RoundingStrategy)
	assert.Equal(t, "cascading", cfg.Allocation.Strategy)
	assert.Equal(t, "0 0 3 * * *", cfg.Scheduler.BackupSchedule)
	assert.Equal(t, "0 0 4 * * 0", cfg.Scheduler.VacuumSchedule)
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, filepath.Join(dir, "tender.db"), cfg.DatabasePath())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("TENDER_DATA_DIR", t.TempDir())
	t.Setenv("TENDER_PORT", "9100")
	t.Setenv("COST_WEIGHT", "0.5")
	t.Setenv("QUALITY_WEIGHT", "0.5")
	t.Setenv("GROWTH_FACTOR", "0.2")
	t.Setenv("LOOKBACK_PERIODS", "8")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("S3_BUCKET", "backups")
	t.Setenv("S3_USE_PATH_STYLE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.InDelta(t, 0.5, cfg.Allocation.CostWeight, 1e-9)
	assert.InDelta(t, 0.2, cfg.Allocation.GrowthFactor, 1e-9)
	assert.Equal(t, 8, cfg.Allocation.LookbackPeriods)
	assert.True(t, cfg.Backup.Enabled())
	assert.True(t, cfg.Backup.UsePathStyle)
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("TENDER_DATA_DIR", t.TempDir())
	t.Setenv("TENDER_PORT", "not-a-port")
	t.Setenv("GROWTH_FACTOR", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.InDelta(t, 0.30, cfg.Allocation.GrowthFactor, 1e-9)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port: 8001,
			Allocation: AllocationConfig{
				CostWeight:      0.7,
				QualityWeight:   0.3,
				GrowthFactor:    0.3,
				LookbackPeriods: 5,
				Workers:         2,
			},
			Scheduler: SchedulerConfig{RunRetentionDays: 30},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = 0 }, "invalid port"},
		{"negative weight", func(c *Config) { c.Allocation.CostWeight = -1 }, "non-negative"},
		{"infinite weight", func(c *Config) { c.Allocation.CostWeight = math.Inf(1) }, "finite"},
		{"zero weights", func(c *Config) { c.Allocation.CostWeight = 0; c.Allocation.QualityWeight = 0 }, "both be zero"},
		{"growth above one", func(c *Config) { c.Allocation.GrowthFactor = 1.5 }, "growth factor"},
		{"zero lookback", func(c *Config) { c.Allocation.LookbackPeriods = 0 }, "lookback"},
		{"zero workers", func(c *Config) { c.Allocation.Workers = 0 }, "workers"},
		{"zero retention", func(c *Config) { c.Scheduler.RunRetentionDays = 0 }, "retention"},
		{"half credentials", func(c *Config) {
			c.Backup.Bucket = "b"
			c.Backup.AccessKeyID = "key"
		}, "together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAllocationConfig_Params(t *testing.T) {
	a := AllocationConfig{
		CostWeight:       0.6,
		QualityWeight:    0.4,
		GrowthFactor:     0.1,
		LookbackPeriods:  3,
		RoundingStrategy: "largest_remainder",
		Strategy:         "cheapest",
	}

	p := a.Params()
	require.NoError(t, p.Validate())
	assert.Equal(t, domain.StrategyCheapest, p.Strategy)
	assert.Equal(t, 3, p.LookbackPeriods)
	assert.Zero(t, p.CurrentPeriod)
}
