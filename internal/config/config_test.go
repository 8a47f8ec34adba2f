package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminAddr  = "0x1111111111111111111111111111111111111111"
	keeperAddr = "0x2222222222222222222222222222222222222222"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ADMIN_ADDRESS", adminAddr)
	t.Setenv("KEEPER_ADDRESS", keeperAddr)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPlatformFeeBPS, cfg.PlatformFeeBPS)
	assert.Equal(t, DefaultHighRiskThreshold, cfg.HighRiskThreshold)
	assert.Equal(t, DefaultHighValueThreshold, cfg.HighValueThreshold)
	assert.Equal(t, DefaultMediumValueThreshold, cfg.MediumValueThreshold)
	assert.True(t, cfg.InvestmentsEnabled)
	// fee collector falls back to the admin
	assert.Equal(t, adminAddr, cfg.FeeCollector)
}

func TestLoad_MissingAdmin(t *testing.T) {
	t.Setenv("ADMIN_ADDRESS", "")
	t.Setenv("KEEPER_ADDRESS", keeperAddr)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_ADDRESS")
}

func TestLoad_MissingKeeper(t *testing.T) {
	t.Setenv("ADMIN_ADDRESS", adminAddr)
	t.Setenv("KEEPER_ADDRESS", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KEEPER_ADDRESS")
}

func TestValidate_FeeCeiling(t *testing.T) {
	cfg := &Config{
		Env:           "development",
		AdminAddress:  adminAddr,
		KeeperAddress: keeperAddr,
	}

	cfg.PlatformFeeBPS = MaxPlatformFeeBPS
	assert.NoError(t, cfg.Validate())

	cfg.PlatformFeeBPS = MaxPlatformFeeBPS + 1
	assert.Error(t, cfg.Validate())

	cfg.PlatformFeeBPS = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_RiskThreshold(t *testing.T) {
	cfg := &Config{
		Env:               "production",
		AdminAddress:      adminAddr,
		KeeperAddress:     keeperAddr,
		HighRiskThreshold: 101,
	}
	assert.Error(t, cfg.Validate())

	cfg.HighRiskThreshold = 70
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsProduction())
}

func TestValidate_BadEnv(t *testing.T) {
	cfg := &Config{
		Env:           "testing",
		AdminAddress:  adminAddr,
		KeeperAddress: keeperAddr,
	}
	assert.Error(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ADMIN_ADDRESS", adminAddr)
	t.Setenv("KEEPER_ADDRESS", keeperAddr)
	t.Setenv("FEE_COLLECTOR", "0x3333333333333333333333333333333333333333")
	t.Setenv("PLATFORM_FEE_BPS", "50")
	t.Setenv("HIGH_RISK_THRESHOLD", "80")
	t.Setenv("INVESTMENTS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0x3333333333333333333333333333333333333333", cfg.FeeCollector)
	assert.Equal(t, 50, cfg.PlatformFeeBPS)
	assert.Equal(t, 80, cfg.HighRiskThreshold)
	assert.False(t, cfg.InvestmentsEnabled)
}
