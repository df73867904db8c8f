package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, curve.PumpFunDefaultCurve(), cfg.Curve)
	assert.Equal(t, curve.DefaultFeeBps, cfg.FeeBps)
	assert.Equal(t, int32(curve.BaseDecimals), cfg.BaseDecimals)
	assert.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, DefaultHistoryRetention, cfg.HistoryRetention)

	opts := cfg.SettlementOptions()
	assert.True(t, opts.Evaluator.Threshold.Equal(curve.DefaultGraduationThreshold))
	assert.Equal(t, curve.DefaultMinTotalSupply, opts.MinTotalSupply)

	_, ok := cfg.StaticPrice()
	assert.False(t, ok)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
rpc_url: https://rpc.example.org
fee_bps: 50
graduation_threshold: "100000"
quote_price: "150.25"
cache_ttl: 5s
curve:
  virtual_base_reserves: 40000000000
  curve_allocation_bps: 8000
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", cfg.RPCURL)
	assert.Equal(t, uint16(50), cfg.FeeBps)
	assert.Equal(t, 5*time.Second, cfg.CacheTTL)
	assert.Equal(t, uint64(40_000_000_000), cfg.Curve.VirtualBaseReserves)
	assert.Equal(t, uint16(8000), cfg.Curve.CurveAllocationBps)
	assert.Equal(t, curve.DefaultVirtualQuoteReserves, cfg.Curve.VirtualQuoteReserves)

	price, ok := cfg.StaticPrice()
	require.True(t, ok)
	assert.Equal(t, "150.25", price.String())
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("PUMPCURVE_FEE_BPS", "25")
	t.Setenv("PUMPCURVE_RPC_URL", "http://localhost:8899")
	t.Setenv("PUMPCURVE_CURVE_TOTAL_SUPPLY", "2000000000000000")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, uint16(25), cfg.FeeBps)
	assert.Equal(t, "http://localhost:8899", cfg.RPCURL)
	assert.Equal(t, uint64(2_000_000_000_000_000), cfg.Curve.TotalSupply)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"fee out of range", `{"fee_bps": 10001}`},
		{"bad rpc scheme", `{"rpc_url": "ws://localhost"}`},
		{"bad threshold", `{"graduation_threshold": "lots"}`},
		{"zero threshold", `{"graduation_threshold": "0"}`},
		{"zero allocation", `{"curve": {"curve_allocation_bps": 0}}`},
		{"negative cache", `{"cache_size": -1}`},
		{"bad price", `{"quote_price": "cheap"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, "config.json", tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
