// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
	"github.com/rovshanmuradov/pumpcurve/internal/settlement"
)

type Config struct {
	RPCURL              string             `mapstructure:"rpc_url"`
	RPCRateLimit        float64            `mapstructure:"rpc_rate_limit"`
	ProgramID           string             `mapstructure:"program_id"`
	Curve               curve.DefaultCurve `mapstructure:"curve"`
	FeeBps              uint16             `mapstructure:"fee_bps"`
	GraduationThreshold string             `mapstructure:"graduation_threshold"`
	BaseDecimals        int32              `mapstructure:"base_decimals"`
	MinBaseIn           uint64             `mapstructure:"min_base_in"`
	MinQuoteIn          uint64             `mapstructure:"min_quote_in"`
	MinTotalSupply      uint64             `mapstructure:"min_total_supply"`
	CacheSize           int                `mapstructure:"cache_size"`
	CacheTTL            time.Duration      `mapstructure:"cache_ttl"`
	RedisAddr           string             `mapstructure:"redis_addr"`
	HistoryRetention    time.Duration      `mapstructure:"history_retention"`
	QuotePrice          string             `mapstructure:"quote_price"`
	JournalDir          string             `mapstructure:"journal_dir"`
	Retries             int                `mapstructure:"retries"`
	RetryMaxElapsed     time.Duration      `mapstructure:"retry_max_elapsed"`
	DebugLogging        bool               `mapstructure:"debug_logging"`
}

const (
	DefaultRPCURL           = "https://api.mainnet-beta.solana.com"
	DefaultRPCRateLimit     = 10.0
	DefaultProgramID        = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	DefaultCacheSize        = 1024
	DefaultCacheTTL         = 2 * time.Second
	DefaultHistoryRetention = 24 * time.Hour
	DefaultRetries          = 3
	DefaultRetryMaxElapsed  = 10 * time.Second
	DefaultMinBaseIn        = 1_000_000
	DefaultMinQuoteIn       = 1_000_000

	envPrefix = "PUMPCURVE"
)

func defaults() map[string]interface{} {
	dc := curve.PumpFunDefaultCurve()
	return map[string]interface{}{
		"rpc_url":                      DefaultRPCURL,
		"rpc_rate_limit":               DefaultRPCRateLimit,
		"program_id":                   DefaultProgramID,
		"curve.virtual_base_reserves":  dc.VirtualBaseReserves,
		"curve.virtual_quote_reserves": dc.VirtualQuoteReserves,
		"curve.total_supply":           dc.TotalSupply,
		"curve.curve_allocation_bps":   dc.CurveAllocationBps,
		"fee_bps":                      curve.DefaultFeeBps,
		"graduation_threshold":         curve.DefaultGraduationThreshold.String(),
		"base_decimals":                curve.BaseDecimals,
		"min_base_in":                  DefaultMinBaseIn,
		"min_quote_in":                 DefaultMinQuoteIn,
		"min_total_supply":             curve.DefaultMinTotalSupply,
		"cache_size":                   DefaultCacheSize,
		"cache_ttl":                    DefaultCacheTTL,
		"redis_addr":                   "",
		"history_retention":            DefaultHistoryRetention,
		"quote_price":                  "",
		"journal_dir":                  "",
		"retries":                      DefaultRetries,
		"retry_max_elapsed":            DefaultRetryMaxElapsed,
		"debug_logging":                false,
	}
}

// LoadConfig reads the file at path (JSON or YAML), applies defaults and
// PUMPCURVE_* environment overrides, and validates the result. An empty path
// loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	loadEnvironmentVariables(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvironmentVariables(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func validateConfig(cfg *Config) error {
	if cfg.RPCURL != "" {
		if err := validateURL(cfg.RPCURL, "http"); err != nil {
			return fmt.Errorf("invalid rpc_url: %w", err)
		}
	}
	if cfg.ProgramID == "" {
		return errors.New("program_id is empty")
	}
	if err := cfg.Curve.Validate(); err != nil {
		return fmt.Errorf("invalid curve: %w", err)
	}
	if cfg.FeeBps > curve.BasisPoints {
		return fmt.Errorf("invalid fee_bps: %d", cfg.FeeBps)
	}
	if cfg.BaseDecimals < 0 || cfg.BaseDecimals > 18 {
		return fmt.Errorf("invalid base_decimals: %d", cfg.BaseDecimals)
	}
	threshold, err := decimal.NewFromString(cfg.GraduationThreshold)
	if err != nil || !threshold.IsPositive() {
		return fmt.Errorf("invalid graduation_threshold: %q", cfg.GraduationThreshold)
	}
	if cfg.QuotePrice != "" {
		if _, err := decimal.NewFromString(cfg.QuotePrice); err != nil {
			return fmt.Errorf("invalid quote_price: %q", cfg.QuotePrice)
		}
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.RPCRateLimit < 0 {
		return errors.New("invalid rpc_rate_limit")
	}
	if cfg.CacheSize < 0 {
		return errors.New("invalid cache_size")
	}
	if cfg.CacheTTL < 0 {
		return errors.New("invalid cache_ttl")
	}
	if cfg.HistoryRetention < 0 {
		return errors.New("invalid history_retention")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	return nil
}

func validateURL(rawURL string, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

// SettlementOptions converts the platform constants for the coordinator.
func (c *Config) SettlementOptions() settlement.Options {
	// validateConfig has already parsed the threshold.
	threshold := decimal.RequireFromString(c.GraduationThreshold)
	return settlement.Options{
		FeeBps:         c.FeeBps,
		MinBaseIn:      c.MinBaseIn,
		MinQuoteIn:     c.MinQuoteIn,
		MinTotalSupply: c.MinTotalSupply,
		DefaultCurve:   c.Curve,
		Evaluator:      curve.Evaluator{Threshold: threshold, BaseDecimals: c.BaseDecimals},
	}
}

// StaticPrice returns the configured base unit price, or false when unset.
func (c *Config) StaticPrice() (decimal.Decimal, bool) {
	if c.QuotePrice == "" {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(c.QuotePrice)
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}
